package repository

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jeffreyjose07/scalable-chat-platform-sub003/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type receiptRepository struct {
	db *gorm.DB
}

// NewReceiptRepository 创建消息回执 Repository
func NewReceiptRepository(db *gorm.DB) ReceiptRepository {
	return &receiptRepository{db: db}
}

// UpsertDelivered 写入送达时间
// 行不存在时插入；行已存在且送达时间为空时补齐；已有送达时间保持不变（幂等）
func (r *receiptRepository) UpsertDelivered(messageUuid int64, userId string, ts time.Time) error {
	return r.upsert(messageUuid, userId, ts, false)
}

// UpsertRead 写入已读时间
// 已读必含送达：送达时间为空时用同一时间戳补齐
func (r *receiptRepository) UpsertRead(messageUuid int64, userId string, ts time.Time) error {
	return r.upsert(messageUuid, userId, ts, true)
}

func (r *receiptRepository) upsert(messageUuid int64, userId string, ts time.Time, read bool) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var receipt model.MessageReceipt
		err := tx.Where("message_uuid = ? AND user_id = ?", messageUuid, userId).First(&receipt).Error
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return wrapDBErrorf(err, "查询回执 message=%d user=%s", messageUuid, userId)
			}
			receipt = model.MessageReceipt{
				MessageUuid: messageUuid,
				UserId:      userId,
				DeliveredAt: sql.NullTime{Time: ts, Valid: true},
			}
			if read {
				receipt.ReadAt = sql.NullTime{Time: ts, Valid: true}
			}
			// 并发插入同一回执时依赖唯一索引，冲突即他人已写入，静默忽略
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&receipt).Error; err != nil {
				return wrapDBErrorf(err, "写入回执 message=%d user=%s", messageUuid, userId)
			}
			return nil
		}

		updates := map[string]any{}
		if !receipt.DeliveredAt.Valid {
			updates["delivered_at"] = ts
		}
		if read && !receipt.ReadAt.Valid {
			updates["read_at"] = ts
		}
		if len(updates) == 0 {
			return nil // 幂等：已有时间戳不被覆盖
		}
		if err := tx.Model(&receipt).Updates(updates).Error; err != nil {
			return wrapDBErrorf(err, "更新回执 message=%d user=%s", messageUuid, userId)
		}
		return nil
	})
}

// FindByMessage 查找消息的全部回执
func (r *receiptRepository) FindByMessage(messageUuid int64) ([]model.MessageReceipt, error) {
	var receipts []model.MessageReceipt
	if err := r.db.Where("message_uuid = ?", messageUuid).Find(&receipts).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询回执 message=%d", messageUuid)
	}
	return receipts, nil
}
