package repository

import (
	"time"

	"github.com/jeffreyjose07/scalable-chat-platform-sub003/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type pendingRepository struct {
	db *gorm.DB
}

// NewPendingRepository 创建离线消息 Repository
func NewPendingRepository(db *gorm.DB) PendingRepository {
	return &pendingRepository{db: db}
}

// Enqueue 追加离线消息
// 唯一索引 (recipient_id, message_uuid) 保证幂等：分发管道重复投递同一事件时静默忽略
func (r *pendingRepository) Enqueue(p *model.PendingMessage) error {
	if err := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(p).Error; err != nil {
		return wrapDBErrorf(err, "写入离线消息 recipient=%s message=%d", p.RecipientId, p.MessageUuid)
	}
	return nil
}

// DrainByRecipient 取出并删除指定接收者的全部未过期积压
// 在事务内先查后删：排空期间新入队的消息不会丢失（不在本次快照内，留待下次排空），
// 也不会被重复投递（删除按主键精确匹配）
func (r *pendingRepository) DrainByRecipient(recipientId string, now time.Time) ([]model.PendingMessage, error) {
	var drained []model.PendingMessage
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("recipient_id = ? AND expire_at > ?", recipientId, now).
			Order("send_at ASC").Find(&drained).Error; err != nil {
			return wrapDBErrorf(err, "查询离线消息 recipient=%s", recipientId)
		}
		if len(drained) == 0 {
			return nil
		}
		ids := make([]uint, 0, len(drained))
		for _, p := range drained {
			ids = append(ids, p.ID)
		}
		if err := tx.Unscoped().Where("id IN ?", ids).Delete(&model.PendingMessage{}).Error; err != nil {
			return wrapDBErrorf(err, "删除离线消息 recipient=%s", recipientId)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return drained, nil
}

// PurgeExpired 物理删除超过保留期的积压
func (r *pendingRepository) PurgeExpired(now time.Time) (int64, error) {
	res := r.db.Unscoped().Where("expire_at < ?", now).Delete(&model.PendingMessage{})
	if res.Error != nil {
		return 0, wrapDBError(res.Error, "删除过期离线消息")
	}
	return res.RowsAffected, nil
}
