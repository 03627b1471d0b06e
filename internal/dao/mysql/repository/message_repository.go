package repository

import (
	"time"

	"github.com/jeffreyjose07/scalable-chat-platform-sub003/internal/model"

	"gorm.io/gorm"
)

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository 创建消息 Repository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

// Create 创建消息
func (r *messageRepository) Create(message *model.Message) error {
	if err := r.db.Create(message).Error; err != nil {
		return wrapDBError(err, "创建消息")
	}
	return nil
}

// FindByUuid 根据雪花 ID 查找消息
func (r *messageRepository) FindByUuid(uuid int64) (*model.Message, error) {
	var message model.Message
	if err := r.db.Where("uuid = ?", uuid).First(&message).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询消息 uuid=%d", uuid)
	}
	return &message, nil
}

// AdvanceStatus 条件推进聚合状态
// WHERE status < ? 使推进在数据库层原子：并发回执（包括跨进程）
// 交错执行时，较低的目标状态影响 0 行，已写入的高状态不回退
func (r *messageRepository) AdvanceStatus(uuid int64, status int8) (bool, error) {
	res := r.db.Model(&model.Message{}).
		Where("uuid = ? AND status < ?", uuid, status).
		Update("status", status)
	if res.Error != nil {
		return false, wrapDBErrorf(res.Error, "推进消息状态 uuid=%d", uuid)
	}
	return res.RowsAffected > 0, nil
}

// PurgeExpired 物理删除超过保留期的消息及其回执
func (r *messageRepository) PurgeExpired(now time.Time) (int64, error) {
	var uuids []int64
	if err := r.db.Model(&model.Message{}).Where("expire_at < ?", now).Pluck("uuid", &uuids).Error; err != nil {
		return 0, wrapDBError(err, "查询过期消息")
	}
	if len(uuids) == 0 {
		return 0, nil
	}
	res := r.db.Unscoped().Where("uuid IN ?", uuids).Delete(&model.Message{})
	if res.Error != nil {
		return 0, wrapDBError(res.Error, "删除过期消息")
	}
	// 回执跟随消息一起过期
	if err := r.db.Unscoped().Where("message_uuid IN ?", uuids).Delete(&model.MessageReceipt{}).Error; err != nil {
		return res.RowsAffected, wrapDBError(err, "删除过期回执")
	}
	return res.RowsAffected, nil
}
