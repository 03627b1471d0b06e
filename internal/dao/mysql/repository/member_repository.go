package repository

import (
	"github.com/jeffreyjose07/scalable-chat-platform-sub003/internal/model"

	"gorm.io/gorm"
)

type conversationMemberRepository struct {
	db *gorm.DB
}

// NewConversationMemberRepository 创建会话成员 Repository
func NewConversationMemberRepository(db *gorm.DB) ConversationMemberRepository {
	return &conversationMemberRepository{db: db}
}

// FindMemberIds 查找会话的全部成员 UUID
func (r *conversationMemberRepository) FindMemberIds(conversationId string) ([]string, error) {
	var ids []string
	if err := r.db.Model(&model.ConversationMember{}).
		Where("conversation_id = ?", conversationId).
		Pluck("user_id", &ids).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询会话成员 conversation=%s", conversationId)
	}
	return ids, nil
}
