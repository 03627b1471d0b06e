// Package repository 定义数据访问层接口和聚合结构
// 采用 Repository 模式将数据访问逻辑与业务逻辑分离
// 所有 Repository 接口在此文件定义，具体实现在各自的文件中
package repository

import (
	"errors"
	"time"

	"github.com/jeffreyjose07/scalable-chat-platform-sub003/internal/model"
	"github.com/jeffreyjose07/scalable-chat-platform-sub003/pkg/errorx"

	"gorm.io/gorm"
)

// ==================== 错误包装辅助函数 ====================

// wrapDBError 包装数据库错误
// 根据错误类型返回不同的错误码：
//   - ErrRecordNotFound -> CodeNotFound
//   - 其他错误 -> CodeDBError
func wrapDBError(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errorx.Wrap(err, errorx.CodeNotFound, msg)
	}
	return errorx.Wrap(err, errorx.CodeDBError, msg)
}

// wrapDBErrorf 包装数据库错误（支持格式化消息）
func wrapDBErrorf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errorx.Wrapf(err, errorx.CodeNotFound, format, args...)
	}
	return errorx.Wrapf(err, errorx.CodeDBError, format, args...)
}

// ==================== Repository 接口定义 ====================

// MessageRepository 消息数据访问接口
type MessageRepository interface {
	// Create 创建消息（初始状态 PENDING）
	Create(message *model.Message) error
	// FindByUuid 根据雪花 ID 查找消息
	FindByUuid(uuid int64) (*model.Message, error)
	// AdvanceStatus 条件推进聚合状态：仅当当前状态小于目标时更新
	// 单调性由该条件在存储层保证，跨进程并发回执下状态也不回退
	// 返回是否实际发生迁移
	AdvanceStatus(uuid int64, status int8) (bool, error)
	// PurgeExpired 物理删除超过保留期的消息
	PurgeExpired(now time.Time) (int64, error)
}

// ReceiptRepository 消息回执数据访问接口
// 写入幂等：同一 (message, user) 的重复回执不改变已存在的时间戳
type ReceiptRepository interface {
	// UpsertDelivered 写入送达时间（不存在则插入，存在且为空则补齐）
	UpsertDelivered(messageUuid int64, userId string, ts time.Time) error
	// UpsertRead 写入已读时间，已读必含送达：送达时间为空时用同一时间戳补齐
	UpsertRead(messageUuid int64, userId string, ts time.Time) error
	// FindByMessage 查找消息的全部回执
	FindByMessage(messageUuid int64) ([]model.MessageReceipt, error)
}

// PendingRepository 离线消息数据访问接口
type PendingRepository interface {
	// Enqueue 追加离线消息，(recipient, message) 已存在时静默忽略
	Enqueue(p *model.PendingMessage) error
	// DrainByRecipient 取出并删除指定接收者的全部未过期积压，按原始发送时间升序
	DrainByRecipient(recipientId string, now time.Time) ([]model.PendingMessage, error)
	// PurgeExpired 物理删除超过保留期的积压
	PurgeExpired(now time.Time) (int64, error)
}

// ConversationMemberRepository 会话成员数据访问接口
type ConversationMemberRepository interface {
	// FindMemberIds 查找会话的全部成员 UUID
	FindMemberIds(conversationId string) ([]string, error)
}

// UserRepository 用户数据访问接口
type UserRepository interface {
	// FindByUuid 根据 UUID 查找用户
	FindByUuid(uuid string) (*model.UserInfo, error)
}

// ==================== Repository 聚合 ====================

// Repositories 聚合所有 Repository，统一注入
type Repositories struct {
	Message MessageRepository
	Receipt ReceiptRepository
	Pending PendingRepository
	Member  ConversationMemberRepository
	User    UserRepository
}

// NewRepositories 创建 Repository 聚合实例
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Message: NewMessageRepository(db),
		Receipt: NewReceiptRepository(db),
		Pending: NewPendingRepository(db),
		Member:  NewConversationMemberRepository(db),
		User:    NewUserRepository(db),
	}
}
