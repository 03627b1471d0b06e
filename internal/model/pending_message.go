// Package model 定义数据库实体模型
// 本文件定义离线消息模型：接收者不在线时消息进入积压队列，重连时按原始时间顺序排空
package model

import (
	"time"

	"gorm.io/gorm"
)

// PendingMessage 离线消息模型
// 对应数据库 pending_message 表
// (recipient_id, message_uuid) 唯一，容忍分发管道的重复投递
type PendingMessage struct {
	gorm.Model

	// RecipientId 接收者 UUID
	RecipientId string `gorm:"column:recipient_id;uniqueIndex:uk_recipient_message;index;type:char(36);not null;comment:接收者uuid"`

	// MessageUuid 消息雪花 ID
	MessageUuid int64 `gorm:"column:message_uuid;uniqueIndex:uk_recipient_message;type:bigint;not null;comment:消息雪花ID"`

	// ConversationId 会话 UUID，排空时用于回执广播
	ConversationId string `gorm:"column:conversation_id;type:char(36);not null;comment:会话uuid"`

	// Payload 出站帧快照（JSON），排空时原样下发
	Payload string `gorm:"column:payload;type:TEXT;not null;comment:出站帧快照"`

	// SendAt 原始消息发送时间，排空时按此字段升序
	SendAt time.Time `gorm:"column:send_at;index;comment:原始发送时间"`

	// ExpireAt 过期时间，超过保留期的积压消息被清理任务删除
	ExpireAt time.Time `gorm:"column:expire_at;index;comment:过期时间"`
}

// TableName 指定表名
func (PendingMessage) TableName() string {
	return "pending_message"
}
