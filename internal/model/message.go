// Package model 定义数据库实体模型
// 本文件定义消息模型，用于存储聊天消息
package model

import (
	"time"

	"gorm.io/gorm"
)

// Message 消息模型
// 对应数据库 message 表
// 除状态字段外，消息在创建后不可变；状态只由 StatusTracker 推进
type Message struct {
	gorm.Model

	// Uuid 消息唯一标识
	// 使用雪花算法生成的 int64 类型 ID
	Uuid int64 `gorm:"column:uuid;uniqueIndex;type:bigint;not null;comment:消息雪花ID"`

	// ConversationId 会话 UUID
	// 同一会话内的消息保证分发顺序（作为分发管道的分区键）
	ConversationId string `gorm:"column:conversation_id;index;type:char(36);not null;comment:会话uuid"`

	// Type 消息类型：TEXT / IMAGE / FILE / SYSTEM
	Type string `gorm:"column:type;type:char(10);not null;comment:消息类型"`

	// Content 消息文本内容
	Content string `gorm:"column:content;type:TEXT;comment:消息内容"`

	// SendId 发送者 UUID
	// 始终取自会话的认证身份，不信任客户端上报
	SendId string `gorm:"column:send_id;index;type:char(36);not null;comment:发送者uuid"`

	// SendName 发送者昵称
	// 服务端在收到消息时解析并冗余存储，客户端上报的值一律丢弃
	SendName string `gorm:"column:send_name;type:varchar(30);not null;comment:发送者昵称"`

	// Status 聚合状态
	// 0=PENDING, 1=SENT, 2=DELIVERED, 3=READ，参见 pkg/enum/message/message_status_enum
	// 不变式：取所有接收者回执的最大值，永不回退
	Status int8 `gorm:"column:status;not null;comment:聚合状态"`

	// SendAt 消息发送时间
	SendAt time.Time `gorm:"column:send_at;index;comment:发送时间"`

	// ExpireAt 过期时间
	// 超过保留期的消息可被清理任务物理删除
	ExpireAt time.Time `gorm:"column:expire_at;index;comment:过期时间"`
}

// TableName 指定表名
func (Message) TableName() string {
	return "message"
}
