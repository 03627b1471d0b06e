// Package model 定义数据库实体模型
// 本文件定义消息回执模型，记录每个接收者的送达/已读时间
package model

import (
	"database/sql"

	"gorm.io/gorm"
)

// MessageReceipt 消息回执模型
// 对应数据库 message_receipt 表
// (message_uuid, user_id) 唯一，回执写入是幂等的：重复应用同一回执不会改变派生状态
type MessageReceipt struct {
	gorm.Model

	// MessageUuid 消息雪花 ID
	MessageUuid int64 `gorm:"column:message_uuid;uniqueIndex:uk_message_user;type:bigint;not null;comment:消息雪花ID"`

	// UserId 接收者 UUID
	UserId string `gorm:"column:user_id;uniqueIndex:uk_message_user;type:char(36);not null;comment:接收者uuid"`

	// DeliveredAt 送达时间
	// 已读必含送达：标记已读时若尚未送达，用同一时间戳补齐
	DeliveredAt sql.NullTime `gorm:"column:delivered_at;comment:送达时间"`

	// ReadAt 已读时间
	ReadAt sql.NullTime `gorm:"column:read_at;comment:已读时间"`
}

// TableName 指定表名
func (MessageReceipt) TableName() string {
	return "message_receipt"
}
