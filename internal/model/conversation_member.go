// Package model 定义数据库实体模型
// 本文件定义会话成员模型，分发时据此解析接收者集合
package model

import "gorm.io/gorm"

// ConversationMember 会话成员模型
// 对应数据库 conversation_member 表
// 会话元数据的增删改由外部 CRUD 服务维护，本服务只读
type ConversationMember struct {
	gorm.Model

	// ConversationId 会话 UUID
	ConversationId string `gorm:"column:conversation_id;uniqueIndex:uk_conversation_user;index;type:char(36);not null;comment:会话uuid"`

	// UserId 成员 UUID
	UserId string `gorm:"column:user_id;uniqueIndex:uk_conversation_user;type:char(36);not null;comment:成员uuid"`
}

// TableName 指定表名
func (ConversationMember) TableName() string {
	return "conversation_member"
}
