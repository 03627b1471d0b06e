// Package model 定义数据库实体模型
// 本文件定义用户信息模型，发送者昵称解析的后备表
package model

import "gorm.io/gorm"

// UserInfo 用户信息模型
// 对应数据库 user_info 表
// 用户的注册/资料维护由外部 CRUD 服务负责，本服务只做昵称解析
type UserInfo struct {
	gorm.Model

	// Uuid 用户唯一标识
	Uuid string `gorm:"column:uuid;uniqueIndex;type:char(36);not null;comment:用户uuid"`

	// Username 登录名
	Username string `gorm:"column:username;uniqueIndex;type:varchar(30);not null;comment:登录名"`

	// Nickname 显示昵称，出站消息盖章使用
	Nickname string `gorm:"column:nickname;type:varchar(30);not null;comment:昵称"`
}

// TableName 指定表名
func (UserInfo) TableName() string {
	return "user_info"
}
