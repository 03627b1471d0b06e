// Package mysql 提供数据访问层的初始化和全局数据库实例管理
// 负责建立 MySQL 连接、自动迁移表结构、初始化 Repository 层
package mysql

import (
	"fmt"

	"github.com/jeffreyjose07/scalable-chat-platform-sub003/internal/config"
	"github.com/jeffreyjose07/scalable-chat-platform-sub003/internal/dao/mysql/repository"
	"github.com/jeffreyjose07/scalable-chat-platform-sub003/internal/model"

	"go.uber.org/zap"
	mysqldriver "gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// GormDB 全局 GORM 数据库实例
var GormDB *gorm.DB

// Repos 全局 Repository 实例集合
// 聚合所有 Repository，供核心服务层通过依赖注入使用
var Repos *repository.Repositories

// Init 初始化数据库连接和 Repository 层
// 执行步骤：
//  1. 从配置读取 MySQL 连接信息
//  2. 构建 DSN（Data Source Name）连接字符串
//  3. 使用 GORM 建立数据库连接
//  4. 执行 AutoMigrate 自动迁移表结构
//  5. 初始化全局 Repository 实例
//
// 启动阶段无法连接数据库属于不可恢复错误，直接 Fatal 退出进程
func Init() {
	conf := config.GetConfig()

	// 构建 MySQL DSN 连接字符串
	// 格式：user:password@tcp(host:port)/database?params
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		conf.MysqlConfig.User,
		conf.MysqlConfig.Password,
		conf.MysqlConfig.Host,
		conf.MysqlConfig.Port,
		conf.MysqlConfig.DatabaseName,
	)

	var err error
	GormDB, err = gorm.Open(mysqldriver.Open(dsn), &gorm.Config{})
	if err != nil {
		zap.L().Fatal(err.Error())
	}

	// AutoMigrate 自动迁移表结构
	// 如果表不存在则创建，如果字段变更则更新结构，不会删除已有字段或数据
	err = GormDB.AutoMigrate(
		&model.UserInfo{},           // 用户信息表
		&model.ConversationMember{}, // 会话成员表
		&model.Message{},            // 消息表
		&model.MessageReceipt{},     // 消息回执表
		&model.PendingMessage{},     // 离线消息表
	)
	if err != nil {
		zap.L().Fatal(err.Error())
	}

	// 初始化全局 Repository 实例集合
	Repos = repository.NewRepositories(GormDB)
}
