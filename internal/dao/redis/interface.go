// Package redis 定义连接注册表接口
// 遵循依赖倒置原则，核心服务层依赖此接口而非具体 Redis 实现
package redis

import "context"

// Entry 连接注册表条目
// 记录某个用户当前由哪个服务实例上的哪条会话服务
type Entry struct {
	InstanceId string `json:"instanceId"` // 服务实例 ID
	SessionId  string `json:"sessionId"`  // 会话 ID
}

// ConnRegistry 连接注册表接口
// 全集群共享的 用户 -> (实例, 会话) 目录，路由决策据此做出
// 同一用户允许后注册者覆盖先注册者（last-registered wins）
type ConnRegistry interface {
	// Register 登记（或覆盖）用户的当前会话
	Register(ctx context.Context, userId string, entry Entry) error
	// Get 查询用户的当前会话，条目不存在时返回 (nil, nil)
	Get(ctx context.Context, userId string) (*Entry, error)
	// CompareAndRemove 仅当条目仍指向指定会话时删除
	// 避免断连清理误删快速重连产生的新注册，返回是否实际删除
	CompareAndRemove(ctx context.Context, userId, sessionId string) (bool, error)
}
