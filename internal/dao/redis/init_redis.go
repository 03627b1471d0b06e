// Package redis 提供 Redis 连接注册表的初始化
// 使用 github.com/redis/go-redis/v9 作为底层客户端
package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/jeffreyjose07/scalable-chat-platform-sub003/internal/config"
	"github.com/jeffreyjose07/scalable-chat-platform-sub003/pkg/errorx"

	"github.com/redis/go-redis/v9"
)

// redisClient 全局 Redis 客户端实例（包内可见）
var redisClient *redis.Client

// connRegistry 全局连接注册表实例
var connRegistry ConnRegistry

// Init 初始化 Redis 连接并验证可达性
// 注册表不可达属于不可恢复的启动错误，由调用方 Fatal 处理
func Init() error {
	conf := config.GetConfig()
	addr := conf.RedisConfig.Host + ":" + strconv.Itoa(conf.RedisConfig.Port)

	redisClient = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: conf.RedisConfig.Password,
		DB:       conf.RedisConfig.Db,
		// 连接池配置
		PoolSize:     50,
		MinIdleConns: 10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return errorx.Wrapf(err, errorx.CodeCacheError, "redis ping %s", addr)
	}

	connRegistry = NewRedisRegistry(redisClient)
	return nil
}

// GetConnRegistry 获取连接注册表实例
// 返回 ConnRegistry 接口，供核心服务层依赖注入使用
func GetConnRegistry() ConnRegistry {
	return connRegistry
}
