// Package redis 提供 ConnRegistry 接口的 Redis 实现
package redis

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jeffreyjose07/scalable-chat-platform-sub003/pkg/errorx"

	"github.com/redis/go-redis/v9"
)

// registryKeyPrefix 注册表键前缀
const registryKeyPrefix = "conn_registry_"

// compareAndRemoveScript 比较并删除的 Lua 脚本
// GET -> 比较 sessionId -> DEL 必须原子执行，否则断连清理可能误删
// 快速重连刚写入的新条目
var compareAndRemoveScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then
  return 0
end
local entry = cjson.decode(v)
if entry['sessionId'] == ARGV[1] then
  redis.call('DEL', KEYS[1])
  return 1
end
return 0
`)

// RedisRegistry ConnRegistry 的 Redis 实现
// 条目以 JSON 存储在 conn_registry_<userId> 键下，全集群可见
type RedisRegistry struct {
	client *redis.Client
}

// NewRedisRegistry 创建 Redis 连接注册表实例
func NewRedisRegistry(client *redis.Client) *RedisRegistry {
	return &RedisRegistry{client: client}
}

// Register 登记（或覆盖）用户的当前会话
// 后注册者直接覆盖先注册者，旧会话的清理走 CompareAndRemove，不会误删新条目
func (r *RedisRegistry) Register(ctx context.Context, userId string, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return errorx.Wrapf(err, errorx.CodeCacheError, "序列化注册表条目 user=%s", userId)
	}
	if err := r.client.Set(ctx, registryKeyPrefix+userId, data, 0).Err(); err != nil {
		return errorx.Wrapf(err, errorx.CodeCacheError, "写入注册表 user=%s", userId)
	}
	return nil
}

// Get 查询用户的当前会话
func (r *RedisRegistry) Get(ctx context.Context, userId string) (*Entry, error) {
	data, err := r.client.Get(ctx, registryKeyPrefix+userId).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errorx.Wrapf(err, errorx.CodeCacheError, "读取注册表 user=%s", userId)
	}
	var entry Entry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return nil, errorx.Wrapf(err, errorx.CodeCacheError, "解析注册表条目 user=%s", userId)
	}
	return &entry, nil
}

// CompareAndRemove 仅当条目仍指向指定会话时删除
func (r *RedisRegistry) CompareAndRemove(ctx context.Context, userId, sessionId string) (bool, error) {
	res, err := compareAndRemoveScript.Run(ctx, r.client,
		[]string{registryKeyPrefix + userId}, sessionId).Int()
	if err != nil {
		return false, errorx.Wrapf(err, errorx.CodeCacheError, "删除注册表条目 user=%s", userId)
	}
	return res == 1, nil
}

// 确保 RedisRegistry 实现了 ConnRegistry 接口
var _ ConnRegistry = (*RedisRegistry)(nil)
