// memory_registry.go
// 核心职责：连接注册表的进程内实现
// channel 模式（单实例部署）和测试使用，语义与 Redis 实现一致
package chat

import (
	"context"
	"sync"

	"github.com/jeffreyjose07/scalable-chat-platform-sub003/internal/dao/redis"
)

// MemoryRegistry 进程内连接注册表
type MemoryRegistry struct {
	mu      sync.RWMutex
	entries map[string]redis.Entry
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{entries: make(map[string]redis.Entry)}
}

func (r *MemoryRegistry) Register(ctx context.Context, userId string, entry redis.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[userId] = entry
	return nil
}

func (r *MemoryRegistry) Get(ctx context.Context, userId string) (*redis.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[userId]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (r *MemoryRegistry) CompareAndRemove(ctx context.Context, userId, sessionId string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[userId]
	if !ok || entry.SessionId != sessionId {
		return false, nil
	}
	delete(r.entries, userId)
	return true, nil
}

var _ redis.ConnRegistry = (*MemoryRegistry)(nil)
