package chat

import (
	"context"
	"testing"

	"github.com/jeffreyjose07/scalable-chat-platform-sub003/internal/dao/redis"
)

func TestMemoryRegistryRegisterAndGet(t *testing.T) {
	registry := NewMemoryRegistry()
	ctx := context.Background()

	entry, err := registry.Get(ctx, "alice")
	if err != nil || entry != nil {
		t.Fatalf("不存在的条目应返回 (nil, nil), got (%v, %v)", entry, err)
	}

	if err := registry.Register(ctx, "alice", redis.Entry{InstanceId: "node-1", SessionId: "s1"}); err != nil {
		t.Fatal(err)
	}
	entry, err = registry.Get(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if entry.InstanceId != "node-1" || entry.SessionId != "s1" {
		t.Fatalf("条目内容错误: %+v", entry)
	}
}

func TestMemoryRegistryLastRegisteredWins(t *testing.T) {
	registry := NewMemoryRegistry()
	ctx := context.Background()

	_ = registry.Register(ctx, "alice", redis.Entry{InstanceId: "node-1", SessionId: "s1"})
	_ = registry.Register(ctx, "alice", redis.Entry{InstanceId: "node-2", SessionId: "s2"})

	entry, _ := registry.Get(ctx, "alice")
	if entry.InstanceId != "node-2" || entry.SessionId != "s2" {
		t.Fatalf("后注册者应胜出: %+v", entry)
	}
}

func TestMemoryRegistryCompareAndRemove(t *testing.T) {
	registry := NewMemoryRegistry()
	ctx := context.Background()
	_ = registry.Register(ctx, "alice", redis.Entry{InstanceId: "node-1", SessionId: "s1"})

	// 会话不匹配：不删除
	removed, err := registry.CompareAndRemove(ctx, "alice", "s_other")
	if err != nil {
		t.Fatal(err)
	}
	if removed {
		t.Fatal("会话不匹配时不应删除")
	}
	if entry, _ := registry.Get(ctx, "alice"); entry == nil {
		t.Fatal("条目不应被误删")
	}

	// 会话匹配：删除
	removed, err = registry.CompareAndRemove(ctx, "alice", "s1")
	if err != nil {
		t.Fatal(err)
	}
	if !removed {
		t.Fatal("会话匹配时应删除")
	}
	if entry, _ := registry.Get(ctx, "alice"); entry != nil {
		t.Fatal("条目应已删除")
	}

	// 条目不存在：空操作
	removed, _ = registry.CompareAndRemove(ctx, "alice", "s1")
	if removed {
		t.Fatal("条目不存在时应返回 false")
	}
}

// 模拟快速重连：旧连接的清理不得误删新连接的注册
func TestMemoryRegistryStaleCleanupKeepsFreshEntry(t *testing.T) {
	registry := NewMemoryRegistry()
	ctx := context.Background()

	_ = registry.Register(ctx, "alice", redis.Entry{InstanceId: "node-1", SessionId: "s_old"})
	// 用户重连，新会话覆盖注册
	_ = registry.Register(ctx, "alice", redis.Entry{InstanceId: "node-2", SessionId: "s_new"})
	// 旧连接的断开清理此时才到达
	removed, _ := registry.CompareAndRemove(ctx, "alice", "s_old")

	if removed {
		t.Fatal("旧会话的清理不应删除新注册")
	}
	entry, _ := registry.Get(ctx, "alice")
	if entry == nil || entry.SessionId != "s_new" {
		t.Fatalf("新注册应保留: %+v", entry)
	}
}
