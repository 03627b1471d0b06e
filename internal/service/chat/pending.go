// pending.go
// 核心职责：待投递消息存储的抽象与进程内实现
// 1. 接收者离线时消息入队，重连后按发送时间顺序补投
// 2. 同一 (接收者, 消息) 重复入队只保留一条，保证补投不重复
// 3. 超过保留期限的消息在补投和清理时丢弃
package chat

import (
	"context"
	"sort"
	"sync"
	"time"
)

// PendingRecord 一条待投递消息
type PendingRecord struct {
	RecipientId    string
	ConversationId string
	MessageUuid    int64
	Payload        []byte // 已序列化的出站消息帧，补投时原样下发
	SendAt         time.Time
	ExpireAt       time.Time
}

// PendingStore 待投递消息存储
// Enqueue 幂等：同一 (RecipientId, MessageUuid) 重复入队为空操作
// Drain 原子取出并删除某接收者的全部待投递消息，按 SendAt 升序，
// 已过期（ExpireAt <= now）的记录直接丢弃不返回
type PendingStore interface {
	Enqueue(ctx context.Context, rec *PendingRecord) error
	Drain(ctx context.Context, recipientId string, now time.Time) ([]PendingRecord, error)
}

// MemoryPendingStore 进程内待投递存储，channel 模式和测试使用
type MemoryPendingStore struct {
	mu    sync.Mutex
	queue map[string][]PendingRecord    // recipientId -> 队列
	seen  map[string]map[int64]struct{} // recipientId -> 已入队消息集合
}

func NewMemoryPendingStore() *MemoryPendingStore {
	return &MemoryPendingStore{
		queue: make(map[string][]PendingRecord),
		seen:  make(map[string]map[int64]struct{}),
	}
}

func (s *MemoryPendingStore) Enqueue(ctx context.Context, rec *PendingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.seen[rec.RecipientId]
	if !ok {
		set = make(map[int64]struct{})
		s.seen[rec.RecipientId] = set
	}
	if _, dup := set[rec.MessageUuid]; dup {
		return nil
	}
	set[rec.MessageUuid] = struct{}{}
	s.queue[rec.RecipientId] = append(s.queue[rec.RecipientId], *rec)
	return nil
}

func (s *MemoryPendingStore) Drain(ctx context.Context, recipientId string, now time.Time) ([]PendingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := s.queue[recipientId]
	if len(pending) == 0 {
		return nil, nil
	}
	delete(s.queue, recipientId)
	delete(s.seen, recipientId)

	live := pending[:0]
	for _, rec := range pending {
		if !rec.ExpireAt.After(now) {
			continue
		}
		live = append(live, rec)
	}
	sort.SliceStable(live, func(i, j int) bool {
		return live[i].SendAt.Before(live[j].SendAt)
	})
	return live, nil
}

var _ PendingStore = (*MemoryPendingStore)(nil)
