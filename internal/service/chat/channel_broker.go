// channel_broker.go
// 核心职责：分发管道的进程内实现
// 单实例部署（messageMode = "channel"）使用，事件经缓冲通道直达本进程消费者
// 支持多个订阅者（测试中用两个订阅者模拟两个服务实例）
package chat

import (
	"context"
	"sync"

	"github.com/jeffreyjose07/scalable-chat-platform-sub003/pkg/constants"

	"go.uber.org/zap"
)

// ChannelBroker 进程内分发管道
type ChannelBroker struct {
	mu       sync.Mutex
	events   chan *DistributionEvent
	handlers []EventHandler
	once     sync.Once
	done     chan struct{}
}

func NewChannelBroker() *ChannelBroker {
	return &ChannelBroker{
		events: make(chan *DistributionEvent, constants.CHANNEL_SIZE),
		done:   make(chan struct{}),
	}
}

func (b *ChannelBroker) Publish(ctx context.Context, event *DistributionEvent) error {
	select {
	case b.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-b.done:
		return context.Canceled
	}
}

func (b *ChannelBroker) Subscribe(handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

// Start 启动消费协程，逐事件回调全部订阅者
// 单个事件处理 panic 不中断消费循环
func (b *ChannelBroker) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-b.done:
				return
			case event := <-b.events:
				b.dispatch(event)
			}
		}
	}()
}

func (b *ChannelBroker) dispatch(event *DistributionEvent) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("分发事件处理 panic", zap.Any("recover", r))
		}
	}()
	b.mu.Lock()
	handlers := make([]EventHandler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.Unlock()
	for _, handler := range handlers {
		handler(event)
	}
}

func (b *ChannelBroker) Close() error {
	b.once.Do(func() { close(b.done) })
	return nil
}

var _ MessageBroker = (*ChannelBroker)(nil)
