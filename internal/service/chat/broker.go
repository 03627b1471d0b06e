// broker.go
// 核心职责：分发管道抽象
// 1. DistributionEvent 是管道上的统一事件信封
// 2. MessageBroker 双实现：channel 模式（单实例）与 kafka 模式（多实例）
// 3. 发布失败在有限次数内重试，最终失败向上返回由调用方告知发送者
package chat

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jeffreyjose07/scalable-chat-platform-sub003/internal/dto/respond"
	"github.com/jeffreyjose07/scalable-chat-platform-sub003/pkg/errorx"

	"go.uber.org/zap"
)

// 事件种类
const (
	EventMessage = "message" // 新消息，投递给会话全部成员
	EventStatus  = "status"  // 聚合状态迁移，通知会话全部成员
)

// StatusChange 聚合状态迁移事件载荷
type StatusChange struct {
	MessageId      string `json:"messageId"`
	ConversationId string `json:"conversationId"`
	Status         string `json:"status"` // DELIVERED / READ
	Timestamp      int64  `json:"timestamp"`
}

// DistributionEvent 分发管道上的事件信封
// ConversationId 同时作为 kafka 分区键，保证同会话事件有序
// Recipients 由发布方查询一次会话成员后携带，消费方不再查库
type DistributionEvent struct {
	Kind           string                      `json:"kind"`
	ConversationId string                      `json:"conversationId"`
	Recipients     []string                    `json:"recipients"`
	SendAt         time.Time                   `json:"sendAt"` // 消息原始发送时间，补投排序和过期判定用
	Message        *respond.ChatMessageRespond `json:"message,omitempty"`
	Status         *StatusChange               `json:"status,omitempty"`
}

// Encode 序列化事件
func (e *DistributionEvent) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.CodePublishError, "序列化分发事件失败")
	}
	return data, nil
}

// DecodeEvent 反序列化事件
func DecodeEvent(data []byte) (*DistributionEvent, error) {
	var event DistributionEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, errorx.Wrap(err, errorx.CodePublishError, "反序列化分发事件失败")
	}
	return &event, nil
}

// EventHandler 事件消费回调
type EventHandler func(event *DistributionEvent)

// MessageBroker 分发管道
// Publish 将事件写入管道，多实例部署时所有实例都会消费到每个事件
// Subscribe 注册消费回调，必须在 Start 之前调用
type MessageBroker interface {
	Publish(ctx context.Context, event *DistributionEvent) error
	Subscribe(handler EventHandler)
	Start(ctx context.Context)
	Close() error
}

// publishWithRetry 有限次重试发布
// 重试间隔线性递增，全部失败后返回发布错误，调用方据此回告发送者
func publishWithRetry(ctx context.Context, broker MessageBroker, event *DistributionEvent, maxRetries int) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return errorx.Wrap(ctx.Err(), errorx.CodePublishError, "发布被取消")
			case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
			}
		}
		if lastErr = broker.Publish(ctx, event); lastErr == nil {
			return nil
		}
		zap.L().Warn("发布分发事件失败，准备重试",
			zap.Int("attempt", attempt+1),
			zap.String("conversationId", event.ConversationId),
			zap.Error(lastErr))
	}
	return errorx.Wrapf(lastErr, errorx.CodePublishError, "发布分发事件失败，已重试 %d 次", maxRetries)
}
