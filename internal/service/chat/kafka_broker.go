// kafka_broker.go
// 核心职责：分发管道的 kafka 实现
// 多实例部署（messageMode = "kafka"）使用
// 1. 每个服务实例使用独立的消费组，保证每个事件被所有实例消费（全量扇出）
// 2. 分区键取会话 ID，同一会话内的事件保持有序
// 3. RequireOne 确认：事件落入 broker 后才认为发布成功
package chat

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/jeffreyjose07/scalable-chat-platform-sub003/internal/config"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaBroker kafka 分发管道
type KafkaBroker struct {
	writer *kafka.Writer
	reader *kafka.Reader

	mu       sync.Mutex
	handlers []EventHandler
	once     sync.Once
	done     chan struct{}
}

// NewKafkaBroker 创建 kafka 管道
// 消费组名带实例 ID 后缀：不同实例属于不同消费组，
// 同一事件因此会被每个实例各消费一次，这是跨实例路由的前提
func NewKafkaBroker(cfg *config.KafkaConfig, instanceId string) *KafkaBroker {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.HostPort),
		Topic:                  cfg.ChatTopic,
		Balancer:               &kafka.Hash{},
		WriteTimeout:           cfg.Timeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: []string{cfg.HostPort},
		Topic:   cfg.ChatTopic,
		GroupID: "chat_gateway_" + instanceId,
		MaxWait: cfg.Timeout,
	})
	return &KafkaBroker{
		writer: writer,
		reader: reader,
		done:   make(chan struct{}),
	}
}

func (b *KafkaBroker) Publish(ctx context.Context, event *DistributionEvent) error {
	data, err := event.Encode()
	if err != nil {
		return err
	}
	return b.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.ConversationId),
		Value: data,
	})
}

func (b *KafkaBroker) Subscribe(handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

// Start 启动消费循环
// 单条消息的解码或处理失败不中断循环，坏消息记日志后跳过
func (b *KafkaBroker) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-b.done:
				return
			default:
			}
			msg, err := b.reader.ReadMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
					return
				}
				zap.L().Error("kafka 读取失败", zap.Error(err))
				continue
			}
			b.consume(&msg)
		}
	}()
}

func (b *KafkaBroker) consume(msg *kafka.Message) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("kafka 事件处理 panic", zap.Any("recover", r))
		}
	}()
	event, err := DecodeEvent(msg.Value)
	if err != nil {
		zap.L().Error("kafka 事件解码失败，跳过",
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
		return
	}
	b.mu.Lock()
	handlers := make([]EventHandler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.Unlock()
	for _, handler := range handlers {
		handler(event)
	}
}

func (b *KafkaBroker) Close() error {
	var err error
	b.once.Do(func() {
		close(b.done)
		if writeErr := b.writer.Close(); writeErr != nil {
			err = writeErr
		}
		if readErr := b.reader.Close(); readErr != nil && err == nil {
			err = readErr
		}
	})
	return err
}

var _ MessageBroker = (*KafkaBroker)(nil)
