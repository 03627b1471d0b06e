// distributor.go
// 核心职责：分发管道的消费端
// 每个服务实例消费全量事件，按注册表判定每个接收者的归属：
// 1. 接收者在本实例在线 -> 直接投递
// 2. 接收者在其他实例在线 -> 跳过，由该实例投递
// 3. 接收者离线 -> 入待投递队列（幂等入队，多实例重复判定离线也只留一条）
// 状态通知只投递给在线成员，离线成员重连后以消息聚合状态为准
package chat

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/jeffreyjose07/scalable-chat-platform-sub003/internal/dao/redis"
	"github.com/jeffreyjose07/scalable-chat-platform-sub003/internal/dto/respond"

	"go.uber.org/zap"
)

// DeliveryRecorder 记录一次实际送达，聚合状态迁移时负责对外广播
type DeliveryRecorder interface {
	NoteDelivered(userId string, messageUuid int64, conversationId string, ts time.Time)
}

// Distributor 事件分发器
type Distributor struct {
	instanceId string
	sessions   *SessionTable
	registry   redis.ConnRegistry
	pending    PendingStore
	recorder   DeliveryRecorder
	retention  time.Duration // 待投递消息保留期
}

func NewDistributor(instanceId string, sessions *SessionTable, registry redis.ConnRegistry,
	pending PendingStore, recorder DeliveryRecorder, retention time.Duration) *Distributor {
	return &Distributor{
		instanceId: instanceId,
		sessions:   sessions,
		registry:   registry,
		pending:    pending,
		recorder:   recorder,
		retention:  retention,
	}
}

// Handle 消费一个分发事件，注册为 MessageBroker 的回调
func (d *Distributor) Handle(event *DistributionEvent) {
	switch event.Kind {
	case EventMessage:
		d.handleMessage(event)
	case EventStatus:
		d.handleStatus(event)
	default:
		zap.L().Warn("未知分发事件种类，跳过", zap.String("kind", event.Kind))
	}
}

func (d *Distributor) handleMessage(event *DistributionEvent) {
	if event.Message == nil {
		zap.L().Warn("消息事件缺少载荷，跳过", zap.String("conversationId", event.ConversationId))
		return
	}
	frame, err := json.Marshal(event.Message)
	if err != nil {
		zap.L().Error("序列化消息帧失败", zap.Error(err))
		return
	}
	messageUuid, err := strconv.ParseInt(event.Message.MessageId, 10, 64)
	if err != nil {
		zap.L().Error("消息 ID 非法，丢弃事件", zap.String("messageId", event.Message.MessageId))
		return
	}
	for _, recipientId := range event.Recipients {
		d.deliverOrQueue(recipientId, messageUuid, event, frame)
	}
}

// deliverOrQueue 向单个接收者投递消息，离线则入队
// 在线直投成功即记录送达；发送者收到的只是回显，不算送达
// 直投失败（发送缓冲满，连接被判定为慢消费者关闭）时落到入队分支，
// 消息随重连补投，不丢失
func (d *Distributor) deliverOrQueue(recipientId string, messageUuid int64, event *DistributionEvent, frame []byte) {
	if conn, ok := d.sessions.GetByUser(recipientId); ok && conn.IsOpen() {
		if conn.Deliver(frame) {
			if recipientId != event.Message.SenderId {
				d.recorder.NoteDelivered(recipientId, messageUuid, event.ConversationId, time.Now())
			}
			return
		}
		zap.L().Warn("在线直投失败，转入待投递队列",
			zap.String("userId", recipientId),
			zap.String("messageId", event.Message.MessageId))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	entry, err := d.registry.Get(ctx, recipientId)
	if err != nil {
		zap.L().Error("查询连接注册表失败", zap.String("userId", recipientId), zap.Error(err))
		return
	}
	// 注册表指向其他实例：由该实例投递
	if entry != nil && entry.InstanceId != d.instanceId {
		return
	}
	// 离线（或注册表残留指向本实例但连接已不在）：入待投递队列
	// 发送者本人离线不入队，发送时已收到确认
	if recipientId == event.Message.SenderId {
		return
	}
	sendAt := event.SendAt
	err = d.pending.Enqueue(ctx, &PendingRecord{
		RecipientId:    recipientId,
		ConversationId: event.ConversationId,
		MessageUuid:    messageUuid,
		Payload:        frame,
		SendAt:         sendAt,
		ExpireAt:       sendAt.Add(d.retention),
	})
	if err != nil {
		zap.L().Error("离线消息入队失败",
			zap.String("userId", recipientId),
			zap.String("messageId", event.Message.MessageId),
			zap.Error(err))
	}
}

func (d *Distributor) handleStatus(event *DistributionEvent) {
	if event.Status == nil {
		zap.L().Warn("状态事件缺少载荷，跳过", zap.String("conversationId", event.ConversationId))
		return
	}
	frame, err := json.Marshal(&respond.StatusRespond{
		Type:           "MESSAGE_STATUS",
		MessageId:      event.Status.MessageId,
		ConversationId: event.Status.ConversationId,
		Status:         event.Status.Status,
	})
	if err != nil {
		zap.L().Error("序列化状态帧失败", zap.Error(err))
		return
	}
	for _, recipientId := range event.Recipients {
		if conn, ok := d.sessions.GetByUser(recipientId); ok && conn.IsOpen() {
			conn.Deliver(frame)
		}
	}
}
