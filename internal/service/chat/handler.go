// handler.go
// 核心职责：入站帧的业务处理
// 1. 聊天帧：服务端盖章身份 -> 分配雪花 ID -> 落库 -> 先确认后发布
// 2. 状态回执帧：幂等落库 -> 聚合状态实际迁移时才对外广播
// 3. 非法帧：回错误帧，连接保持，绝不发布
package chat

import (
	"context"
	"strconv"
	"time"

	"github.com/jeffreyjose07/scalable-chat-platform-sub003/internal/dao/mysql/repository"
	"github.com/jeffreyjose07/scalable-chat-platform-sub003/internal/dto/respond"
	"github.com/jeffreyjose07/scalable-chat-platform-sub003/internal/model"
	"github.com/jeffreyjose07/scalable-chat-platform-sub003/pkg/enum/message/message_status_enum"
	"github.com/jeffreyjose07/scalable-chat-platform-sub003/pkg/errorx"
	"github.com/jeffreyjose07/scalable-chat-platform-sub003/pkg/util/snowflake"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Handler 入站帧处理器，全部连接共享一个实例
type Handler struct {
	broker     MessageBroker
	tracker    *StatusTracker
	messages   repository.MessageRepository
	members    repository.ConversationMemberRepository
	validate   *validator.Validate
	maxRetries int
	retention  time.Duration
}

func NewHandler(broker MessageBroker, tracker *StatusTracker, messages repository.MessageRepository,
	members repository.ConversationMemberRepository, maxRetries int, retention time.Duration) *Handler {
	return &Handler{
		broker:     broker,
		tracker:    tracker,
		messages:   messages,
		members:    members,
		validate:   validator.New(),
		maxRetries: maxRetries,
		retention:  retention,
	}
}

// HandleFrame 处理一条入站帧，读泵逐帧调用
// 任何入站帧都刷新连接活跃时间
func (h *Handler) HandleFrame(c *UserConn, raw []byte) {
	now := time.Now()
	c.Touch(now)

	frame := DecodeInbound(raw, h.validate)
	switch frame.Kind {
	case FramePing:
		c.Deliver(PongFrame(now))
	case FramePong:
		// Touch 已完成，无其他动作
	case FrameChat:
		h.handleChat(c, frame.Chat, now)
	case FrameDelivered:
		h.handleReceipt(c, frame.Status, message_status_enum.Delivered)
	case FrameRead:
		h.handleReceipt(c, frame.Status, message_status_enum.Read)
	default:
		zap.L().Debug("入站帧非法",
			zap.String("userId", c.UserId),
			zap.String("reason", frame.Reason))
		c.Deliver(ErrorFrame(frame.Reason))
	}
}

// handleChat 处理聊天帧
// 发送身份一律取自会话的认证结果，入站帧携带的身份字段全部丢弃
func (h *Handler) handleChat(c *UserConn, payload *ChatPayload, now time.Time) {
	messageUuid := snowflake.GenerateID()
	messageId := strconv.FormatInt(messageUuid, 10)

	memberIds, err := h.members.FindMemberIds(payload.ConversationId)
	if err != nil {
		zap.L().Error("查询会话成员失败", zap.String("conversationId", payload.ConversationId), zap.Error(err))
		c.Deliver(ErrorFrame("服务器繁忙，请稍后再试"))
		return
	}
	if len(memberIds) == 0 {
		c.Deliver(ErrorFrame("会话不存在"))
		return
	}

	err = h.messages.Create(&model.Message{
		Uuid:           messageUuid,
		ConversationId: payload.ConversationId,
		Type:           payload.Type,
		Content:        payload.Content,
		SendId:         c.UserId,
		SendName:       c.Username,
		Status:         message_status_enum.Pending,
		SendAt:         now,
		ExpireAt:       now.Add(h.retention),
	})
	if err != nil {
		zap.L().Error("消息落库失败", zap.String("messageId", messageId), zap.Error(err))
		c.Deliver(ErrorFrame("服务器繁忙，请稍后再试"))
		return
	}

	// 先确认后发布：落库即回确认，发布失败由错误帧补充告知
	c.Deliver(AckFrame(messageId))

	event := &DistributionEvent{
		Kind:           EventMessage,
		ConversationId: payload.ConversationId,
		Recipients:     memberIds,
		SendAt:         now,
		Message: &respond.ChatMessageRespond{
			MessageId:      messageId,
			ConversationId: payload.ConversationId,
			SenderId:       c.UserId,
			SenderUsername: c.Username,
			Content:        payload.Content,
			Type:           payload.Type,
			CreatedAt:      now.Format(time.RFC3339),
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := publishWithRetry(ctx, h.broker, event, h.maxRetries); err != nil {
		zap.L().Error("消息发布失败", zap.String("messageId", messageId), zap.Error(err))
		c.Deliver(ErrorFrame("消息发送失败"))
		return
	}
	if _, err := h.tracker.MarkSent(messageUuid); err != nil {
		zap.L().Error("推进 SENT 状态失败", zap.String("messageId", messageId), zap.Error(err))
	}
}

// handleReceipt 处理状态回执帧
// 回执的用户身份同样取自会话，时间戳缺省取服务端当前时间
func (h *Handler) handleReceipt(c *UserConn, payload *StatusPayload, target int8) {
	messageUuid, err := strconv.ParseInt(payload.MessageId, 10, 64)
	if err != nil {
		c.Deliver(ErrorFrame("missing message id"))
		return
	}
	ts := time.Now()
	if payload.Timestamp > 0 {
		ts = time.UnixMilli(payload.Timestamp)
	}

	msg, err := h.messages.FindByUuid(messageUuid)
	if err != nil {
		if errorx.IsNotFound(err) {
			// 回执指向已清理或不存在的消息，静默忽略
			return
		}
		zap.L().Error("查询消息失败", zap.Int64("messageUuid", messageUuid), zap.Error(err))
		return
	}

	var changed bool
	if target == message_status_enum.Read {
		_, changed, err = h.tracker.MarkRead(messageUuid, c.UserId, ts)
	} else {
		_, changed, err = h.tracker.MarkDelivered(messageUuid, c.UserId, ts)
	}
	if err != nil {
		zap.L().Error("记录状态回执失败",
			zap.Int64("messageUuid", messageUuid),
			zap.String("userId", c.UserId),
			zap.Error(err))
		return
	}
	if !changed {
		return
	}
	h.broadcastStatus(msg.ConversationId, payload.MessageId, target, ts)
}

// NoteDelivered 消息实际写入接收者连接（在线直投或重连补投）后的送达处理
// 回执落库幂等，聚合状态发生实际迁移时照常对外广播
func (h *Handler) NoteDelivered(userId string, messageUuid int64, conversationId string, ts time.Time) {
	_, changed, err := h.tracker.MarkDelivered(messageUuid, userId, ts)
	if err != nil {
		if errorx.IsNotFound(err) {
			// 消息在投递与记账之间被清理，忽略
			return
		}
		zap.L().Error("推进送达状态失败",
			zap.Int64("messageUuid", messageUuid),
			zap.String("userId", userId),
			zap.Error(err))
		return
	}
	if !changed {
		return
	}
	h.broadcastStatus(conversationId, strconv.FormatInt(messageUuid, 10), message_status_enum.Delivered, ts)
}

// broadcastStatus 将聚合状态迁移发布到分发管道，通知会话全体成员
// 只有观察到迁移的一方调用，避免重复广播
func (h *Handler) broadcastStatus(conversationId, messageId string, target int8, ts time.Time) {
	memberIds, err := h.members.FindMemberIds(conversationId)
	if err != nil {
		zap.L().Error("查询会话成员失败", zap.String("conversationId", conversationId), zap.Error(err))
		return
	}
	event := &DistributionEvent{
		Kind:           EventStatus,
		ConversationId: conversationId,
		Recipients:     memberIds,
		SendAt:         ts,
		Status: &StatusChange{
			MessageId:      messageId,
			ConversationId: conversationId,
			Status:         message_status_enum.Name(target),
			Timestamp:      ts.UnixMilli(),
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := publishWithRetry(ctx, h.broker, event, h.maxRetries); err != nil {
		zap.L().Error("状态广播发布失败", zap.String("messageId", messageId), zap.Error(err))
	}
}
