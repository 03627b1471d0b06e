// Package chat 实现了聊天系统的核心服务层
// frame.go
// 核心职责：入站帧的边界解码和出站帧的构造
// 1. 入站帧在边界处一次性解码为带标签的联合类型，后续处理穷举分支
// 2. 避免在处理链路中散落 type 字符串比较
// 3. 出站帧统一在此构造，保证协议形状集中可查
package chat

import (
	"encoding/json"
	"time"

	"github.com/jeffreyjose07/scalable-chat-platform-sub003/pkg/enum/message/message_type_enum"

	"github.com/go-playground/validator/v10"
)

// FrameKind 入站帧种类
type FrameKind int

const (
	FrameInvalid   FrameKind = iota // 无法解析或缺少必填字段
	FrameChat                       // 聊天消息帧（裸消息对象）
	FramePing                       // 心跳探测
	FramePong                       // 心跳应答
	FrameDelivered                  // 送达回执
	FrameRead                       // 已读回执
)

// ChatPayload 聊天消息帧载荷
// SenderId/SenderUsername 即使出现在入站帧中也一律丢弃，
// 发送身份始终以会话的认证结果为准（安全关键）
type ChatPayload struct {
	ConversationId string `json:"conversationId" validate:"required"`
	Content        string `json:"content" validate:"required"`
	Type           string `json:"type"`
	SenderId       string `json:"senderId"`
	SenderUsername string `json:"senderUsername"`
}

// StatusPayload 状态回执帧载荷
// UserId 同样不信任客户端，处理时以会话身份覆盖
type StatusPayload struct {
	MessageId string `json:"messageId"`
	UserId    string `json:"userId"`
	Timestamp int64  `json:"timestamp"`
}

// InboundFrame 解码后的入站帧
type InboundFrame struct {
	Kind   FrameKind
	Chat   *ChatPayload
	Status *StatusPayload
	Reason string // Kind 为 FrameInvalid 时的拒绝原因
}

// frameProbe 用于探测帧类型的中间结构
type frameProbe struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// DecodeInbound 在边界处将原始帧一次性解码为联合类型
// 识别的入站帧形状：
//   - {"type":"ping"|"pong"}                          控制帧
//   - {"type":"MESSAGE_DELIVERED"|"MESSAGE_READ","data":{...}}  状态回执帧
//   - 裸消息对象（type 为消息内容类型 TEXT 等）         聊天消息帧
func DecodeInbound(raw []byte, validate *validator.Validate) InboundFrame {
	var probe frameProbe
	if err := json.Unmarshal(raw, &probe); err != nil {
		return InboundFrame{Kind: FrameInvalid, Reason: "unparseable payload"}
	}

	switch probe.Type {
	case "ping":
		return InboundFrame{Kind: FramePing}
	case "pong":
		return InboundFrame{Kind: FramePong}
	case "MESSAGE_DELIVERED", "MESSAGE_READ":
		var status StatusPayload
		if err := json.Unmarshal(probe.Data, &status); err != nil || status.MessageId == "" {
			return InboundFrame{Kind: FrameInvalid, Reason: "missing message id"}
		}
		kind := FrameDelivered
		if probe.Type == "MESSAGE_READ" {
			kind = FrameRead
		}
		return InboundFrame{Kind: kind, Status: &status}
	}

	// 其余一律按裸消息对象处理
	var chat ChatPayload
	if err := json.Unmarshal(raw, &chat); err != nil {
		return InboundFrame{Kind: FrameInvalid, Reason: "unparseable payload"}
	}
	if chat.Type == "" {
		chat.Type = message_type_enum.Text
	}
	if !message_type_enum.Valid(chat.Type) {
		return InboundFrame{Kind: FrameInvalid, Reason: "unknown message type"}
	}
	if err := validate.Struct(&chat); err != nil {
		if chat.ConversationId == "" {
			return InboundFrame{Kind: FrameInvalid, Reason: "missing conversation id"}
		}
		return InboundFrame{Kind: FrameInvalid, Reason: "empty content"}
	}
	return InboundFrame{Kind: FrameChat, Chat: &chat}
}

// ==================== 出站帧 ====================

type ackFrame struct {
	Type      string `json:"type"`
	MessageId string `json:"messageId"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type pingFrame struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// AckFrame 构造确认帧：{"type":"ack","messageId":...}
// 语义是"服务端已接收"，不代表已送达接收者
func AckFrame(messageId string) []byte {
	data, _ := json.Marshal(ackFrame{Type: "ack", MessageId: messageId})
	return data
}

// ErrorFrame 构造错误帧：{"type":"error","message":...}
func ErrorFrame(message string) []byte {
	data, _ := json.Marshal(errorFrame{Type: "error", Message: message})
	return data
}

// PingFrame 构造心跳探测帧：{"type":"ping","timestamp":...}
func PingFrame(now time.Time) []byte {
	data, _ := json.Marshal(pingFrame{Type: "ping", Timestamp: now.UnixMilli()})
	return data
}

// PongFrame 构造心跳应答帧
func PongFrame(now time.Time) []byte {
	data, _ := json.Marshal(pingFrame{Type: "pong", Timestamp: now.UnixMilli()})
	return data
}
