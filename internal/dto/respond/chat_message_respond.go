// Package respond 定义下发给前端的响应体
package respond

// ChatMessageRespond 出站聊天消息
// 消息对象原样作为帧下发，Type 字段为消息内容类型（TEXT 等），
// 前端据此与控制帧（type 为 ack/error/ping 等）区分
type ChatMessageRespond struct {
	MessageId      string `json:"messageId"`      // 消息雪花 ID（字符串，避免 JS 精度丢失）
	ConversationId string `json:"conversationId"` // 会话 ID
	SenderId       string `json:"senderId"`       // 发送者 UUID（服务端盖章）
	SenderUsername string `json:"senderUsername"` // 发送者昵称（服务端解析）
	Content        string `json:"content"`        // 消息内容
	Type           string `json:"type"`           // 消息类型 TEXT/IMAGE/FILE/SYSTEM
	CreatedAt      string `json:"createdAt"`      // 创建时间
}
