package respond

// StatusRespond 出站消息状态广播
// 聚合状态变化时推送给会话全体在线成员
type StatusRespond struct {
	Type           string `json:"type"`           // 固定为 "MESSAGE_STATUS"
	MessageId      string `json:"messageId"`      // 消息雪花 ID
	ConversationId string `json:"conversationId"` // 会话 ID
	Status         string `json:"status"`         // 聚合状态 SENT/DELIVERED/READ
}
