// Package message_status_enum 定义消息聚合状态枚举
// 状态只升不降：PENDING -> SENT -> DELIVERED -> READ
package message_status_enum

const (
	Pending   int8 = iota // 未发送（服务端尚未成功发布）
	Sent                  // 已发送（已写入分发管道）
	Delivered             // 已送达（至少一个接收者收到）
	Read                  // 已读（至少一个接收者已读）
)

// Name 返回状态的协议名称
func Name(status int8) string {
	switch status {
	case Pending:
		return "PENDING"
	case Sent:
		return "SENT"
	case Delivered:
		return "DELIVERED"
	case Read:
		return "READ"
	default:
		return "UNKNOWN"
	}
}
