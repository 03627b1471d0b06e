// Package message_type_enum 定义消息内容类型枚举
package message_type_enum

const (
	Text   = "TEXT"   // 文本消息
	Image  = "IMAGE"  // 图片消息
	File   = "FILE"   // 文件消息
	System = "SYSTEM" // 系统消息
)

// Valid 检查消息类型是否为已知类型
func Valid(t string) bool {
	switch t {
	case Text, Image, File, System:
		return true
	default:
		return false
	}
}
