package constants

const (
	CHANNEL_SIZE        = 100 // 通道大小
	SEND_BUFFER_SIZE    = 64  // 单个会话出站缓冲大小
	PUBLISH_MAX_RETRIES = 3   // 消息发布最大重试次数
)
