// status_tracker.go
// 核心职责：消息状态跟踪
// 1. 消息聚合状态单调推进 PENDING -> SENT -> DELIVERED -> READ，只进不退
// 2. 每接收者回执单独落库（送达时间、已读时间），重复回执幂等
// 3. 已读蕴含送达：已读回执会补齐缺失的送达时间
// 4. 返回聚合状态是否发生实际迁移，迁移的观察者负责对外广播
package chat

import (
	"time"

	"github.com/jeffreyjose07/scalable-chat-platform-sub003/internal/dao/mysql/repository"
	"github.com/jeffreyjose07/scalable-chat-platform-sub003/pkg/enum/message/message_status_enum"

	"go.uber.org/zap"
)

// StatusTracker 消息状态跟踪器
type StatusTracker struct {
	messages repository.MessageRepository
	receipts repository.ReceiptRepository
}

func NewStatusTracker(messages repository.MessageRepository, receipts repository.ReceiptRepository) *StatusTracker {
	return &StatusTracker{messages: messages, receipts: receipts}
}

// MarkSent 消息成功发布到分发管道后推进至 SENT
func (t *StatusTracker) MarkSent(messageUuid int64) (bool, error) {
	return t.advance(messageUuid, message_status_enum.Sent)
}

// MarkDelivered 记录某接收者的送达回执并尝试推进聚合状态
// 消息不存在时返回 NotFound 错误且不写入任何回执（不留部分变更）
// 返回 (迁移后状态, 是否迁移, 错误)
func (t *StatusTracker) MarkDelivered(messageUuid int64, userId string, ts time.Time) (int8, bool, error) {
	if _, err := t.messages.FindByUuid(messageUuid); err != nil {
		return 0, false, err
	}
	if err := t.receipts.UpsertDelivered(messageUuid, userId, ts); err != nil {
		return 0, false, err
	}
	changed, err := t.advance(messageUuid, message_status_enum.Delivered)
	return message_status_enum.Delivered, changed, err
}

// MarkRead 记录某接收者的已读回执并尝试推进聚合状态
// 已读蕴含送达，回执层会用同一时间戳补齐缺失的送达时间
// 消息不存在时返回 NotFound 错误且不写入任何回执
func (t *StatusTracker) MarkRead(messageUuid int64, userId string, ts time.Time) (int8, bool, error) {
	if _, err := t.messages.FindByUuid(messageUuid); err != nil {
		return 0, false, err
	}
	if err := t.receipts.UpsertRead(messageUuid, userId, ts); err != nil {
		return 0, false, err
	}
	changed, err := t.advance(messageUuid, message_status_enum.Read)
	return message_status_enum.Read, changed, err
}

// advance 单调推进聚合状态
// 条件更新（status < target）在存储层原子执行：并发回执交错时
// 低目标一方影响 0 行，状态永不回退，也不需要进程内锁
func (t *StatusTracker) advance(messageUuid int64, target int8) (bool, error) {
	changed, err := t.messages.AdvanceStatus(messageUuid, target)
	if err != nil {
		return false, err
	}
	if changed {
		zap.L().Debug("消息状态迁移",
			zap.Int64("messageUuid", messageUuid),
			zap.String("to", message_status_enum.Name(target)))
	}
	return changed, nil
}
