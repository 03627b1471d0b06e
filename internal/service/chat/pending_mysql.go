// pending_mysql.go
// 核心职责：PendingStore 的 MySQL 适配
// 幂等和顺序语义由 PendingRepository 的唯一索引与事务保证
package chat

import (
	"context"
	"time"

	"github.com/jeffreyjose07/scalable-chat-platform-sub003/internal/dao/mysql/repository"
	"github.com/jeffreyjose07/scalable-chat-platform-sub003/internal/model"
)

// MysqlPendingStore 把仓储层适配为 PendingStore
type MysqlPendingStore struct {
	repo repository.PendingRepository
}

func NewMysqlPendingStore(repo repository.PendingRepository) *MysqlPendingStore {
	return &MysqlPendingStore{repo: repo}
}

func (s *MysqlPendingStore) Enqueue(ctx context.Context, rec *PendingRecord) error {
	return s.repo.Enqueue(&model.PendingMessage{
		RecipientId:    rec.RecipientId,
		ConversationId: rec.ConversationId,
		MessageUuid:    rec.MessageUuid,
		Payload:        string(rec.Payload),
		SendAt:         rec.SendAt,
		ExpireAt:       rec.ExpireAt,
	})
}

func (s *MysqlPendingStore) Drain(ctx context.Context, recipientId string, now time.Time) ([]PendingRecord, error) {
	rows, err := s.repo.DrainByRecipient(recipientId, now)
	if err != nil {
		return nil, err
	}
	records := make([]PendingRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, PendingRecord{
			RecipientId:    row.RecipientId,
			ConversationId: row.ConversationId,
			MessageUuid:    row.MessageUuid,
			Payload:        []byte(row.Payload),
			SendAt:         row.SendAt,
			ExpireAt:       row.ExpireAt,
		})
	}
	return records, nil
}

var _ PendingStore = (*MysqlPendingStore)(nil)
