package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/jeffreyjose07/scalable-chat-platform-sub003/pkg/errorx"
)

// flakyBroker 前 failures 次发布失败，之后成功
type flakyBroker struct {
	failures int
	attempts int
}

func (b *flakyBroker) Publish(ctx context.Context, event *DistributionEvent) error {
	b.attempts++
	if b.attempts <= b.failures {
		return errors.New("broker unavailable")
	}
	return nil
}

func (b *flakyBroker) Subscribe(handler EventHandler) {}
func (b *flakyBroker) Start(ctx context.Context)      {}
func (b *flakyBroker) Close() error                   { return nil }

func TestPublishRetriesUntilSuccess(t *testing.T) {
	broker := &flakyBroker{failures: 2}
	event := &DistributionEvent{Kind: EventMessage, ConversationId: "conv-1"}

	if err := publishWithRetry(context.Background(), broker, event, 3); err != nil {
		t.Fatalf("两次失败后第三次成功，不应返回错误: %v", err)
	}
	if broker.attempts != 3 {
		t.Fatalf("attempts = %d, want 3", broker.attempts)
	}
}

func TestPublishGivesUpAfterBoundedRetries(t *testing.T) {
	broker := &flakyBroker{failures: 100}
	event := &DistributionEvent{Kind: EventMessage, ConversationId: "conv-1"}

	err := publishWithRetry(context.Background(), broker, event, 3)
	if err == nil {
		t.Fatal("重试耗尽后应返回错误")
	}
	if errorx.GetCode(err) != errorx.CodePublishError {
		t.Fatalf("错误码 = %d, want CodePublishError", errorx.GetCode(err))
	}
	// 首次 + 3 次重试
	if broker.attempts != 4 {
		t.Fatalf("attempts = %d, want 4", broker.attempts)
	}
}

// 发布失败时发送者会收到错误帧，消息不进入分发
func TestChatPublishFailureNotifiesSender(t *testing.T) {
	tracker := NewStatusTracker(newMemMessageRepo(), newMemReceiptRepo())
	broker := &flakyBroker{failures: 100}
	handler := NewHandler(broker, tracker, newMemMessageRepo(),
		&memMemberRepo{members: map[string][]string{"conv-1": {"alice", "bob"}}}, 1, 0)

	alice := newTestConn("alice")
	handler.HandleFrame(alice, chatFrame("conv-1", "hi"))

	ack := recvFrame(t, alice, recvTimeout)
	if ack["type"] != "ack" {
		t.Fatalf("落库成功即回确认, got %v", ack)
	}
	errFrame := recvFrame(t, alice, recvTimeout)
	if errFrame["type"] != "error" {
		t.Fatalf("发布失败应回错误帧, got %v", errFrame)
	}
}
