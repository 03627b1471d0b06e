package chat

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jeffreyjose07/scalable-chat-platform-sub003/internal/dao/redis"
	"github.com/jeffreyjose07/scalable-chat-platform-sub003/pkg/enum/message/message_status_enum"
)

const recvTimeout = 2 * time.Second

// testCluster 用同一条进程内管道上的两个订阅者模拟两个服务实例
// 数据层（消息、回执、积压、注册表）对两个实例共享，与真实部署一致
type testCluster struct {
	broker   *ChannelBroker
	registry *MemoryRegistry
	pending  *MemoryPendingStore
	messages *memMessageRepo
	receipts *memReceiptRepo
	cancel   context.CancelFunc

	nodes map[string]*testNode
}

type testNode struct {
	id          string
	sessions    *SessionTable
	distributor *Distributor
	handler     *Handler
}

func newTestCluster(t *testing.T, members map[string][]string) *testCluster {
	t.Helper()
	cluster := &testCluster{
		broker:   NewChannelBroker(),
		registry: NewMemoryRegistry(),
		pending:  NewMemoryPendingStore(),
		messages: newMemMessageRepo(),
		receipts: newMemReceiptRepo(),
		nodes:    make(map[string]*testNode),
	}
	memberRepo := &memMemberRepo{members: members}
	tracker := NewStatusTracker(cluster.messages, cluster.receipts)
	retention := 24 * time.Hour

	for _, id := range []string{"node-1", "node-2"} {
		sessions := NewSessionTable()
		handler := NewHandler(cluster.broker, tracker, cluster.messages, memberRepo, 3, retention)
		node := &testNode{
			id:          id,
			sessions:    sessions,
			distributor: NewDistributor(id, sessions, cluster.registry, cluster.pending, handler, retention),
			handler:     handler,
		}
		cluster.broker.Subscribe(node.distributor.Handle)
		cluster.nodes[id] = node
	}

	ctx, cancel := context.WithCancel(context.Background())
	cluster.cancel = cancel
	cluster.broker.Start(ctx)
	t.Cleanup(func() {
		cancel()
		_ = cluster.broker.Close()
	})
	return cluster
}

// connect 将用户接入指定实例：登记会话表和注册表
func (c *testCluster) connect(t *testing.T, nodeId, userId string) *UserConn {
	t.Helper()
	node := c.nodes[nodeId]
	conn := newTestConn(userId)
	node.sessions.Put(conn)
	err := c.registry.Register(context.Background(), userId,
		redis.Entry{InstanceId: nodeId, SessionId: conn.SessionId})
	if err != nil {
		t.Fatal(err)
	}
	return conn
}

func chatFrame(conversationId, content string) []byte {
	return []byte(fmt.Sprintf(`{"conversationId":%q,"content":%q,"type":"TEXT"}`, conversationId, content))
}

func readFrame(messageId string) []byte {
	return []byte(fmt.Sprintf(`{"type":"MESSAGE_READ","data":{"messageId":%q,"timestamp":%d}}`,
		messageId, time.Now().UnixMilli()))
}

// 消息跨实例扇出：发送者收到确认和回显，另一实例上的接收者收到消息，
// 入站帧伪造的发送者身份被服务端覆盖
func TestMessageFanOutAcrossInstances(t *testing.T) {
	cluster := newTestCluster(t, map[string][]string{"conv-1": {"alice", "bob"}})
	alice := cluster.connect(t, "node-1", "alice")
	bob := cluster.connect(t, "node-2", "bob")

	raw := []byte(`{"conversationId":"conv-1","content":"你好","type":"TEXT","senderId":"mallory"}`)
	cluster.nodes["node-1"].handler.HandleFrame(alice, raw)

	// 发送者先收到确认（落库即确认，先于发布）
	ack := recvFrame(t, alice, recvTimeout)
	if ack["type"] != "ack" {
		t.Fatalf("发送者应先收到 ack，got %v", ack)
	}
	messageId, _ := ack["messageId"].(string)
	if messageId == "" {
		t.Fatal("ack 必须携带服务端分配的消息 ID")
	}

	// 接收者收到裸消息对象
	msg := recvFrame(t, bob, recvTimeout)
	if msg["conversationId"] != "conv-1" || msg["content"] != "你好" {
		t.Fatalf("消息内容错误: %v", msg)
	}
	if msg["senderId"] != "alice" {
		t.Fatalf("伪造的发送者身份必须被服务端覆盖, got %v", msg["senderId"])
	}
	if msg["messageId"] != messageId {
		t.Fatal("下发消息的 ID 应与 ack 一致")
	}

	// 发送者也收到自己消息的回显
	echo := recvFrame(t, alice, recvTimeout)
	if echo["messageId"] != messageId {
		t.Fatalf("发送者应收到回显: %v", echo)
	}
}

// 离线接收者的消息入积压队列，且两个实例都判定离线也只入队一条
func TestOfflineRecipientQueuedOnce(t *testing.T) {
	cluster := newTestCluster(t, map[string][]string{"conv-1": {"alice", "bob"}})
	alice := cluster.connect(t, "node-1", "alice")
	// bob 不在线

	cluster.nodes["node-1"].handler.HandleFrame(alice, chatFrame("conv-1", "离线消息"))
	recvFrame(t, alice, recvTimeout) // ack
	recvFrame(t, alice, recvTimeout) // 回显

	// 等两个订阅者都处理完事件
	time.Sleep(100 * time.Millisecond)

	records, err := cluster.pending.Drain(context.Background(), "bob", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("积压队列应恰有一条, got %d", len(records))
	}
	if records[0].RecipientId != "bob" || records[0].ConversationId != "conv-1" {
		t.Fatalf("积压记录内容错误: %+v", records[0])
	}
}

// 核心跨实例场景：alice 在实例一发消息，bob 在实例二已读，
// alice 必须收到 READ 状态通知，消息聚合状态推进到 READ
func TestCrossInstanceReadReceipt(t *testing.T) {
	cluster := newTestCluster(t, map[string][]string{"conv-1": {"alice", "bob"}})
	alice := cluster.connect(t, "node-1", "alice")
	bob := cluster.connect(t, "node-2", "bob")

	cluster.nodes["node-1"].handler.HandleFrame(alice, chatFrame("conv-1", "在吗"))
	ack := recvFrame(t, alice, recvTimeout)
	messageId := ack["messageId"].(string)
	recvFrame(t, alice, recvTimeout) // alice 的回显
	recvFrame(t, bob, recvTimeout)   // bob 收到消息

	// bob 在实例二发出已读回执
	cluster.nodes["node-2"].handler.HandleFrame(bob, readFrame(messageId))

	// alice 在实例一收到 READ 状态通知（之前可能先有一条 DELIVERED）
	var status map[string]any
	for {
		status = recvFrame(t, alice, recvTimeout)
		if status["type"] == "MESSAGE_STATUS" && status["status"] == "READ" {
			break
		}
	}
	if status["messageId"] != messageId {
		t.Fatalf("状态通知内容错误: %v", status)
	}

	// 聚合状态推进到 READ
	var uuid int64
	if _, err := fmt.Sscanf(messageId, "%d", &uuid); err != nil {
		t.Fatal(err)
	}
	msg, err := cluster.messages.FindByUuid(uuid)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Status != message_status_enum.Read {
		t.Fatalf("status = %s, want READ", message_status_enum.Name(msg.Status))
	}

	// 重复已读回执：幂等，不再有第二次广播
	cluster.nodes["node-2"].handler.HandleFrame(bob, readFrame(messageId))
	expectNoFrame(t, alice, 200*time.Millisecond)
}

// 非法帧：回错误帧，连接保持，绝不进入分发管道
func TestInvalidFrameRejectedWithoutPublish(t *testing.T) {
	cluster := newTestCluster(t, map[string][]string{"conv-1": {"alice", "bob"}})
	alice := cluster.connect(t, "node-1", "alice")
	bob := cluster.connect(t, "node-2", "bob")

	cluster.nodes["node-1"].handler.HandleFrame(alice, []byte(`{"content":"缺会话 ID"}`))

	errFrame := recvFrame(t, alice, recvTimeout)
	if errFrame["type"] != "error" {
		t.Fatalf("应收到错误帧, got %v", errFrame)
	}
	if !alice.IsOpen() {
		t.Fatal("非法帧不应导致断连")
	}
	expectNoFrame(t, bob, 200*time.Millisecond)
}

// 未知会话：拒绝并回错误帧
func TestUnknownConversationRejected(t *testing.T) {
	cluster := newTestCluster(t, map[string][]string{"conv-1": {"alice", "bob"}})
	alice := cluster.connect(t, "node-1", "alice")

	cluster.nodes["node-1"].handler.HandleFrame(alice, chatFrame("conv-ghost", "hi"))
	errFrame := recvFrame(t, alice, recvTimeout)
	if errFrame["type"] != "error" {
		t.Fatalf("应收到错误帧, got %v", errFrame)
	}
}

// 离线用户重连后补投：按序收到积压消息，聚合状态推进到 DELIVERED
// 并且发送者收到 DELIVERED 状态通知
func TestReconnectDrainsPending(t *testing.T) {
	cluster := newTestCluster(t, map[string][]string{"conv-1": {"alice", "bob"}})
	alice := cluster.connect(t, "node-1", "alice")

	var messageIds []string
	for i := 0; i < 3; i++ {
		cluster.nodes["node-1"].handler.HandleFrame(alice, chatFrame("conv-1", fmt.Sprintf("第 %d 条", i)))
		ack := recvFrame(t, alice, recvTimeout)
		messageIds = append(messageIds, ack["messageId"].(string))
		recvFrame(t, alice, recvTimeout) // 回显
	}
	time.Sleep(100 * time.Millisecond)

	// bob 上线，模拟网关的补投流程
	bob := cluster.connect(t, "node-2", "bob")
	records, err := cluster.pending.Drain(context.Background(), "bob", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("积压条数 = %d, want 3", len(records))
	}
	node2 := cluster.nodes["node-2"]
	for i := range records {
		bob.SendBack <- records[i].Payload
		node2.handler.NoteDelivered("bob", records[i].MessageUuid, records[i].ConversationId, time.Now())
	}

	// bob 按原始发送顺序收到全部积压（跳过穿插的状态通知）
	for i, want := range messageIds {
		var msg map[string]any
		for {
			msg = recvFrame(t, bob, recvTimeout)
			if msg["type"] != "MESSAGE_STATUS" {
				break
			}
		}
		if msg["messageId"] != want {
			t.Fatalf("补投顺序错误: 位置 %d 收到 %v, want %s", i, msg["messageId"], want)
		}
	}

	// 第一条消息聚合状态已到 DELIVERED
	var uuid int64
	if _, err := fmt.Sscanf(messageIds[0], "%d", &uuid); err != nil {
		t.Fatal(err)
	}
	msg, _ := cluster.messages.FindByUuid(uuid)
	if msg.Status != message_status_enum.Delivered {
		t.Fatalf("status = %s, want DELIVERED", message_status_enum.Name(msg.Status))
	}

	// alice 收到 DELIVERED 状态通知
	var status map[string]any
	for {
		status = recvFrame(t, alice, recvTimeout)
		if status["type"] == "MESSAGE_STATUS" {
			break
		}
	}
	if status["status"] != "DELIVERED" {
		t.Fatalf("状态通知内容错误: %v", status)
	}
}

// 慢消费者直投失败：连接被断开，消息转入积压队列而不是丢失
func TestSlowConsumerFallsBackToPending(t *testing.T) {
	cluster := newTestCluster(t, map[string][]string{"conv-1": {"alice", "bob"}})
	alice := cluster.connect(t, "node-1", "alice")
	bob := cluster.connect(t, "node-2", "bob")

	// 直接塞满 bob 的发送缓冲，连接保持 OPEN，模拟消费停滞
	for i := 0; i < cap(bob.SendBack); i++ {
		bob.SendBack <- []byte(`{}`)
	}

	cluster.nodes["node-1"].handler.HandleFrame(alice, chatFrame("conv-1", "迟到的消息"))
	ack := recvFrame(t, alice, recvTimeout)
	messageId := ack["messageId"].(string)
	recvFrame(t, alice, recvTimeout) // 回显
	time.Sleep(100 * time.Millisecond)

	// 直投失败断开慢消费者
	if bob.IsOpen() {
		t.Fatal("直投失败后慢消费者连接应已关闭")
	}

	records, err := cluster.pending.Drain(context.Background(), "bob", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("直投失败的消息应入积压队列, got %d 条", len(records))
	}
	var uuid int64
	if _, err := fmt.Sscanf(messageId, "%d", &uuid); err != nil {
		t.Fatal(err)
	}
	if records[0].MessageUuid != uuid {
		t.Fatalf("积压记录消息 ID 错误: %+v", records[0])
	}
}
