package chat

import (
	"testing"
	"time"
)

func TestMonitorPingAll(t *testing.T) {
	sessions := NewSessionTable()
	alice := newTestConn("alice")
	bob := newTestConn("bob")
	sessions.Put(alice)
	sessions.Put(bob)

	monitor := NewMonitor(sessions, time.Minute, time.Minute, 30*time.Minute)
	monitor.PingAll(time.Now())

	for _, conn := range []*UserConn{alice, bob} {
		frame := recvFrame(t, conn, time.Second)
		if frame["type"] != "ping" {
			t.Fatalf("应收到 ping 探测帧, got %v", frame)
		}
		if _, ok := frame["timestamp"]; !ok {
			t.Fatal("ping 帧必须携带时间戳")
		}
	}
}

func TestMonitorReapsIdleConnections(t *testing.T) {
	sessions := NewSessionTable()
	idle := newTestConn("idle_user")
	active := newTestConn("active_user")
	sessions.Put(idle)
	sessions.Put(active)

	now := time.Now()
	idle.Touch(now.Add(-31 * time.Minute))
	active.Touch(now.Add(-time.Minute))

	closed := make(map[string]bool)
	idle.onClose = func(c *UserConn, reason string) { closed[c.UserId] = true }
	active.onClose = func(c *UserConn, reason string) { closed[c.UserId] = true }

	monitor := NewMonitor(sessions, time.Minute, time.Minute, 30*time.Minute)
	monitor.Reap(now)

	if !closed["idle_user"] {
		t.Fatal("空闲超时连接应被回收")
	}
	if closed["active_user"] {
		t.Fatal("活跃连接不应被回收")
	}
	if idle.State() != StateClosed {
		t.Fatalf("state = %d, want StateClosed", idle.State())
	}
	if !active.IsOpen() {
		t.Fatal("活跃连接应保持 OPEN")
	}
}

// 入站帧刷新活跃时间，客户端主动 ping 同样续命
func TestInboundFrameRefreshesActivity(t *testing.T) {
	tracker := NewStatusTracker(newMemMessageRepo(), newMemReceiptRepo())
	handler := NewHandler(NewChannelBroker(), tracker, newMemMessageRepo(),
		&memMemberRepo{members: map[string][]string{}}, 3, time.Hour)

	conn := newTestConn("alice")
	stale := time.Now().Add(-20 * time.Minute)
	conn.Touch(stale)

	handler.HandleFrame(conn, []byte(`{"type":"ping"}`))

	if !conn.LastActive().After(stale.Add(time.Minute)) {
		t.Fatal("入站帧应刷新活跃时间")
	}
	pong := recvFrame(t, conn, time.Second)
	if pong["type"] != "pong" {
		t.Fatalf("ping 应得到 pong 应答, got %v", pong)
	}
}

func TestDeliverToSlowConsumerCloses(t *testing.T) {
	conn := newTestConn("slow")
	var closedReason string
	conn.onClose = func(c *UserConn, reason string) { closedReason = reason }

	// 塞满发送缓冲
	for {
		select {
		case conn.SendBack <- []byte("x"):
			continue
		default:
		}
		break
	}

	if ok := conn.Deliver([]byte("overflow")); ok {
		t.Fatal("缓冲已满时投递应失败")
	}
	if conn.State() != StateClosed {
		t.Fatal("慢消费者应被断开")
	}
	if closedReason != "send buffer full" {
		t.Fatalf("关闭原因 = %q", closedReason)
	}

	// 关闭后的投递直接失败
	if ok := conn.Deliver([]byte("late")); ok {
		t.Fatal("关闭后的投递应失败")
	}
}

// 单个连接处理 panic 不得中断整轮巡检，其余连接照常探测与回收
func TestMonitorSurvivesPanickingSession(t *testing.T) {
	sessions := NewSessionTable()
	broken := newTestConn("broken_user")
	healthy := newTestConn("healthy_user")
	sessions.Put(broken)
	sessions.Put(healthy)

	// 人为制造 panic：向已关闭的通道投递
	close(broken.SendBack)

	monitor := NewMonitor(sessions, time.Minute, time.Minute, 30*time.Minute)
	monitor.PingAll(time.Now())

	frame := recvFrame(t, healthy, time.Second)
	if frame["type"] != "ping" {
		t.Fatalf("正常连接应照常收到 ping, got %v", frame)
	}

	// 回收阶段：关闭回调 panic 同样只影响自身
	now := time.Now()
	broken.Touch(now.Add(-31 * time.Minute))
	healthy.Touch(now.Add(-31 * time.Minute))
	broken.onClose = func(c *UserConn, reason string) { panic("清理失败") }

	monitor.Reap(now)

	if healthy.State() != StateClosed {
		t.Fatal("其余空闲连接应照常被回收")
	}
}
