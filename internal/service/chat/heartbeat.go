// heartbeat.go
// 核心职责：连接存活监控
// 1. 周期性向所有连接发送 ping 探测帧
// 2. 周期性巡检并回收超过空闲阈值的僵尸连接
// 入站任何帧（不只 pong）都刷新活跃时间，客户端主动 ping 同样续命
package chat

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Monitor 心跳与回收监控器
type Monitor struct {
	sessions     *SessionTable
	pingInterval time.Duration
	reapInterval time.Duration
	idleTimeout  time.Duration

	done chan struct{}
	once sync.Once
}

func NewMonitor(sessions *SessionTable, pingInterval, reapInterval, idleTimeout time.Duration) *Monitor {
	return &Monitor{
		sessions:     sessions,
		pingInterval: pingInterval,
		reapInterval: reapInterval,
		idleTimeout:  idleTimeout,
		done:         make(chan struct{}),
	}
}

// Start 启动 ping 协程和回收协程
func (m *Monitor) Start() {
	go m.pingLoop()
	go m.reapLoop()
}

func (m *Monitor) Stop() {
	m.once.Do(func() { close(m.done) })
}

func (m *Monitor) pingLoop() {
	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case now := <-ticker.C:
			m.PingAll(now)
		}
	}
}

func (m *Monitor) reapLoop() {
	ticker := time.NewTicker(m.reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case now := <-ticker.C:
			m.Reap(now)
		}
	}
}

// PingAll 向所有 OPEN 连接发送探测帧
// 单个连接处理 panic 只跳过该连接，不中断整轮巡检
func (m *Monitor) PingAll(now time.Time) {
	for _, conn := range m.sessions.Snapshot() {
		m.pingSession(conn, now)
	}
}

func (m *Monitor) pingSession(conn *UserConn, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("心跳探测 panic",
				zap.String("sessionId", conn.SessionId),
				zap.Any("panic", r))
		}
	}()
	if conn.IsOpen() {
		conn.Deliver(PingFrame(now))
	}
}

// Reap 回收空闲超时的连接
// 单个连接的关闭回调 panic 只跳过该连接，不中断整轮巡检
func (m *Monitor) Reap(now time.Time) {
	for _, conn := range m.sessions.Snapshot() {
		m.reapSession(conn, now)
	}
}

func (m *Monitor) reapSession(conn *UserConn, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("连接回收 panic",
				zap.String("sessionId", conn.SessionId),
				zap.Any("panic", r))
		}
	}()
	if now.Sub(conn.LastActive()) > m.idleTimeout {
		zap.L().Info("连接空闲超时，强制回收",
			zap.String("userId", conn.UserId),
			zap.String("sessionId", conn.SessionId),
			zap.Time("lastActive", conn.LastActive()))
		conn.Close("idle timeout")
	}
}
