// conn.go
// 核心职责：单条活跃连接的生命周期管理
// 1. 维护连接状态机 CONNECTING -> OPEN -> CLOSING -> CLOSED
// 2. 每连接两个协程：读泵（readPump）和写泵（writePump）
// 3. 出站投递非阻塞，发送缓冲满视为慢消费者并断开
package chat

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jeffreyjose07/scalable-chat-platform-sub003/pkg/constants"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// 连接状态机取值
const (
	StateConnecting int32 = iota
	StateOpen
	StateClosing
	StateClosed
)

// UserConn 代表一条已认证的活跃连接
// Conn 允许为 nil（测试中可只用 SendBack 通道观察出站帧）
type UserConn struct {
	SessionId string
	UserId    string
	Username  string

	Conn     *websocket.Conn
	SendBack chan []byte   // 出站帧缓冲，由写泵消费
	done     chan struct{} // 关闭信号，写泵退出用

	state      atomic.Int32
	lastActive atomic.Int64 // UnixMilli，入站任意帧都会刷新
	closeOnce  sync.Once

	// onClose 在连接进入 CLOSED 后回调一次，用于会话表和注册表清理
	onClose func(c *UserConn, reason string)
}

// NewUserConn 创建连接对象，初始状态 CONNECTING
func NewUserConn(sessionId, userId, username string, ws *websocket.Conn, onClose func(c *UserConn, reason string)) *UserConn {
	c := &UserConn{
		SessionId: sessionId,
		UserId:    userId,
		Username:  username,
		Conn:      ws,
		SendBack:  make(chan []byte, constants.SEND_BUFFER_SIZE),
		done:      make(chan struct{}),
		onClose:   onClose,
	}
	c.state.Store(StateConnecting)
	c.Touch(time.Now())
	return c
}

// Open 将连接置为 OPEN，注册和补投完成后调用
func (c *UserConn) Open() {
	c.state.CompareAndSwap(StateConnecting, StateOpen)
}

// State 返回当前状态
func (c *UserConn) State() int32 {
	return c.state.Load()
}

// IsOpen 连接是否处于可收发状态
func (c *UserConn) IsOpen() bool {
	return c.state.Load() == StateOpen
}

// Touch 刷新最后活跃时间，入站任何帧（包括 pong）都算活跃
func (c *UserConn) Touch(now time.Time) {
	c.lastActive.Store(now.UnixMilli())
}

// LastActive 返回最后活跃时间
func (c *UserConn) LastActive() time.Time {
	return time.UnixMilli(c.lastActive.Load())
}

// Deliver 非阻塞投递一帧出站数据
// 缓冲已满说明对端消费过慢，返回 false 并关闭连接，
// 未投出的消息由补投通道兜底，不在此处等待
func (c *UserConn) Deliver(frame []byte) bool {
	if c.state.Load() != StateOpen {
		return false
	}
	select {
	case c.SendBack <- frame:
		return true
	default:
		zap.L().Warn("发送缓冲已满，断开慢消费者", zap.String("userId", c.UserId), zap.String("sessionId", c.SessionId))
		c.Close("send buffer full")
		return false
	}
}

// Close 幂等关闭连接并触发 onClose 清理回调
func (c *UserConn) Close(reason string) {
	c.closeOnce.Do(func() {
		c.state.Store(StateClosing)
		close(c.done)
		if c.Conn != nil {
			_ = c.Conn.Close()
		}
		c.state.Store(StateClosed)
		if c.onClose != nil {
			c.onClose(c, reason)
		}
	})
}

// writePump 写泵：串行消费 SendBack，保证对 websocket 连接的独占写
func (c *UserConn) writePump() {
	for {
		select {
		case <-c.done:
			return
		case frame, ok := <-c.SendBack:
			if !ok {
				return
			}
			if c.Conn == nil {
				continue
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				if IsExpectedClose(err) {
					zap.L().Debug("对端已断开，写泵退出", zap.String("userId", c.UserId))
				} else {
					zap.L().Error("写入失败", zap.Error(err), zap.String("userId", c.UserId))
				}
				c.Close("write failed")
				return
			}
		}
	}
}

// IsExpectedClose 判断是否为正常的对端关闭，降低日志级别用
func IsExpectedClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived)
}
