// gateway.go
// 核心职责：websocket 接入网关
// 1. 升级前完成握手认证，token 非法直接拒绝不升级
// 2. 连接建立流程：登记会话表 -> 登记注册表 -> 补投积压 -> 置为 OPEN
// 3. 同一用户后连接胜出，旧连接被关闭
// 4. 断开清理走 CompareAndRemove，不会误删快速重连产生的新注册
package chat

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jeffreyjose07/scalable-chat-platform-sub003/internal/config"
	"github.com/jeffreyjose07/scalable-chat-platform-sub003/internal/dao/mysql/repository"
	"github.com/jeffreyjose07/scalable-chat-platform-sub003/internal/dao/redis"
	myjwt "github.com/jeffreyjose07/scalable-chat-platform-sub003/pkg/util/jwt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Authenticator 握手凭证校验：凭证有效时返回用户 ID
type Authenticator func(credential string) (userId string, err error)

// JWTAuthenticator 基于 JWT 的握手认证
func JWTAuthenticator(token string) (string, error) {
	claims, err := myjwt.ParseToken(token)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

// Gateway websocket 接入网关
type Gateway struct {
	instanceId string
	upgrader   websocket.Upgrader
	sessions   *SessionTable
	registry   redis.ConnRegistry
	pending    PendingStore
	handler    *Handler
	users      repository.UserRepository
	auth       Authenticator
}

func NewGateway(cfg *config.WebsocketConfig, instanceId string, sessions *SessionTable,
	registry redis.ConnRegistry, pending PendingStore, handler *Handler,
	users repository.UserRepository, auth Authenticator) *Gateway {
	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		allowed[origin] = struct{}{}
	}
	return &Gateway{
		instanceId: instanceId,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(allowed, r.Header.Get("Origin"))
			},
		},
		sessions: sessions,
		registry: registry,
		pending:  pending,
		handler:  handler,
		users:    users,
		auth:     auth,
	}
}

// originAllowed 握手 Origin 校验
// 放行：无 Origin 头（非浏览器客户端）、配置白名单精确命中、
// 以及回环和内网地址（本机调试与内网部署）
func originAllowed(allowed map[string]struct{}, origin string) bool {
	if origin == "" {
		return true
	}
	if _, ok := allowed[origin]; ok {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback() || ip.IsPrivate()
	}
	return false
}

// bearerToken 提取握手凭证：优先 token 查询参数，其次 Authorization 头
func bearerToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	auth := c.GetHeader("Authorization")
	return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
}

// HandleUpgrade GET /ws 的处理入口
// 认证失败返回 401，升级后连接的整个生命周期都在此协程内（读泵）
func (g *Gateway) HandleUpgrade(c *gin.Context) {
	userId, err := g.auth(bearerToken(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "认证失败"})
		return
	}
	user, err := g.users.FindByUuid(userId)
	if err != nil || user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "用户不存在"})
		return
	}
	username := user.Nickname
	if username == "" {
		username = user.Username
	}

	ws, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		zap.L().Error("websocket 升级失败", zap.Error(err))
		return
	}

	sessionId := uuid.NewString()
	conn := NewUserConn(sessionId, userId, username, ws, g.cleanup)

	// 后注册者胜出：挤掉同用户的旧连接
	if prev := g.sessions.Put(conn); prev != nil {
		zap.L().Info("用户重复连接，关闭旧会话",
			zap.String("userId", conn.UserId),
			zap.String("oldSessionId", prev.SessionId))
		prev.Close("replaced by newer session")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = g.registry.Register(ctx, conn.UserId, redis.Entry{InstanceId: g.instanceId, SessionId: sessionId})
	cancel()
	if err != nil {
		zap.L().Error("连接注册失败", zap.String("userId", conn.UserId), zap.Error(err))
		conn.Close("registry unavailable")
		return
	}

	go conn.writePump()

	g.drainPending(conn)
	conn.Open()
	zap.L().Info("连接建立",
		zap.String("userId", conn.UserId),
		zap.String("sessionId", sessionId),
		zap.Int("online", g.sessions.Len()))

	g.readPump(conn)
}

// drainPending 补投积压消息，按原始发送时间升序
// 补投成功即按送达处理，聚合状态照常推进
func (g *Gateway) drainPending(conn *UserConn) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	records, err := g.pending.Drain(ctx, conn.UserId, time.Now())
	if err != nil {
		zap.L().Error("补投积压失败", zap.String("userId", conn.UserId), zap.Error(err))
		return
	}
	for i := range records {
		rec := records[i]
		select {
		case conn.SendBack <- rec.Payload:
		case <-conn.done:
			return
		}
		g.handler.NoteDelivered(conn.UserId, rec.MessageUuid, rec.ConversationId, time.Now())
	}
	if len(records) > 0 {
		zap.L().Info("补投积压完成",
			zap.String("userId", conn.UserId),
			zap.Int("count", len(records)))
	}
}

// readPump 读泵：逐帧读取并交给处理器，读失败即关闭连接
func (g *Gateway) readPump(conn *UserConn) {
	for {
		_, raw, err := conn.Conn.ReadMessage()
		if err != nil {
			if IsExpectedClose(err) {
				zap.L().Info("对端正常断开", zap.String("userId", conn.UserId))
			} else {
				zap.L().Warn("读取失败，关闭连接", zap.String("userId", conn.UserId), zap.Error(err))
			}
			conn.Close("read failed")
			return
		}
		g.handler.HandleFrame(conn, raw)
	}
}

// cleanup 连接关闭后的清理回调
func (g *Gateway) cleanup(conn *UserConn, reason string) {
	g.sessions.Remove(conn.SessionId)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	removed, err := g.registry.CompareAndRemove(ctx, conn.UserId, conn.SessionId)
	if err != nil {
		zap.L().Error("注册表清理失败", zap.String("userId", conn.UserId), zap.Error(err))
		return
	}
	zap.L().Info("连接关闭",
		zap.String("userId", conn.UserId),
		zap.String("sessionId", conn.SessionId),
		zap.String("reason", reason),
		zap.Bool("registryRemoved", removed))
}
