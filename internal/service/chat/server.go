// server.go
// 核心职责：聊天服务的装配与生命周期
// 1. 按 messageMode 选择分发管道实现（channel / kafka）
// 2. 装配会话表、分发器、处理器、网关、心跳监控、过期清理
// 3. 提供优雅关停：停止消费、回收全部连接、关闭管道
package chat

import (
	"context"
	"time"

	"github.com/jeffreyjose07/scalable-chat-platform-sub003/internal/config"
	"github.com/jeffreyjose07/scalable-chat-platform-sub003/internal/dao/mysql/repository"
	"github.com/jeffreyjose07/scalable-chat-platform-sub003/internal/dao/redis"

	"go.uber.org/zap"
)

// Server 聊天服务聚合根
type Server struct {
	Sessions *SessionTable
	Gateway  *Gateway

	broker      MessageBroker
	distributor *Distributor
	handler     *Handler
	monitor     *Monitor
	repos       *repository.Repositories

	purgeInterval time.Duration
	cancel        context.CancelFunc
}

// NewServer 装配聊天服务
// 进程内模式（channel）用于单实例部署，kafka 模式用于多实例横向扩展
func NewServer(conf *config.Config, repos *repository.Repositories, registry redis.ConnRegistry) *Server {
	retention := time.Duration(conf.RetentionConfig.HorizonHours) * time.Hour
	instanceId := conf.MainConfig.InstanceId

	var broker MessageBroker
	if conf.KafkaConfig.MessageMode == "kafka" {
		broker = NewKafkaBroker(&conf.KafkaConfig, instanceId)
	} else {
		broker = NewChannelBroker()
	}

	sessions := NewSessionTable()
	pending := NewMysqlPendingStore(repos.Pending)
	tracker := NewStatusTracker(repos.Message, repos.Receipt)
	handler := NewHandler(broker, tracker, repos.Message, repos.Member, conf.KafkaConfig.MaxRetries, retention)
	distributor := NewDistributor(instanceId, sessions, registry, pending, handler, retention)
	broker.Subscribe(distributor.Handle)

	gateway := NewGateway(&conf.WebsocketConfig, instanceId, sessions, registry, pending, handler, repos.User, JWTAuthenticator)
	monitor := NewMonitor(sessions,
		time.Duration(conf.WebsocketConfig.PingIntervalMin)*time.Minute,
		time.Duration(conf.WebsocketConfig.ReapIntervalMin)*time.Minute,
		time.Duration(conf.WebsocketConfig.IdleTimeoutMin)*time.Minute)

	return &Server{
		Sessions:      sessions,
		Gateway:       gateway,
		broker:        broker,
		distributor:   distributor,
		handler:       handler,
		monitor:       monitor,
		repos:         repos,
		purgeInterval: time.Duration(conf.RetentionConfig.PurgeIntervalMin) * time.Minute,
	}
}

// Start 启动管道消费、心跳监控和过期清理
func (s *Server) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.broker.Start(ctx)
	s.monitor.Start()
	go s.purgeLoop(ctx)
	zap.L().Info("聊天服务已启动")
}

// Shutdown 优雅关停
func (s *Server) Shutdown() {
	if s.cancel != nil {
		s.cancel()
	}
	s.monitor.Stop()
	for _, conn := range s.Sessions.Snapshot() {
		conn.Close("server shutdown")
	}
	if err := s.broker.Close(); err != nil {
		zap.L().Error("关闭分发管道失败", zap.Error(err))
	}
	zap.L().Info("聊天服务已关停")
}

// purgeLoop 周期性物理删除超过保留期的消息和积压
func (s *Server) purgeLoop(ctx context.Context) {
	ticker := time.NewTicker(s.purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			messages, err := s.repos.Message.PurgeExpired(now)
			if err != nil {
				zap.L().Error("清理过期消息失败", zap.Error(err))
			}
			pendings, err := s.repos.Pending.PurgeExpired(now)
			if err != nil {
				zap.L().Error("清理过期积压失败", zap.Error(err))
			}
			if messages > 0 || pendings > 0 {
				zap.L().Info("过期数据清理完成",
					zap.Int64("messages", messages),
					zap.Int64("pendings", pendings))
			}
		}
	}
}
