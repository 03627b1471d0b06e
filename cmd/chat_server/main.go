// 聊天服务入口
// 初始化顺序：配置 -> 日志 -> 雪花 ID -> MySQL -> Redis -> JWT -> 聊天服务 -> HTTP 服务
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeffreyjose07/scalable-chat-platform-sub003/internal/config"
	"github.com/jeffreyjose07/scalable-chat-platform-sub003/internal/dao/mysql"
	"github.com/jeffreyjose07/scalable-chat-platform-sub003/internal/dao/redis"
	"github.com/jeffreyjose07/scalable-chat-platform-sub003/internal/infrastructure/logger"
	"github.com/jeffreyjose07/scalable-chat-platform-sub003/internal/router"
	"github.com/jeffreyjose07/scalable-chat-platform-sub003/internal/service/chat"
	"github.com/jeffreyjose07/scalable-chat-platform-sub003/pkg/util/jwt"
	"github.com/jeffreyjose07/scalable-chat-platform-sub003/pkg/util/snowflake"

	"go.uber.org/zap"
)

func main() {
	conf := config.GetConfig()

	if err := logger.Init(&conf.LogConfig, conf.MainConfig.AppName); err != nil {
		fmt.Printf("日志初始化失败: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = zap.L().Sync() }()

	snowflake.Init(conf.SnowflakeConfig.MachineID)
	mysql.Init()
	if err := redis.Init(); err != nil {
		zap.L().Fatal("redis 初始化失败", zap.Error(err))
	}
	jwt.Init(conf.JWTConfig.Secret, conf.JWTConfig.AccessTokenExpiry)

	chatServer := chat.NewServer(conf, mysql.Repos, redis.GetConnRegistry())
	chatServer.Start()

	engine := router.NewRouter(chatServer, conf.WebsocketConfig.AllowedOrigins)
	addr := fmt.Sprintf("%s:%d", conf.MainConfig.Host, conf.MainConfig.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: engine,
	}

	go func() {
		zap.L().Info("HTTP 服务启动",
			zap.String("addr", addr),
			zap.String("instanceId", conf.MainConfig.InstanceId),
			zap.String("messageMode", conf.KafkaConfig.MessageMode))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Fatal("HTTP 服务异常退出", zap.Error(err))
		}
	}()

	// 等待退出信号，优雅关停
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.L().Info("收到退出信号，开始关停")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		zap.L().Error("HTTP 服务关停失败", zap.Error(err))
	}
	chatServer.Shutdown()
}
