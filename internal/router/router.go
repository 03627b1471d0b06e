// Package router 装配 HTTP 路由
// 核心职责：
// 1. 注册 websocket 接入端点和健康检查端点
// 2. 挂载 CORS、访问日志、panic 恢复中间件
package router

import (
	"net/http"

	"github.com/jeffreyjose07/scalable-chat-platform-sub003/internal/infrastructure/logger"
	"github.com/jeffreyjose07/scalable-chat-platform-sub003/internal/service/chat"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter 创建并装配 gin 引擎
func NewRouter(server *chat.Server, allowedOrigins []string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(logger.GinLogger(), logger.GinRecovery(true))

	corsConfig := cors.DefaultConfig()
	if len(allowedOrigins) > 0 {
		corsConfig.AllowOrigins = allowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	r.Use(cors.New(corsConfig))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"online": server.Sessions.Len(),
		})
	})
	r.GET("/ws", server.Gateway.HandleUpgrade)

	return r
}
