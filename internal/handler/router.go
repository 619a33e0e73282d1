package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jiyuchen1/AiHistory/internal/middleware"
)

// RouterOptions 汇总注册路由所需的依赖。
type RouterOptions struct {
	Dialogues *DialogueHandler
	Hub       *NotificationHub
	// Metrics 为 nil 时不暴露 /metrics。
	Metrics http.Handler
	// Auth 为 nil 时 API 不需要认证。
	Auth gin.HandlerFunc
}

// NewRouter 创建 Gin 引擎并注册全部路由。
func NewRouter(opts RouterOptions) *gin.Engine {
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	apiV1 := r.Group("/api/v1")
	if opts.Auth != nil {
		apiV1.Use(opts.Auth)
	}
	{
		dialogues := apiV1.Group("/dialogues")
		{
			dialogues.GET("", opts.Dialogues.List)
			dialogues.POST("", opts.Dialogues.Append)
			dialogues.DELETE("", opts.Dialogues.Clear)
			dialogues.DELETE("/:id", opts.Dialogues.Delete)
			dialogues.GET("/export", opts.Dialogues.Export)
			dialogues.POST("/import", opts.Dialogues.Import)
		}

		apiV1.GET("/notifications/ws", opts.Hub.Serve)
	}
	return r
}
