// Package main 是 HTTP 服务的入口点。
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jiyuchen1/AiHistory/internal/config"
	"github.com/jiyuchen1/AiHistory/internal/handler"
	"github.com/jiyuchen1/AiHistory/internal/middleware"
	"github.com/jiyuchen1/AiHistory/internal/observability"
	"github.com/jiyuchen1/AiHistory/internal/repository"
	"github.com/jiyuchen1/AiHistory/internal/service"
	"github.com/jiyuchen1/AiHistory/pkg/log"
	"github.com/jiyuchen1/AiHistory/pkg/storage"
	"github.com/jiyuchen1/AiHistory/pkg/token"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "配置文件路径")
	flag.Parse()

	// 1. 初始化配置
	config.Init(*configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	if err := log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath); err != nil {
		panic(fmt.Errorf("初始化日志失败: %w", err))
	}
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	ctx := context.Background()

	// 3. 初始化持久化槽位
	repo, err := repository.NewSnapshotRepository(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("初始化存储失败: %v", err)
	}
	defer repo.Close()
	log.Infof("存储初始化成功, driver=%s", cfg.Storage.Driver)

	// 4. 初始化 Service，并从槽位载入历史记录
	metrics := observability.NewMetrics("aihistory")
	dialogueService := service.NewDialogueService(repo, service.WithRecorder(metrics))
	if err := dialogueService.Hydrate(ctx); err != nil {
		// 槽位损坏或不可读时以空记录启动
		log.Warnf("载入历史记录时出现问题: %v", err)
	}
	log.Infof("已载入 %d 条历史记录", dialogueService.Len())

	// 5. 可选的导出归档
	var archiver handler.ExportArchiver
	if cfg.Archive.Enabled {
		minioArchiver, err := storage.NewMinioArchiver(ctx, cfg.Archive)
		if err != nil {
			log.Fatalf("初始化导出归档失败: %v", err)
		}
		archiver = minioArchiver
	}

	// 6. 可选的认证
	auth := newAuth(cfg.Auth)

	// 7. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	hub := handler.NewNotificationHub(metrics)
	r := handler.NewRouter(handler.RouterOptions{
		Dialogues: handler.NewDialogueHandler(dialogueService, hub, archiver, int64(cfg.Storage.MaxBytes)),
		Hub:       hub,
		Metrics:   metrics.Handler(),
		Auth:      auth,
	})

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}
	log.Info("服务已优雅关闭")
}

// newAuth 在启用认证时返回 JWT 中间件，否则返回 nil。
// 服务端不签发令牌，令牌由 aihistory token 命令生成。
func newAuth(cfg config.AuthConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return nil
	}
	log.Info("API 已启用认证，请使用 aihistory token 命令获取访问令牌")
	jwtManager := token.NewJWTManager(cfg.Secret, cfg.TokenExpireHours)
	return middleware.AuthMiddleware(jwtManager, token.ScopeDialogues)
}
