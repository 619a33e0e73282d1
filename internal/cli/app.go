// Package cli 实现终端版的对话记录工具，作为存储的另一个调用方。
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/jiyuchen1/AiHistory/internal/config"
	"github.com/jiyuchen1/AiHistory/internal/repository"
	"github.com/jiyuchen1/AiHistory/internal/service"
	"github.com/jiyuchen1/AiHistory/pkg/log"
	"github.com/spf13/cobra"
)

// App 持有一次命令执行期间的依赖。
type App struct {
	configPath string
	cfg        config.Config
	repo       repository.SnapshotRepository
	svc        service.DialogueService

	// openRepo 可在测试中替换，以避免访问真实存储。
	openRepo func(ctx context.Context, cfg config.StorageConfig) (repository.SnapshotRepository, error)
}

// NewApp 创建一个使用真实存储的 App。
func NewApp() *App {
	return &App{openRepo: repository.NewSnapshotRepository}
}

// NewRootCmd 创建 aihistory 根命令。
func NewRootCmd(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "aihistory",
		Short:         "记录、导出和导入问答对话历史",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.open(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.close()
		},
	}
	root.PersistentFlags().StringVarP(&app.configPath, "config", "c", "./configs/config.yaml", "YAML 配置文件路径")

	root.AddCommand(
		listCmd(app),
		addCmd(app),
		deleteCmd(app),
		importCmd(app),
		exportCmd(app),
		clearCmd(app),
		tokenCmd(app),
	)
	return root
}

// Execute 运行根命令。report 未输出过的错误（参数、配置等）在这里统一输出一次。
func Execute(ctx context.Context, app *App) error {
	root := NewRootCmd(app)
	err := root.ExecuteContext(ctx)
	var reported *reportedError
	if err != nil && !errors.As(err, &reported) {
		notify(root.ErrOrStderr(), service.LevelError, err.Error())
	}
	return err
}

// reportedError 标记已经由 report 输出过的错误。
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }

func (e *reportedError) Unwrap() error { return e.err }

func (a *App) open(ctx context.Context) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	if err := log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath); err != nil {
		return err
	}

	repo, err := a.openRepo(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("打开存储失败: %w", err)
	}
	a.repo = repo
	a.svc = service.NewDialogueService(repo)

	// 槽位损坏或不可读时只提示，继续以空记录运行
	if err := a.svc.Hydrate(ctx); err != nil {
		log.Warnf("载入历史记录时出现问题: %v", err)
	}
	return nil
}

func (a *App) close() error {
	log.Sync()
	if a.repo == nil {
		return nil
	}
	return a.repo.Close()
}

// notify 按提示级别着色输出操作结果。
func notify(w io.Writer, level service.Level, message string) {
	var c *color.Color
	switch level {
	case service.LevelSuccess:
		c = color.New(color.FgGreen)
	case service.LevelInfo:
		c = color.New(color.FgCyan)
	case service.LevelWarning:
		c = color.New(color.FgYellow)
	default:
		c = color.New(color.FgRed)
	}
	c.Fprintln(w, message)
}

// report 输出 err 对应的提示。只有真正的错误才让命令以非零状态退出。
func report(cmd *cobra.Command, err error, success string) error {
	level := service.Classify(err)
	switch level {
	case service.LevelSuccess:
		notify(cmd.OutOrStdout(), level, success)
		return nil
	case service.LevelInfo:
		notify(cmd.OutOrStdout(), level, service.Describe(err, success))
		return nil
	case service.LevelWarning:
		log.Warnf("%v", err)
		notify(cmd.ErrOrStderr(), level, service.Describe(err, success))
		return nil
	}
	notify(cmd.ErrOrStderr(), level, service.Describe(err, success))
	return &reportedError{err: err}
}

// confirm 在终端上询问 y/N。assumeYes 为 true 时直接通过。
func confirm(cmd *cobra.Command, assumeYes bool, prompt string) bool {
	if assumeYes {
		return true
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N]: ", prompt)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
