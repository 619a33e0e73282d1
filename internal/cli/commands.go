package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/jiyuchen1/AiHistory/internal/model"
	"github.com/jiyuchen1/AiHistory/internal/service"
	"github.com/jiyuchen1/AiHistory/pkg/token"
	"github.com/spf13/cobra"
)

func listCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "按顺序列出全部记录",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			records := app.svc.Records()
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				notify(out, service.LevelInfo, "还没有任何记录")
				return nil
			}
			dim := color.New(color.Faint)
			for _, rec := range records {
				label := "Q"
				if rec.Role == model.RoleResponder {
					label = "A"
				}
				dim.Fprintf(out, "[%s] %s  %s\n", label, rec.Timestamp, rec.ID)
				fmt.Fprintln(out, rec.Dialogue)
				if rec.Think != "" {
					dim.Fprintf(out, "  思考: %s\n", rec.Think)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}

func addCmd(app *App) *cobra.Command {
	var role, think string
	cmd := &cobra.Command{
		Use:   "add <dialogue>",
		Short: "在历史末尾追加一条记录",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, ok := model.ParseRole(role)
			if !ok {
				return report(cmd, fmt.Errorf("%w: %q", service.ErrInvalidRole, role), "")
			}
			rec, err := app.svc.Append(cmd.Context(), r, strings.Join(args, " "), think)
			return report(cmd, err, fmt.Sprintf("记录已保存: %s", rec.ID))
		},
	}
	cmd.Flags().StringVarP(&role, "role", "r", string(model.RoleQuestioner), "发言方: user 或 assistant")
	cmd.Flags().StringVarP(&think, "think", "t", "", "思考过程，只有 assistant 的记录会保留")
	return cmd
}

func deleteCmd(app *App) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "删除一条记录",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			err := app.svc.Delete(cmd.Context(), args[0], func(rec model.TurnRecord) bool {
				return confirm(cmd, yes, fmt.Sprintf("确定删除 %q 吗?", preview(rec.Dialogue)))
			})
			return report(cmd, err, "记录已删除")
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "跳过确认")
	return cmd
}

func importCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json>",
		Short: "从导出的 JSON 文件导入记录，新记录排在最前面",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if !strings.EqualFold(filepath.Ext(path), ".json") {
				return report(cmd, errors.New("只能导入 JSON 文件"), "")
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return report(cmd, err, "")
			}
			n, err := app.svc.ImportBatch(cmd.Context(), data)
			return report(cmd, err, fmt.Sprintf("成功导入 %d 条记录", n))
		},
	}
}

func exportCmd(app *App) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "把全部记录导出为可再次导入的 JSON 文件",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := app.svc.ExportSnapshot(cmd.Context())
			if err != nil {
				return report(cmd, err, "")
			}
			if out == "-" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}
			if out == "" {
				out = service.ExportFilename(time.Now())
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return report(cmd, err, "")
			}
			return report(cmd, nil, fmt.Sprintf("已导出 %d 条记录到 %s", app.svc.Len(), out))
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "输出路径，\"-\" 表示标准输出（默认 dialogue-history-<日期>.json）")
	return cmd
}

func clearCmd(app *App) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "清空全部记录",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := app.svc.Clear(cmd.Context(), func() bool {
				return confirm(cmd, yes, fmt.Sprintf("确定删除全部 %d 条记录吗?", app.svc.Len()))
			})
			return report(cmd, err, "已清空全部记录")
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "跳过确认")
	return cmd
}

func tokenCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "生成访问 HTTP API 的令牌",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.cfg.Auth.Secret == "" {
				return report(cmd, errors.New("未配置 auth.secret"), "")
			}
			m := token.NewJWTManager(app.cfg.Auth.Secret, app.cfg.Auth.TokenExpireHours)
			tok, err := m.GenerateToken(token.ScopeDialogues)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
}

func preview(s string) string {
	const limit = 40
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
