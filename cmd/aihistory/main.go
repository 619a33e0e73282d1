// Package main 是命令行工具的入口点。
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jiyuchen1/AiHistory/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx, cli.NewApp()); err != nil {
		stop()
		os.Exit(1)
	}
}
