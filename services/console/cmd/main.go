package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/adminconsole/pkg/config"
	"github.com/adminconsole/pkg/logger"
	"github.com/adminconsole/services/console/internal/app"
	"github.com/adminconsole/services/console/internal/cli"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	flags := pflag.NewFlagSet("console", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "配置文件路径")
	history := flags.String("history", ".console_history", "交互模式的历史记录文件")
	flags.SetInterspersed(false)
	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	console, err := app.New(cfg)
	if err != nil {
		logger.Fatal("创建控制台失败", zap.Error(err))
	}
	defer console.Close()

	if err := console.Start(ctx); err != nil {
		logger.Fatal("控制台启动失败", zap.Error(err))
	}

	c := cli.New(console, os.Stdout)
	args := flags.Args()
	if len(args) == 0 || args[0] == "shell" {
		// shell 自己处理 Ctrl+C
		stop()
		err = c.Shell(context.Background(), *history)
	} else {
		err = c.Execute(ctx, args)
	}
	if err != nil && err != cli.ErrExit {
		fmt.Fprintln(os.Stderr, "错误:", err)
		console.Close()
		os.Exit(1)
	}
}
