package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/adminconsole/pkg/config"
	"github.com/adminconsole/pkg/logger"
	pkgRegistry "github.com/adminconsole/pkg/registry"
	"github.com/adminconsole/services/devapi/server"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "配置文件路径")
	pflag.Parse()

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

	srv, err := server.New(&cfg.DevAPI)
	if err != nil {
		logger.Fatal("创建桩后端失败", zap.Error(err))
	}

	if cfg.DevAPI.Register {
		reg, err := pkgRegistry.New(cfg.API.Discovery.Registry)
		if err != nil {
			logger.Fatal("创建注册中心失败", zap.Error(err))
		}
		if err := srv.Register(reg, ""); err != nil {
			logger.Fatal("注册服务失败", zap.Error(err))
		}
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("桩后端正在关闭...")
		if err := srv.Shutdown(); err != nil {
			logger.Error("关闭失败", zap.Error(err))
		}
	}()

	if err := srv.Listen(); err != nil {
		logger.Fatal("服务运行失败", zap.Error(err))
	}
}
