package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/vipulkatwal/disaster-manage/server/internal/app"
	"github.com/vipulkatwal/disaster-manage/server/internal/config"
)

func main() {
	configName := flag.String("config", "config", "config file name (without .yaml) looked up in the working directory")
	flag.Parse()

	boot, _ := zap.NewProduction()
	cfg, err := config.Load(boot, *configName)
	if err != nil {
		boot.Fatal("load config", zap.Error(err))
	}

	logger, err := app.NewLogger(cfg.Log.Development)
	if err != nil {
		boot.Fatal("build logger", zap.Error(err))
	}
	defer logger.Sync()

	srv, err := app.NewServer(cfg, logger)
	if err != nil {
		logger.Fatal("init server", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}
