package main

import (
	"context"
	"flag"
	"time"

	"go.uber.org/zap"

	"github.com/vipulkatwal/disaster-manage/server/internal/config"
	"github.com/vipulkatwal/disaster-manage/server/internal/migrations"
)

func main() {
	configName := flag.String("config", "config", "config file name (without .yaml)")
	flag.Parse()

	command := "up"
	args := flag.Args()
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	cfg, err := config.Load(logger, *configName)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := migrations.Open(ctx, cfg.ChangeFeed.DSN)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer db.Close()

	if err := migrations.Run(ctx, db, command, args...); err != nil {
		logger.Fatal("migrate", zap.String("command", command), zap.Error(err))
	}
	logger.Info("migrations done", zap.String("command", command))
}
