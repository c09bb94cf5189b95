package main

import (
	"boxbot/internal/broker/nuvama"
	"boxbot/internal/config"
	"boxbot/internal/engine"
	"boxbot/internal/feed"
	"boxbot/internal/logger"
	"boxbot/internal/store"
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logger.New(logger.Config{
		Level:      cfg.Runtime.Log.Level,
		Format:     cfg.Runtime.Log.Format,
		Output:     cfg.Runtime.Log.File,
		MaxSize:    cfg.Runtime.Log.MaxSize,
		MaxBackups: cfg.Runtime.Log.MaxBackups,
		MaxAge:     cfg.Runtime.Log.MaxAge,
		Compress:   cfg.Runtime.Log.Compress,
	})

	logger.Info("Бот запущен.")

	st := store.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	brk := nuvama.New(cfg.Broker.BaseUrl, st, time.Duration(cfg.Broker.TimeoutSec)*time.Second, logger)
	eng := engine.New(cfg, st, brk, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Feed.Enabled {
		ing := feed.New(cfg.Feed.URL, st, logger)
		eng.SetKeysSink(ing.SetKeys)
		go ing.Run(ctx)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- eng.Start(ctx) }()

	select {
	case <-sigCh:
	case err := <-errCh:
		if err != nil && ctx.Err() == nil {
			logger.WithError(err).Error("Движок завершился с ошибкой.")
		}
	}
	cancel()

	logger.Info("Бот остановлен.")
}
