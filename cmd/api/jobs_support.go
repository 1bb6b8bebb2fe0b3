package main

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/yourusername/literacy-poster/internal/config"
	"github.com/yourusername/literacy-poster/internal/history"
	"github.com/yourusername/literacy-poster/internal/jobs"
)

// setupHistoryStore は REDIS_URL があれば Redis、無ければメモリを履歴の保存先にします。
func setupHistoryStore(cfg *config.Config, logger *zerolog.Logger) (history.Store, func() error, error) {
	if cfg.RedisURL == "" {
		logger.Warn().Msg("REDIS_URL is not set; session history is kept in memory")
		return history.NewMemoryStore(), nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	redisClient := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = redisClient.Close()
		return nil, nil, fmt.Errorf("failed to connect redis: %w", err)
	}

	return history.NewRedisStore(redisClient, cfg.HistoryTTL), redisClient.Close, nil
}

// setupWatcher は非同期生成の完了を監視する Asynq ワーカーを構成します。
func setupWatcher(cfg *config.Config, poller *jobs.Poller, hist *history.Service, wait jobs.WaitOptions, logger *zerolog.Logger) (*jobs.Manager, error) {
	watcher := jobs.NewWatcher(poller, hist, wait, logger)
	manager, err := jobs.NewManager(cfg.RedisURL, cfg.WatcherConcurrency, watcher, logger)
	if err != nil {
		return nil, err
	}
	return manager, nil
}
