package main

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/loyalty-rewards/internal/config"
	"github.com/ignite/loyalty-rewards/internal/notify"
	"github.com/ignite/loyalty-rewards/internal/pkg/distlock"
	"github.com/ignite/loyalty-rewards/internal/pkg/logger"
)

// buildNotifier chains the enabled channels: WhatsApp first, then email.
func buildNotifier(ctx context.Context, cfg *config.Config) (notify.Notifier, error) {
	var chain notify.Chain

	if cfg.Evolution.Enabled {
		chain = append(chain, notify.NewEvolutionNotifier(notify.EvolutionConfig{
			Endpoint: cfg.Evolution.Endpoint,
			Instance: cfg.Evolution.Instance,
			APIKey:   cfg.Evolution.APIKey,
			Timeout:  cfg.Evolution.Timeout(),
		}))
		logger.Info("whatsapp channel enabled", "instance", cfg.Evolution.Instance)
	}
	if cfg.SES.Enabled {
		ses, err := notify.NewSESNotifier(ctx, cfg.SES)
		if err != nil {
			return nil, err
		}
		chain = append(chain, ses)
		logger.Info("email channel enabled", "from", cfg.SES.FromEmail)
	}

	if len(chain) == 0 {
		return nil, fmt.Errorf("no notification channel enabled (evolution or ses)")
	}
	return chain, nil
}

// buildLock connects the run lock backend named in cfg. The closer is never nil.
func buildLock(ctx context.Context, cfg config.LockConfig) (distlock.DistLock, func() error, error) {
	noop := func() error { return nil }

	var redisClient *redis.Client
	var db *sql.DB

	switch {
	case cfg.RedisURL != "":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, noop, fmt.Errorf("parsing lock redis url: %w", err)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			redisClient.Close()
			return nil, noop, fmt.Errorf("connecting to lock redis: %w", err)
		}
		logger.Info("run lock backend: redis")
	case cfg.DatabaseURL != "":
		var err error
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, noop, fmt.Errorf("opening lock database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, noop, fmt.Errorf("connecting to lock database: %w", err)
		}
		logger.Info("run lock backend: postgres advisory lock")
	default:
		logger.Info("run lock backend: in-process")
	}

	lock := distlock.NewLock(redisClient, db, cfg.Key, cfg.TTL())
	closer := noop
	if redisClient != nil {
		closer = redisClient.Close
	} else if db != nil {
		closer = db.Close
	}
	return lock, closer, nil
}
