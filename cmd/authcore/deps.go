package main

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/notify"
	"github.com/MrEthical07/authcore/store/memory"
	"github.com/MrEthical07/authcore/store/postgres"
	"github.com/MrEthical07/authcore/store/redisstore"
)

// openStore connects the configured account store. The returned close func
// is never nil.
func openStore(ctx context.Context, cfg serverConfig) (authcore.AccountStore, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Store {
	case storeRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, noop, oops.Code("REDIS_CONNECT_FAILED").
				With("addr", cfg.RedisAddr).
				Wrap(err)
		}
		return redisstore.New(client, cfg.RedisPrefix), client.Close, nil

	case storePostgres:
		store, pool, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, noop, err
		}
		return store, func() error { pool.Close(); return nil }, nil

	default:
		return memory.New(), noop, nil
	}
}

func newNotifier(cfg serverConfig, logger *slog.Logger) (authcore.Notifier, error) {
	if cfg.SMTP.Host == "" {
		logger.Warn("SMTP_HOST not set, verification links will be logged")
		return notify.NewLogNotifier(logger, cfg.SMTP.BaseURL), nil
	}
	n, err := notify.NewSMTPNotifier(cfg.SMTP, logger)
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	return n, nil
}

// buildEngine wires store, notifier and logger into an engine.
func buildEngine(cfg serverConfig, store authcore.AccountStore, n authcore.Notifier, logger *slog.Logger) (*authcore.Engine, error) {
	engine, err := authcore.New().
		WithConfig(cfg.engineConfig()).
		WithAccountStore(store).
		WithNotifier(n).
		WithAuditSink(authcore.NewSlogSink(logger.With("component", "audit"))).
		WithLogger(logger).
		Build()
	if err != nil {
		return nil, oops.Code("ENGINE_BUILD_FAILED").Wrap(err)
	}
	return engine, nil
}
