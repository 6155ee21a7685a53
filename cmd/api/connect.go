package main

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/edupath/onboarding/internal/config"
	"github.com/edupath/onboarding/internal/infra"
)

type stores struct {
	db    *pgxpool.Pool
	cache *redis.Client
}

// connect opens Postgres and Redis. When optional is set a missing URL is
// skipped so the server falls back to in-memory stores.
func connect(ctx context.Context, cfg config.Config, logger *slog.Logger, optional bool) (stores, func(), error) {
	var s stores
	cleanup := func() {
		if s.cache != nil {
			if err := s.cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}
		if s.db != nil {
			s.db.Close()
		}
	}

	if cfg.DatabaseURL != "" || !optional {
		db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return stores{}, func() {}, err
		}
		s.db = db
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory stores")
	}

	if cfg.RedisURL != "" || !optional {
		cache, err := infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			cleanup()
			return stores{}, func() {}, err
		}
		s.cache = cache
	} else {
		logger.Warn("REDIS_URL not set, using in-memory staging cache")
	}

	return s, cleanup, nil
}
