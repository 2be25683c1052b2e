// Package app opens the infrastructure shared by cmd/api and cmd/worker.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/bundlehub/internal/config"
	"github.com/noah-isme/bundlehub/internal/history"
	"github.com/noah-isme/bundlehub/internal/obs"
	"github.com/noah-isme/bundlehub/internal/queue"
)

// Dependencies enumerates the connections shared across modules. DB is nil when no
// DATABASE_URL is configured.
type Dependencies struct {
	Redis      *redis.Client
	DB         *pgxpool.Pool
	TaskClient *asynq.Client
	History    history.Store
}

// Open connects Redis, the optional history database and the task client. Close releases them.
func Open(ctx context.Context, cfg *config.Config, service string, logger zerolog.Logger) (*Dependencies, error) {
	rdb, err := OpenRedis(ctx, cfg.RedisURL, cfg.Obs.EnablePrometheus, logger)
	if err != nil {
		return nil, err
	}
	deps := &Dependencies{Redis: rdb}

	if cfg.HistoryEnabled() {
		if err := history.Migrate(cfg.DatabaseURL); err != nil {
			deps.Close(logger)
			return nil, fmt.Errorf("migrate history: %w", err)
		}
		pool, err := OpenPostgres(ctx, cfg.DatabaseURL, service)
		if err != nil {
			deps.Close(logger)
			return nil, err
		}
		deps.DB = pool
		deps.History = &history.PGStore{Pool: pool}
	} else {
		logger.Warn().Msg("DATABASE_URL not set, purchase history kept in redis")
		deps.History = &history.RedisStore{Client: rdb, Prefix: cfg.StatePrefix, Max: 200}
	}

	client, err := queue.NewClient(cfg.RedisURL)
	if err != nil {
		deps.Close(logger)
		return nil, fmt.Errorf("task client: %w", err)
	}
	deps.TaskClient = client
	return deps, nil
}

// Close releases every open connection.
func (d *Dependencies) Close(logger zerolog.Logger) {
	if d.TaskClient != nil {
		if err := d.TaskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}
}

// OpenRedis connects and instruments a Redis client.
func OpenRedis(ctx context.Context, url string, metrics bool, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// OpenPostgres connects a traced pgx pool.
func OpenPostgres(ctx context.Context, url, service string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = service

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}
