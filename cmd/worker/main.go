package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/bundlehub/internal/app"
	"github.com/noah-isme/bundlehub/internal/backend"
	"github.com/noah-isme/bundlehub/internal/config"
	"github.com/noah-isme/bundlehub/internal/obs"
	"github.com/noah-isme/bundlehub/internal/queue"
	"github.com/noah-isme/bundlehub/internal/report"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("component", "worker").Logger()
	obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient, err := app.OpenRedis(ctx, cfg.RedisURL, false, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open redis")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	api := backend.New(backend.Config{
		BaseURL:        cfg.Backend.BaseURL,
		Timeout:        cfg.Backend.Timeout,
		MaxAttempts:    cfg.Backend.RetryMaxAttempts,
		RetryBase:      cfg.Backend.RetryBase,
		BreakerMinReqs: cfg.Backend.BreakerMinRequests,
		BreakerRatio:   cfg.Backend.BreakerFailureRatio,
		BreakerOpenFor: cfg.Backend.BreakerOpenFor,
	}, logger)

	srv, err := queue.NewServer(cfg.RedisURL, cfg.ReportQueue, 2, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("create task server")
	}

	mux := asynq.NewServeMux()
	mux.Use(queue.Instrument(logger))
	mux.Handle(report.TypeSalesReport, report.Processor{
		Orders: api,
		Store:  report.Store{Client: redisClient, Prefix: cfg.StatePrefix, TTL: cfg.ReportTTL},
		Logger: logger,
	})

	logger.Info().Str("queue", cfg.ReportQueue).Msg("worker starting")
	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start task server")
	}
	<-ctx.Done()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}
