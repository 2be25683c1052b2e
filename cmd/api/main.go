package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/bundlehub/internal/admin"
	"github.com/noah-isme/bundlehub/internal/app"
	"github.com/noah-isme/bundlehub/internal/auth"
	"github.com/noah-isme/bundlehub/internal/backend"
	"github.com/noah-isme/bundlehub/internal/cart"
	"github.com/noah-isme/bundlehub/internal/catalog"
	"github.com/noah-isme/bundlehub/internal/checkout"
	"github.com/noah-isme/bundlehub/internal/common"
	"github.com/noah-isme/bundlehub/internal/config"
	"github.com/noah-isme/bundlehub/internal/feasibility"
	"github.com/noah-isme/bundlehub/internal/health"
	"github.com/noah-isme/bundlehub/internal/history"
	bhmw "github.com/noah-isme/bundlehub/internal/http/middleware"
	"github.com/noah-isme/bundlehub/internal/lock"
	"github.com/noah-isme/bundlehub/internal/obs"
	"github.com/noah-isme/bundlehub/internal/payment"
	"github.com/noah-isme/bundlehub/internal/preferences"
	"github.com/noah-isme/bundlehub/internal/pricing"
	"github.com/noah-isme/bundlehub/internal/queue"
	"github.com/noah-isme/bundlehub/internal/ratelimit"
	"github.com/noah-isme/bundlehub/internal/report"
	"github.com/noah-isme/bundlehub/internal/security"
	"github.com/noah-isme/bundlehub/internal/state"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("env", cfg.AppEnv).Logger()
	obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, nil)

	tracingEnabled := cfg.Obs.EnableTracing
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "bundlehub-api",
			Endpoint:      cfg.Obs.OTLPEndpoint,
			Exporter:      cfg.Obs.TracingExporter,
			SamplingRatio: cfg.Obs.SamplingRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := app.Open(ctx, cfg, "bundlehub-api", logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open dependencies")
	}
	defer deps.Close(logger)
	redisClient := deps.Redis

	states := state.NewStore(redisClient, cfg.StatePrefix, cfg.ClientStateTTL)
	api := backend.New(backend.Config{
		BaseURL:        cfg.Backend.BaseURL,
		Timeout:        cfg.Backend.Timeout,
		MaxAttempts:    cfg.Backend.RetryMaxAttempts,
		RetryBase:      cfg.Backend.RetryBase,
		BreakerMinReqs: cfg.Backend.BreakerMinRequests,
		BreakerRatio:   cfg.Backend.BreakerFailureRatio,
		BreakerOpenFor: cfg.Backend.BreakerOpenFor,
	}, logger)

	priceStore := pricing.NewStore(states.Global(), logger)
	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Source: api,
		Cache:  catalog.NewCache(redisClient, cfg.StatePrefix, cfg.CatalogCacheTTL),
		Prices: priceStore,
		Logger: logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog service")
	}
	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{Service: catalogService})

	gate := &feasibility.Gate{Source: api, LowBalanceThreshold: cfg.SupplierLowBalanceThreshold, Logger: logger}

	sessions := auth.NewStore(logger)
	authService := &auth.Service{Backend: api, Store: sessions, Logger: logger}
	authHandler := &auth.Handler{Service: authService}
	authMiddleware := auth.Middleware{States: states, Sessions: sessions}

	cartStore := cart.NewStore(logger)
	cartHandler := &cart.Handler{Service: &cart.Service{Store: cartStore, Catalog: catalogService, Gate: gate, Logger: logger}}

	finalizer := &checkout.Finalizer{
		Orders:           api,
		Profiles:         authService,
		Cart:             cartStore,
		History:          deps.History,
		DashboardPath:    cfg.CheckoutDashboardPath,
		GuestSuccessPath: cfg.CheckoutGuestSuccessPath,
		RedirectDelay:    cfg.CheckoutRedirectDelay,
		Logger:           logger,
	}

	polls := payment.NewRegistry()
	orchestrator := &payment.Orchestrator{
		Catalog:            catalogService,
		Gate:               gate,
		Gateway:            api,
		Finalizer:          finalizer,
		Registry:           polls,
		HighValueThreshold: cfg.PaymentHighValueThreshold,
		Poll: payment.PollConfig{
			Interval:    cfg.PaymentPollInterval,
			MaxAttempts: cfg.PaymentPollMaxAttempts,
			Logger:      logger,
		},
		Logger: logger,
	}
	callbacks := &payment.Callbacks{
		Gateway:   api,
		Finalizer: finalizer,
		Profiles:  authService,
		Locker:    lock.Locker{R: redisClient, Prefix: cfg.StatePrefix},
		LockTTL:   cfg.LockTTL,
		Logger:    logger,
	}
	paymentHandler := &payment.Handler{Orchestrator: orchestrator, Callbacks: callbacks}

	historyHandler := &history.Handler{Service: &history.Service{Source: api, Store: deps.History, Limit: 50, Logger: logger}}

	adminHandler := &admin.Handler{Service: &admin.Service{
		Backend: api,
		Prices:  priceStore,
		Catalog: catalogService,
		Queue:   queue.Enqueuer{Client: deps.TaskClient, Queue: cfg.ReportQueue, MaxAttempts: 3, Unique: time.Minute},
		Reports: report.Store{Client: redisClient, Prefix: cfg.StatePrefix, TTL: cfg.ReportTTL},
		Logger:  logger,
	}}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}
	purchaseLimit := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: cfg.StatePrefix + ":ratelimit:"},
		Config:  ratelimit.Config{Key: ratelimit.ClientKey("purchase"), Window: cfg.RateLimitPurchaseWindow, Max: cfg.RateLimitPurchaseLimit},
		OnError: func(err error) { logger.Warn().Err(err).Msg("purchase rate limiter unavailable") },
	}
	authLimit, err := ratelimit.FixedWindow(redisClient, cfg.StatePrefix+":authlimit", cfg.RateLimitAuth, ratelimit.ClientKey("auth"),
		func(err error) { logger.Warn().Err(err).Msg("auth rate limiter unavailable") })
	if err != nil {
		logger.Fatal().Err(err).Str("rate", cfg.RateLimitAuth).Msg("parse RATE_LIMIT_AUTH")
	}

	var httpMetrics *obs.HTTPMetrics
	if cfg.Obs.EnablePrometheus {
		httpMetrics = obs.NewHTTPMetrics(cfg.Obs.MetricsNamespace, obs.ParseBucketsCSV(cfg.Obs.MetricsBuckets), nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(obs.Recoverer(logger))
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{
		Enable:                cfg.Security.EnableHeaders,
		EnableHSTS:            cfg.Security.EnableHSTS,
		HSTSMaxAge:            cfg.Security.HSTSMaxAge,
		HSTSIncludeSubdomains: cfg.Security.HSTSIncludeSubdomains,
	}.Middleware)
	r.Use(security.CORS(cfg.CORSAllowedOrigins))

	if cfg.Obs.EnablePrometheus {
		r.Handle("/metrics", promhttp.Handler())
	}
	if cfg.Obs.EnablePprof {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), cfg.Obs.PprofUser, cfg.Obs.PprofPass))
	}

	healthHandler := health.Handler{
		Required: map[string]health.Probe{
			"redis": func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		},
		Optional: map[string]health.Probe{
			"backend": func(ctx context.Context) error {
				_, err := api.SupplierBalance(ctx)
				return err
			},
		},
		Timeout: 500 * time.Millisecond,
	}
	if deps.DB != nil {
		healthHandler.Required["postgres"] = deps.DB.Ping
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(security.BodyLimit{Max: cfg.Security.BodyLimitBytes}.Middleware)
		v.Use(bhmw.ClientResolver{
			CookieName: cfg.ClientCookieName,
			Secure:     cfg.CookieSecure,
			SameSite:   cfg.CookieSameSite,
			MaxAge:     cfg.ClientStateTTL,
		}.Middleware)
		v.Use(authMiddleware.Attach)

		v.Get("/bundles", catalogHandler.Bundles)
		v.Get("/bundles/{id}", catalogHandler.Bundle)

		v.Route("/cart", func(c chi.Router) {
			c.Get("/", cartHandler.Get)
			c.Post("/", cartHandler.Add)
			c.Delete("/items/{id}", cartHandler.Remove)
		})

		v.Route("/purchases", func(p chi.Router) {
			p.With(purchaseLimit.Middleware, idem.Middleware).Post("/", paymentHandler.Purchase)
			p.Get("/{id}", paymentHandler.Status)
			p.Delete("/{id}", paymentHandler.Cancel)
		})
		v.Get("/payments/callback", paymentHandler.Callback)
		v.With(auth.RequireSession, purchaseLimit.Middleware, idem.Middleware).Post("/wallet/topup", paymentHandler.TopUp)

		v.Route("/auth", func(a chi.Router) {
			a.Group(func(limited chi.Router) {
				limited.Use(authLimit)
				limited.Post("/login", authHandler.Login)
				limited.Post("/signup", authHandler.Signup)
				limited.Post("/google", authHandler.Google)
			})
			a.Post("/logout", authHandler.Logout)
			a.With(auth.RequireSession).Get("/me", authHandler.Me)
		})

		v.With(auth.RequireSession).Get("/user/purchases", historyHandler.Purchases)

		prefs := preferences.Handler{}
		v.Get("/preferences/theme", prefs.GetTheme)
		v.Put("/preferences/theme", prefs.PutTheme)

		v.Route("/admin", func(a chi.Router) {
			a.Use(auth.RequireAdmin)
			a.Get("/verify", adminHandler.Verify)
			a.Get("/markup", adminHandler.Markup)
			a.Put("/markup", adminHandler.SaveMarkup)
			a.Get("/prices", adminHandler.Prices)
			a.Put("/prices/{bundleId}", adminHandler.SetPrice)
			a.Delete("/prices/{bundleId}", adminHandler.ClearPrice)
			a.Post("/catalog/refresh", adminHandler.RefreshCatalog)
			a.Get("/balance", adminHandler.Balance)
			a.Get("/stats", adminHandler.Stats)
			a.Get("/orders", adminHandler.Orders)
			a.Post("/orders/{id}/status", adminHandler.OrderStatus)
			a.Get("/users", adminHandler.Users)
			a.Post("/users/balance", adminHandler.UserBalance)
			a.Post("/reports", adminHandler.RequestReport)
			a.Get("/reports/latest", adminHandler.LatestReport)
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	<-ctx.Done()
	drain(srv, polls, logger)
}

func drain(srv *http.Server, polls *payment.Registry, logger zerolog.Logger) {
	health.SetReady(false)
	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	if err := polls.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Int("pending_polls", polls.Len()).Msg("payment polls did not stop")
	}
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "unauthorised", nil)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
