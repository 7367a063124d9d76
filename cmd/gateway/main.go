package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/gateway/audit"
	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/gateway/cache"
	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/gateway/dispatch"
	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/gateway/handlers"
	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/gateway/metrics"
	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/gateway/providers"
	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/gateway/ratelimit"
	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/gateway/registry"
	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/gateway/scheduler"
	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/shared/config"
	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/shared/database"
	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/shared/logging"
	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/shared/redis"
	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/shared/secrets"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// limiterTrimSchedule releases rate windows of idle providers
const limiterTrimSchedule = "@every 10m"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logging.Setup(cfg.LogLevel, cfg.Env)
	log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("starting AI service manager")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Postgres holds provider configs, API keys, the audit log and usage totals
	var db *database.DB
	if cfg.DatabaseURL != "" {
		db, err = database.New(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
		log.Info().Msg("connected to PostgreSQL")
	}

	// Redis backs the shared response cache and the per API key limiter
	var redisClient *redis.Client
	if cfg.CacheBackend == "redis" || db != nil {
		redisClient, err = redis.New(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer redisClient.Close()
		log.Info().Msg("connected to Redis")
	}

	// Provider registry
	var source registry.Source = db
	if cfg.ProvidersFile != "" {
		source = registry.FileSource{Path: cfg.ProvidersFile}
	}
	regOpts := []registry.Option{registry.WithRefreshInterval(cfg.ProviderRefreshInterval)}
	if cfg.CredentialsKey != "" {
		box, err := secrets.New(cfg.CredentialsKey)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid CREDENTIALS_KEY")
		}
		regOpts = append(regOpts, registry.WithDecrypter(box))
	}
	reg := registry.New(source, regOpts...)
	if err := reg.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("initial provider load failed, will retry on first dispatch")
	}

	// Response cache
	var store cache.Store = cache.NewMemoryStore()
	if cfg.CacheBackend == "redis" {
		store = cache.NewRedisStore(redisClient)
	}
	responseCache := cache.New(store, cfg.CacheEnabled)
	log.Info().Bool("enabled", cfg.CacheEnabled).Str("backend", cfg.CacheBackend).Msg("initialized response cache")

	// Audit sinks
	auditSink, closers, err := buildAuditSink(cfg, db)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize audit sinks")
	}
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()

	limiter := ratelimit.New()
	usage := metrics.NewStore()

	orchestrator := dispatch.New(dispatch.Options{
		Registry: reg,
		Adapters: providers.NewManager(),
		Limiter:  limiter,
		Cache:    responseCache,
		CacheTTL: cfg.CacheTTL,
		Metrics:  usage,
		Audit:    auditSink,
		Deadline: cfg.DispatchDeadline,
	})

	// Background maintenance
	sched := scheduler.New()
	mustSchedule(sched.Add("cache-purge", cfg.CachePurgeSchedule, scheduler.PurgeCache(responseCache)))
	mustSchedule(sched.Add("limiter-trim", limiterTrimSchedule, scheduler.TrimLimiter(limiter)))
	if db != nil {
		mustSchedule(sched.Add("metrics-flush", cfg.MetricsFlushSchedule, scheduler.FlushMetrics(usage, db)))
	}
	sched.Start()

	// Initialize handlers
	dispatchHandler := handlers.NewDispatchHandler(orchestrator)
	providersHandler := handlers.NewProvidersHandler(orchestrator, reg, usage)

	// Setup router
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(handlers.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(cfg.RequestTimeout))
	r.Use(handlers.CORSMiddleware(cfg.CORSAllowedOrigins))

	// Health check (no auth required)
	r.Get("/health", handlers.HandleHealth)

	r.Route("/v1", func(r chi.Router) {
		if db != nil {
			mw := handlers.NewMiddleware(db, redisClient, cfg.DefaultRateLimit)
			r.Use(mw.AuthMiddleware)
			r.Use(mw.RateLimitMiddleware)
		} else {
			log.Warn().Msg("no DATABASE_URL: /v1 routes are served without API key auth")
		}

		r.Post("/dispatch", dispatchHandler.HandleDispatch)
		r.Get("/providers/metrics", providersHandler.HandleMetrics)
		r.Post("/providers/{id}/test", providersHandler.HandleTest)
	})

	// HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down gracefully")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	sched.Stop(shutdownCtx)

	if db != nil {
		if err := db.SaveUsageMetrics(shutdownCtx, usage.All()); err != nil {
			log.Error().Err(err).Msg("final metrics flush failed")
		}
	}

	log.Info().Msg("server stopped")
}

// buildAuditSink opens every sink named in AUDIT_SINKS
func buildAuditSink(cfg *config.Config, db *database.DB) (audit.Sink, []io.Closer, error) {
	var (
		sinks   audit.Multi
		closers []io.Closer
	)
	for _, name := range cfg.AuditSinks {
		switch name {
		case config.SinkLog:
			sinks = append(sinks, audit.NewLogSink())
		case config.SinkDatabase:
			sinks = append(sinks, audit.NewDatabaseSink(db))
		case config.SinkSQLite:
			s, err := audit.OpenSQLite(cfg.AuditSQLitePath)
			if err != nil {
				return nil, closers, err
			}
			sinks = append(sinks, s)
			closers = append(closers, s)
		case config.SinkNATS:
			s, err := audit.ConnectNATS(cfg.NatsURL, cfg.NatsAuditSubject)
			if err != nil {
				return nil, closers, err
			}
			sinks = append(sinks, s)
			closers = append(closers, s)
		}
		log.Info().Str("sink", name).Msg("audit sink enabled")
	}
	return sinks, closers, nil
}

func mustSchedule(err error) {
	if err != nil {
		log.Fatal().Err(err).Msg("failed to schedule job")
	}
}
