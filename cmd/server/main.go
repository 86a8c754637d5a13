// SPDX-License-Identifier: MIT

// Command server runs the video analysis orchestrator: it wires the
// store, tiered cache, tool registry and dispatcher, progressive
// processor, priority queue, and HTTP surface into one explicit
// application struct (no package-level singletons, per spec.md §9) and
// serves until an interrupt or terminate signal arrives.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/videoforge/insights/internal/api/middleware"
	"github.com/videoforge/insights/internal/cache"
	"github.com/videoforge/insights/internal/config"
	"github.com/videoforge/insights/internal/health"
	"github.com/videoforge/insights/internal/httpapi"
	"github.com/videoforge/insights/internal/integrity"
	xglog "github.com/videoforge/insights/internal/log"
	"github.com/videoforge/insights/internal/persistence"
	"github.com/videoforge/insights/internal/processor"
	"github.com/videoforge/insights/internal/queue"
	"github.com/videoforge/insights/internal/store"
	"github.com/videoforge/insights/internal/telemetry"
	"github.com/videoforge/insights/internal/tools"

	"github.com/redis/go-redis/v9"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

// app bundles every long-lived component the server wires together,
// replacing the teacher's package-level daemon singletons with one
// explicit struct built at startup.
type app struct {
	cfg         config.AppConfig
	store       *store.Store
	cache       *cache.Tiered
	redisCache  *cache.RedisCache
	persistence *persistence.Service
	registry    *tools.Registry
	dispatcher  *tools.Dispatcher
	processor   *processor.Processor
	queue       *queue.Queue
	checker     *integrity.ConsistencyChecker
	reconciler  *integrity.Reconciler
	retryQueue  *integrity.RetryQueue
	lineage     *integrity.LineageQuery
	health      *health.Manager
}

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	xglog.Configure(xglog.Config{Level: "info", Service: "videoinsights", Version: version})
	logger := xglog.WithComponent("server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(*configPath, version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().Err(err).Str("event", "config.load_failed").Msg("failed to load configuration")
	}

	xglog.Configure(xglog.Config{Level: cfg.LogLevel, Service: "videoinsights", Version: cfg.Version})
	logger = xglog.WithComponent("server")
	logger.Info().Str("event", "config.loaded").Msg(cfg.String())

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		logger.Fatal().Err(err).Str("event", "startup.check_failed").Msg("pre-flight checks failed")
	}

	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: version,
		ExporterType:   "grpc",
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
	})
	if err != nil {
		logger.Fatal().Err(err).Str("event", "telemetry.init_failed").Msg("failed to initialize tracing")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown error")
		}
	}()

	a, err := build(ctx, cfg, version)
	if err != nil {
		logger.Fatal().Err(err).Str("event", "wiring.failed").Msg("failed to wire application components")
	}
	defer a.close()

	a.queue.StartWorkers()
	defer a.queue.Shutdown(10 * time.Second)

	go a.runReconcileLoop(ctx, 5*time.Minute)

	srv := httpapi.NewServer(httpapi.Deps{
		Store:        a.store,
		Registry:     a.registry,
		Dispatcher:   a.dispatcher,
		Processor:    a.processor,
		Queue:        a.queue,
		Persistence:  a.persistence,
		Cache:        a.cache,
		Health:       a.health,
		QueueWorkers: cfg.Queue.Workers,
	})

	router := srv.Router(middleware.StackConfig{
		EnableCORS:            len(cfg.HTTP.AllowedOrigins) > 0,
		AllowedOrigins:        cfg.HTTP.AllowedOrigins,
		EnableSecurityHeaders: true,
		EnableMetrics:         cfg.HTTP.MetricsEnabled,
		TracingService:        cfg.Tracing.ServiceName,
		EnableLogging:         true,
		EnableRateLimit:       cfg.HTTP.RateLimitEnabled,
		RateLimitEnabled:      cfg.HTTP.RateLimitEnabled,
		RateLimitGlobalRPS:    cfg.HTTP.RateLimitRPS,
		RateLimitBurst:        cfg.HTTP.RateLimitBurst,
		RateLimitWhitelist:    cfg.HTTP.RateLimitWhitelist,
	})

	httpSrv := &http.Server{
		Addr:              cfg.HTTP.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("event", "http.listen").Str("addr", cfg.HTTP.ListenAddr).Msg("starting HTTP server")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("event", "http.failed").Msg("HTTP server exited unexpectedly")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Str("event", "shutdown.start").Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Str("event", "http.shutdown_failed").Msg("HTTP server shutdown error")
	}

	logger.Info().Str("event", "shutdown.complete").Msg("server exiting")
}

// build wires every component in dependency order: store, cache tiers,
// persistence, tool registry/dispatcher, processor, queue, integrity
// tooling, and health checks.
func build(ctx context.Context, cfg config.AppConfig, version string) (*app, error) {
	a := &app{cfg: cfg}

	dbPath := cfg.DataDir + "/videoinsights.sqlite"
	st, err := store.Open(ctx, store.DefaultConfig(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.store = st
	if err := st.InitializeSchema(ctx); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	l1, err := cache.NewLRUCache(cfg.Cache.L1Size)
	if err != nil {
		return nil, fmt.Errorf("build L1 cache: %w", err)
	}

	var l2 cache.Cache
	if cfg.Cache.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Cache.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		rc, err := cache.NewRedisCache(cache.RedisConfig{Addr: opts.Addr, Password: opts.Password, DB: opts.DB}, xglog.WithComponent("cache"))
		if err != nil {
			xglog.WithComponent("cache").Warn().Err(err).Msg("redis L2 tier unavailable, continuing on L1/L3 only")
		} else {
			l2 = rc
			a.redisCache, _ = rc.(*cache.RedisCache)
		}
	}

	tiered := cache.NewTiered(l1, l2, cache.NewMemoryCache(time.Minute), cfg.Cache.TTL())
	a.cache = tiered

	a.persistence = persistence.NewService(st, tiered)

	registry := tools.NewRegistry()
	client := tools.NewModelClient("http://"+cfg.MCPServer.Addr(), cfg.Tools.RequestTimeout)
	tools.RegisterBuiltinTools(registry, client)
	a.registry = registry

	breakers := tools.NewBreakerSet(5, 30*time.Second)
	a.dispatcher = tools.NewDispatcher(registry, breakers, tiered, a.persistence, st, cfg.Tools.ExecutionTimeout)

	a.processor = processor.New(st, a.dispatcher)

	a.queue = queue.New(queue.Config{Workers: cfg.Queue.Workers}, func(ctx context.Context, videoID, videoPath string) {
		a.processor.Run(ctx, videoID)
	})

	a.checker = integrity.NewConsistencyChecker(st)
	a.reconciler = integrity.NewReconciler(st, a.persistence)
	a.retryQueue = integrity.NewRetryQueue(st, a.persistence)
	a.lineage = integrity.NewLineageQuery(st)

	a.health = buildHealthManager(a, cfg, version)

	return a, nil
}

func buildHealthManager(a *app, cfg config.AppConfig, version string) *health.Manager {
	mgr := health.NewManager(version)
	mgr.RegisterChecker(health.NewStoreChecker(func(ctx context.Context) error {
		return a.store.DB().PingContext(ctx)
	}))
	mgr.RegisterChecker(health.NewCacheChecker(func() (configured, reachable bool, lastErr error) {
		if a.redisCache == nil {
			return false, false, nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := a.redisCache.HealthCheck(ctx); err != nil {
			return true, false, err
		}
		return true, true, nil
	}))
	mgr.RegisterChecker(health.NewModelServerChecker(func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+cfg.MCPServer.Addr()+"/health", nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("model server health returned status %d", resp.StatusCode)
		}
		return nil
	}))
	return mgr
}

// runReconcileLoop periodically re-derives processing_status for every
// non-terminal video, closing drift between actual row counts and the
// status left behind by a crashed or stuck worker. Modeled on the
// teacher's internal/verification.Worker cadence loop.
func (a *app) runReconcileLoop(ctx context.Context, cadence time.Duration) {
	logger := xglog.WithComponent("reconcile-loop")
	ticker := time.NewTicker(cadence)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ids, err := a.store.ListActiveVideoIDs(ctx)
			if err != nil {
				logger.Warn().Err(err).Msg("failed to list active videos for reconciliation")
				continue
			}
			for _, videoID := range ids {
				if _, err := a.reconciler.Reconcile(ctx, videoID); err != nil {
					logger.Warn().Err(err).Str("video_id", videoID).Msg("reconcile failed")
				}
			}
		}
	}
}

func (a *app) close() {
	if a.redisCache != nil {
		_ = a.redisCache.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}
