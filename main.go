package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Kocoro-lab/Shannon/go/prosearch/internal/circuitbreaker"
	"github.com/Kocoro-lab/Shannon/go/prosearch/internal/config"
	"github.com/Kocoro-lab/Shannon/go/prosearch/internal/degradation"
	"github.com/Kocoro-lab/Shannon/go/prosearch/internal/httpapi"
	"github.com/Kocoro-lab/Shannon/go/prosearch/internal/llm"
	_ "github.com/Kocoro-lab/Shannon/go/prosearch/internal/metrics" // Import for side effects
	"github.com/Kocoro-lab/Shannon/go/prosearch/internal/research"
	"github.com/Kocoro-lab/Shannon/go/prosearch/internal/search"
	"github.com/Kocoro-lab/Shannon/go/prosearch/internal/tracing"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize logger
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	zcfg := zap.NewProductionConfig()
	zcfg.Level = level
	logger, err := zcfg.Build()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	loader := config.NewLoader("")
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.String("path", loader.Path()), zap.Error(err))
	}
	setLevel(level, cfg.Logging.Level, logger)
	logger.Info("Configuration loaded",
		zap.String("path", loader.Path()),
		zap.Bool("file_found", loader.FileUsed()),
		zap.Bool("pro_mode", cfg.ProMode.Enabled),
	)

	// Tracing is optional; failures only disable it
	shutdownTracing, err := tracing.Initialize(cfg.Tracing, logger)
	if err != nil {
		logger.Warn("Failed to initialize tracing", zap.Error(err))
	}

	// Search: SearXNG behind a breaker, neutralised to empty results on failure
	searxng := search.NewSearxng(search.SearxngConfig{
		BaseURL:    cfg.Search.SearxngURL,
		Timeout:    cfg.Search.Timeout,
		MaxResults: cfg.Search.MaxResults,
	}, logger)
	aggregator := search.NewAggregator(search.NewSafeProvider("searxng", searxng, logger), logger)

	registry, err := llm.NewRegistry(cfg.LLMClient(), logger)
	if err != nil {
		logger.Fatal("Failed to create agent registry", zap.Error(err))
	}

	critical := lookupBreakers(llm.BreakerName, llm.StreamBreakerName)
	optional := lookupBreakers("searxng")
	modes := degradation.NewModeManager(degradation.NewBreakerStrategy(logger, critical, optional), logger)

	svc := research.NewService(aggregator, modes, research.Options{
		ProModeEnabled:   cfg.ProMode.Enabled,
		BufferPlanEvents: cfg.ProMode.BufferPlanEvents,
	}, logger)

	// Hot reload of the runtime switches
	watcher, err := config.NewWatcher(loader, cfg, logger)
	if err != nil {
		logger.Warn("Configuration hot reload disabled", zap.Error(err))
	} else {
		watcher.OnChange(func(prev, next *config.Config) error {
			if prev.ProMode.Enabled != next.ProMode.Enabled {
				svc.SetProModeEnabled(next.ProMode.Enabled)
				logger.Info("Pro mode switched", zap.Bool("enabled", next.ProMode.Enabled))
			}
			if prev.Logging.Level != next.Logging.Level {
				setLevel(level, next.Logging.Level, logger)
			}
			return nil
		})
		if loader.FileUsed() {
			if err := watcher.Start(ctx); err != nil {
				logger.Warn("Failed to start configuration watcher", zap.Error(err))
			}
		}
		defer watcher.Stop()
	}

	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Fatal("Invalid redis.url", zap.Error(err))
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
	} else {
		logger.Info("Redis not configured; using in-process rate limiting")
	}

	breakers := make([]httpapi.BreakerState, 0, len(critical)+len(optional))
	for _, b := range append(critical, optional...) {
		breakers = append(breakers, b)
	}
	handler := httpapi.NewRouter(httpapi.RouterConfig{
		Chat:    httpapi.NewChatHandler(svc, httpapi.RegistryCapabilities(registry), cfg.Server.Heartbeat, logger),
		Health:  httpapi.NewHealthHandler(rdb, breakers, svc.ProModeEnabled, logger),
		Limiter: httpapi.NewRateLimiter(rdb, cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst, logger),
		Logger:  logger,
	})

	// Start Prometheus metrics endpoint on configured port
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Metrics.Port), Handler: metricsMux}
	go func() {
		logger.Info("Metrics server listening", zap.String("address", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Failed to start metrics server", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("HTTP server listening", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down prosearch service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Metrics server shutdown failed", zap.Error(err))
	}
	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("Tracing shutdown failed", zap.Error(err))
		}
	}
}

// lookupBreakers returns the registered breakers among names, skipping unknown ones.
func lookupBreakers(names ...string) []degradation.Breaker {
	out := make([]degradation.Breaker, 0, len(names))
	for _, name := range names {
		if cb, ok := circuitbreaker.GlobalMetricsCollector.Lookup(name); ok {
			out = append(out, cb)
		}
	}
	return out
}

func setLevel(level zap.AtomicLevel, text string, logger *zap.Logger) {
	if text == "" {
		return
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(text)); err != nil {
		logger.Warn("Ignoring invalid log level", zap.String("level", text))
		return
	}
	level.SetLevel(l)
}
