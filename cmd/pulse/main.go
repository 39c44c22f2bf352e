// cmd/pulse/main.go
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fluxmetric/pulse/internal/api"
	"github.com/fluxmetric/pulse/internal/cache"
	"github.com/fluxmetric/pulse/internal/config"
	"github.com/fluxmetric/pulse/internal/engine"
	"github.com/fluxmetric/pulse/internal/insight"
	"github.com/fluxmetric/pulse/internal/logging"
	"github.com/fluxmetric/pulse/internal/persist"
	"github.com/fluxmetric/pulse/internal/syncer"
	"github.com/fluxmetric/pulse/internal/trend"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		zap.NewExample().Fatal("failed to load config", zap.Error(err))
	}

	logger, err := logging.NewLogger(cfg.Server.LogLevel)
	if err != nil {
		zap.NewExample().Fatal("failed to build logger", zap.Error(err))
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, err := buildBackend(cfg)
	if err != nil {
		logger.Fatal("failed to build persistence backend", zap.Error(err))
	}

	opts := engine.Options{
		Cache:          cacheConfig(cfg),
		SeriesCapacity: cfg.Series.Capacity,
		Trend: trend.Config{
			MinSamples:   cfg.Trend.MinSamples,
			StableBand:   cfg.Trend.StableBand,
			AnomalySigma: cfg.Trend.AnomalySigma,
		},
		Insights: insightConfig(cfg),
		Sync: syncer.Config{
			Interval:    cfg.Sync.Interval,
			MaxAttempts: cfg.Sync.MaxAttempts,
			BaseDelay:   cfg.Sync.BaseDelay,
			MaxDelay:    cfg.Sync.MaxDelay,
			MinCycleGap: cfg.Sync.MinCycleGap,
		},
		Backend: backend,
		Logger:  logger,
	}
	if cfg.Sync.Endpoint != "" {
		opts.Transport = syncer.NewHTTPTransport(cfg.Sync.Endpoint, cfg.Sync.Timeout)
	}

	eng, err := engine.New(ctx, opts)
	if err != nil {
		logger.Fatal("failed to start engine", zap.Error(err))
	}

	server := api.NewServer(eng, cfg.Server.Port, logger)

	// Hot-reload cache limits when the config file changes.
	if *configPath != "" {
		watcher, err := config.NewWatcher(*configPath, logger)
		if err != nil {
			logger.Warn("config watching disabled", zap.Error(err))
		} else {
			defer func() { _ = watcher.Close() }()
			go func() {
				for updated := range watcher.Changes() {
					if err := eng.UpdateCacheConfig(cacheConfig(updated)); err != nil {
						logger.Warn("failed to apply updated cache config", zap.Error(err))
					}
				}
			}()
		}
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
		if err := eng.Close(shutdownCtx); err != nil {
			logger.Error("engine shutdown error", zap.Error(err))
		}
		cancel()
	}()

	logger.Info("pulse started",
		zap.Int("port", cfg.Server.Port),
		zap.String("persistence", cfg.Persistence.Backend),
		zap.Bool("sync", cfg.Sync.Endpoint != ""))

	if err := server.Start(); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func cacheConfig(cfg *config.Config) cache.Config {
	return cache.Config{
		MaxEntries:    cfg.Cache.MaxEntries,
		MaxSize:       cfg.Cache.MaxSizeBytes,
		MaxEntrySize:  cfg.Cache.MaxEntryBytes,
		DefaultTTL:    cfg.Cache.DefaultTTL,
		Compression:   cfg.Cache.Compression,
		EncryptionKey: []byte(cfg.Cache.EncryptionKey),
		SweepInterval: cfg.Cache.SweepInterval,
	}
}

func insightConfig(cfg *config.Config) insight.Config {
	thresholds := make([]insight.Threshold, 0, len(cfg.Insights.Thresholds))
	for _, t := range cfg.Insights.Thresholds {
		thresholds = append(thresholds, insight.Threshold{
			Metric:   t.Metric,
			Warn:     t.Warn,
			Critical: t.Critical,
			Above:    t.Above,
		})
	}
	return insight.Config{
		Thresholds:  thresholds,
		MaxInsights: cfg.Insights.MaxInsights,
		Bucket:      cfg.Insights.Bucket,
	}
}

func buildBackend(cfg *config.Config) (persist.Backend, error) {
	switch cfg.Persistence.Backend {
	case "file":
		return persist.NewFile(cfg.Persistence.Path), nil
	case "redis":
		redisOpts, err := redis.ParseURL(cfg.Persistence.RedisURL)
		if err != nil {
			return nil, err
		}
		client := redis.NewClient(redisOpts)
		return persist.NewRedis(client, cfg.Persistence.RedisKey, cfg.Persistence.RedisTTL), nil
	default:
		return nil, nil
	}
}
