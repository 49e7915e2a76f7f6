package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"adwarden/pkg/cache"
	"adwarden/pkg/classifier"
	"adwarden/pkg/config"
	"adwarden/pkg/features"
	"adwarden/pkg/forwarder"
	"adwarden/pkg/logging"
	"adwarden/pkg/relay"
	"adwarden/pkg/storage"
	"adwarden/pkg/telemetry"
)

var (
	configPath = flag.String("config", "config.yml", "Path to configuration file")
	version    = "dev"
	buildTime  = "unknown"
)

func main() {
	flag.Parse()

	// Parse configuration with hot-reload support
	watcher, err := config.NewWatcher(*configPath, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg := watcher.Config()

	// Initialize logger
	logger, err := logging.New(&cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobal(logger)

	logger.Info("adwarden starting",
		"version", version,
		"build_time", buildTime,
	)

	// Load the classifier artifacts. Missing model or feature-name files are
	// fatal; a relay without a working classifier would silently allow
	// everything.
	featureNames, err := classifier.LoadFeatureNames(cfg.Classifier.FeatureNamesPath)
	if err != nil {
		logger.Error("Failed to load feature names", "path", cfg.Classifier.FeatureNamesPath, "error", err)
		os.Exit(1)
	}

	model, err := classifier.LoadLinearModel(cfg.Classifier.ModelPath, featureNames)
	if err != nil {
		logger.Error("Failed to load classifier model", "path", cfg.Classifier.ModelPath, "error", err)
		os.Exit(1)
	}

	adapter, err := classifier.NewAdapter(model, featureNames, cfg.Classifier.Threshold)
	if err != nil {
		logger.Error("Failed to initialize classifier", "error", err)
		os.Exit(1)
	}

	tier := features.TierEnhanced
	if cfg.Classifier.Extractor == config.ExtractorBase {
		tier = features.TierBase
	}
	extractor := features.New(tier)

	logger.Info("Classifier loaded",
		"model", cfg.Classifier.ModelPath,
		"features", len(featureNames),
		"extractor", cfg.Classifier.Extractor,
		"threshold", cfg.Classifier.Threshold,
	)

	// Initialize telemetry
	ctx := context.Background()
	telem, err := telemetry.New(ctx, &cfg.Telemetry, logger)
	if err != nil {
		logger.Error("Failed to initialize telemetry", "error", err)
		os.Exit(1)
	}

	metrics, err := telem.InitMetrics()
	if err != nil {
		logger.Error("Failed to initialize metrics", "error", err)
		os.Exit(1)
	}

	// Initialize query-log storage
	var store storage.Storage
	if cfg.Storage.Enabled {
		store, err = storage.NewSQLite(&cfg.Storage)
		if err != nil {
			logger.Error("Failed to initialize query log storage", "error", err)
			os.Exit(1)
		}
		logger.Info("Query logging enabled", "database", cfg.Storage.DatabasePath)
	}

	// Wire up the relay pipeline
	handler := relay.NewHandler(cfg, logger)
	handler.Extractor = extractor
	handler.Classifier = adapter
	handler.Forwarder = forwarder.New(&cfg.Upstream, logger)
	handler.ResponseCache = cache.New[[]byte]()
	handler.BlockCache = cache.New[bool]()
	handler.Storage = store
	handler.Metrics = metrics
	handler.Watcher = watcher

	// Push hot-reloaded threshold changes into the classifier
	watcher.OnChange(func(updated *config.Config) {
		adapter.SetThreshold(updated.Classifier.Threshold)
		logger.Info("Configuration reloaded",
			"threshold", updated.Classifier.Threshold,
			"block_mode", updated.Blocking.Mode,
		)
	})

	server := relay.NewServer(cfg, handler, logger)

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()

	go func() {
		if err := watcher.Start(serverCtx); err != nil {
			logger.Error("Config watcher stopped", "error", err)
		}
	}()

	if store != nil && cfg.Storage.RetentionDays > 0 {
		go runRetention(serverCtx, store, cfg.Storage.RetentionDays, logger)
	}

	errChan := make(chan error, 1)
	go func() {
		if err := server.Start(serverCtx); err != nil {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", "signal", sig.String())
		serverCancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error during server shutdown", "error", err)
		}
		if store != nil {
			if err := store.Close(); err != nil {
				logger.Error("Error closing query log storage", "error", err)
			}
		}
		if err := telem.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error during telemetry shutdown", "error", err)
		}
		_ = watcher.Close()

		stats := handler.Stats()
		logger.Info("adwarden stopped",
			"queries", stats.Total,
			"blocked", stats.Blocked,
			"forwarded", stats.Forwarded,
			"cache_hits", stats.Cached,
			"errors", stats.Errors,
		)

	case err := <-errChan:
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
}

// runRetention deletes aged query-log rows once a day.
func runRetention(ctx context.Context, store storage.Storage, retentionDays int, logger *logging.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().AddDate(0, 0, -retentionDays)
			if err := store.Cleanup(ctx, cutoff); err != nil {
				logger.Warn("Query log cleanup failed", "error", err)
			}
		}
	}
}
