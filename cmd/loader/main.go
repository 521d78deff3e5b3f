package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/moroshma/vizscout/internal/app"
	"github.com/moroshma/vizscout/internal/config"
	"github.com/moroshma/vizscout/internal/domain/entity"
	"github.com/moroshma/vizscout/internal/metrics"
	"github.com/moroshma/vizscout/pkg/logger"
)

var (
	configPath = flag.String("config", "", "Path to configuration file (optional)")
	source     = flag.String("source", "", "Local directory, s3://... or minio://... (overrides config)")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *source != "" {
		cfg.Source = *source
	}

	appLogger, err := logger.New(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		OutputPath: cfg.Logger.OutputPath,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	os.Exit(run(cfg, appLogger))
}

func run(cfg *config.Config, appLogger *logger.Logger) int {
	defer appLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vaultClient, err := config.NewVaultClient(&cfg.Vault)
	if err != nil {
		appLogger.Error("Failed to create Vault client", logger.Error(err))
		return 1
	}
	if vaultClient != nil {
		appLogger.Info("Loading secrets from Vault")
		if err := config.ApplyVaultSecrets(ctx, cfg, vaultClient); err != nil {
			appLogger.Error("Failed to apply Vault secrets", logger.Error(err))
			return 1
		}
	}

	collector := metrics.NewCollector(cfg.Metrics.Namespace)
	defer writeMetrics(cfg.Metrics.TextfilePath, collector, appLogger)

	loader := app.NewLoader(cfg, appLogger, collector)
	defer loader.Cleanup()

	result, err := loader.LoadImages(ctx)
	if err != nil {
		appLogger.Error("Dataset unavailable",
			logger.String("source", cfg.Source),
			logger.String("error_class", entity.ErrorClass(err)),
			logger.Error(err),
		)
		return 1
	}

	for _, id := range result.Keys() {
		appLogger.Debug("Image loaded",
			logger.String("id", id),
			logger.Int64("size", result[id].Size()),
		)
	}
	appLogger.Info("Dataset loaded",
		logger.String("source", cfg.Source),
		logger.Int("images", len(result)),
		logger.Int64("bytes", result.TotalBytes()),
	)

	return 0
}

func writeMetrics(path string, collector *metrics.Collector, appLogger *logger.Logger) {
	if path == "" {
		return
	}
	if err := collector.WriteTextfile(path); err != nil {
		appLogger.Warn("Failed to write metrics textfile", logger.String("path", path), logger.Error(err))
	}
}
