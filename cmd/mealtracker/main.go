package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"mealtracker/internal/backend"
	"mealtracker/internal/cli"
	apphttp "mealtracker/internal/http"
	"mealtracker/internal/log"
	"mealtracker/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger, nil)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	svc := services.NewMealService(res.Store, res.Publisher, services.Options{
		CacheSize: 256,
		CacheTTL:  cfg.CacheTTL,
	})

	srv := apphttp.NewServer(":"+cfg.Port, svc, apphttp.Config{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
	})
	srv.MaxHeaderBytes = 1 << 16

	_, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	})

	logger.Info("Starting mealtracker server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"events_enabled", res.Publisher != nil,
		log.FieldOperation, log.OpStartup)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		_ = svc.Close()
		os.Exit(1)
	}

	<-done
	if err := svc.Close(); err != nil {
		logger.Error("Failed to release resources", "error", err)
	}
	logger.Info("Server stopped gracefully")
}
