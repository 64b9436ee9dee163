package main

import (
	"context"
	"os"

	"mealtracker/internal/backend"
	"mealtracker/internal/cli"
	"mealtracker/internal/seed"
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
	if backendCfg.Type == backend.MemoryBackend {
		logger.Warn("Seeding the memory backend; data is discarded on exit")
	}
	// Seeding bypasses the service, so no events are published.
	backendCfg.AMQPURL = ""

	ctx := context.Background()
	res, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err)
		os.Exit(1)
	}
	defer res.Cleanup()

	logger.Info("Seeding database")
	result, err := seed.Load(ctx, res.Store, seed.Sample)
	if err != nil {
		logger.Error("Error seeding database", "error", err)
		_ = res.Cleanup()
		os.Exit(1)
	}
	logger.Info("Database seeded successfully",
		"members_created", result.MembersCreated,
		"members_existing", result.MembersExisting,
		"meals", result.Meals)
}
