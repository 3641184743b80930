package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/isaac-evs/safeway-etl/internal/app"
	"github.com/isaac-evs/safeway-etl/internal/config"
	"github.com/isaac-evs/safeway-etl/internal/logging"
)

func main() {
	once := flag.Bool("once", false, "fetch once, drain the queue and exit")
	configPath := flag.String("config", "", "path to YAML configuration")
	flag.Parse()

	// Optional .env for local runs; real deployments set the environment.
	_ = godotenv.Load()

	cfg := config.Load(*configPath)
	logger := logging.New(cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	logger.Info("starting news ETL pipeline", "once", *once, "feeds", len(cfg.Feeds.URLs))
	if err := application.Run(ctx, *once); err != nil {
		logger.Error("pipeline stopped", "error", err)
		application.Close()
		os.Exit(1)
	}
}
