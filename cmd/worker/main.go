package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/khidmahub/khidmahub/internal/config"
	"github.com/khidmahub/khidmahub/internal/logging"
	"github.com/khidmahub/khidmahub/internal/relay"
)

// The worker consumes notification delivery tasks from Redis. It runs
// separately from the API so delivery retries never compete with request
// handling.
func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Redis.Addr == "" {
		log.Fatal("redis.addr is required for the worker (or KHIDMA_REDIS_ADDR)")
	}

	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	processor := relay.NewProcessor(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		logger.Info("shutting down worker")
		processor.Shutdown()
	}()

	logger.Info("worker consuming delivery tasks", zap.String("redis", cfg.Redis.Addr))
	if err := processor.Run(); err != nil {
		logger.Fatal("worker stopped", zap.Error(err))
	}
}
