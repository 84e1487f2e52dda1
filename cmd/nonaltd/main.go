package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"nonalt/internal/agent"
	"nonalt/internal/config"
	"nonalt/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "configuration file path")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	a, err := agent.New(cfg, logger)
	if err != nil {
		log.Fatalf("create agent: %v", err)
	}
	defer a.Close()

	if err := a.Start(ctx); err != nil {
		logger.Error("agent start", logging.Error(err))
		return
	}
	defer a.Stop()

	<-ctx.Done()
	logger.Info("nonaltd shutting down")
}
