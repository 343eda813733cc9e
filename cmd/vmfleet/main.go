package main

import (
	"context"
	"crypto/rand"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"vmfleet/internal/adapter/memory"
	"vmfleet/internal/adapter/postgres"
	"vmfleet/internal/adapter/tcp"
	"vmfleet/internal/app"
	"vmfleet/internal/config"
	"vmfleet/internal/domain"

	"github.com/spf13/pflag"
)

func main() {
	configPath := pflag.String("config", "", "path to YAML config file")
	listen := pflag.String("listen", "", "listen address (overrides config)")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	var store domain.VMRepository
	if cfg.DatabaseURL != "" {
		pg, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			logger.Error("open database", "error", err)
			os.Exit(1)
		}
		defer func() { _ = pg.Close() }()
		store = pg
	} else {
		logger.Warn("no database configured, using in-memory store; nothing survives a restart")
		store = memory.New()
	}

	secret := []byte(cfg.TokenSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			logger.Error("generate token secret", "error", err)
			os.Exit(1)
		}
		logger.Warn("no token secret configured, using a random per-process secret")
	}

	registry := app.NewRegistry()
	tokens := app.NewTokenService(secret, cfg.TokenTTL.Std())
	auth := app.NewAuthService(store, tokens, registry)
	vms := app.NewVMService(store)

	dispatcher := tcp.NewDispatcher(auth, vms, tokens, registry, logger)
	server := tcp.NewServer(dispatcher, registry, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		logger.Error("listen", "addr", cfg.Listen, "error", err)
		os.Exit(1)
	}
	logger.Info("listening", "addr", ln.Addr().String())

	if err := server.Serve(ctx, ln); err != nil {
		logger.Error("serve", "error", err)
		os.Exit(1)
	}
}
