package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/telavoice/callbridge/internal/config"
	"github.com/telavoice/callbridge/internal/log"
	"github.com/telavoice/callbridge/pkg/bridge"
	"github.com/telavoice/callbridge/pkg/inference"
	"github.com/telavoice/callbridge/pkg/metrics"
	"github.com/telavoice/callbridge/pkg/session"
	"github.com/telavoice/callbridge/pkg/web"
)

const shutdownGrace = 10 * time.Second

func main() {
	cfg := config.Load()
	log.Init(cfg.LogLevel)

	apiKey := config.APIKeyRequired()

	provider, err := inference.NewClient(
		inference.WithAPIKey(apiKey),
		inference.WithBaseURL(cfg.BaseURL),
		inference.WithModel(cfg.Model),
		inference.WithMaxTokens(cfg.MaxTokens),
		inference.WithTemperature(cfg.Temperature),
		inference.WithLogger(log.With("component", "inference")),
	)
	if err != nil {
		log.Error("failed to create inference client", "error", err)
		os.Exit(1)
	}
	defer provider.Close()

	m := metrics.New(prometheus.DefaultRegisterer)

	sessionCfg := session.DefaultConfig()
	sessionCfg.SystemPrompt = cfg.SystemPrompt
	sessionCfg.Greeting = cfg.Greeting
	sessionCfg.HistoryLimit = cfg.HistoryLimit
	sessionCfg.IdleTimeout = cfg.IdleTimeout
	sessionCfg.GenerationTimeout = cfg.GenerationTimeout

	manager := bridge.NewManager(provider, sessionCfg, log.L(), m)
	server := web.NewServer(cfg.Port, manager, nil)

	// Graceful shutdown on SIGINT/SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutting down")

		if err := server.Shutdown(); err != nil {
			log.Warn("server shutdown failed", "error", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if !manager.CloseAll(ctx) {
			log.Warn("sessions did not drain before deadline")
		}
	}()

	log.Info("callbridge listening",
		"port", cfg.Port,
		"model", cfg.Model,
		"base_url", cfg.BaseURL,
	)
	if err := server.Start(); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
	log.Info("goodbye")
}
