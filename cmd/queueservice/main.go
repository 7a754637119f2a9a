package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/arnabghosh/blazingmq-session/internal/bootstrap"
	"github.com/arnabghosh/blazingmq-session/internal/queueservice"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "", "Path to a YAML or TOML config file")
	maxDeliveryAttempts := flag.Int("max-delivery-attempts", 0, "Deliveries before a message is dropped as poison (0 = unlimited)")
	flag.Parse()

	cfg, err := bootstrap.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := bootstrap.NewLogger(cfg, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Info("Starting Queue Service",
		"addr", addr,
		"session_ttl", cfg.Server.SessionTTL,
		"max_queue_depth", cfg.Server.MaxQueueDepth,
		"max_delivery_attempts", *maxDeliveryAttempts,
		"log_level", cfg.Log.Level,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker := queueservice.NewBroker(queueservice.Config{
		MaxQueueDepth:       cfg.Server.MaxQueueDepth,
		SessionTTL:          cfg.Server.SessionTTL,
		MaxDeliveryAttempts: *maxDeliveryAttempts,
	}, log)
	if err := broker.Start(ctx); err != nil {
		log.Error("Failed to start broker", "error", err)
		os.Exit(1)
	}

	httpServer := queueservice.NewHTTPServer(broker, queueservice.ServerConfig{
		Addr:         addr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		Debug:        cfg.Server.Debug,
	}, log)

	// Start HTTP server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	log.Info("Queue Service started successfully", "http_addr", addr)

	// Wait for interrupt signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error("Server error", "error", err)
		os.Exit(1)

	case sig := <-shutdown:
		log.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("Failed to shutdown HTTP server gracefully", "error", err)
		}
		if err := broker.Shutdown(shutdownCtx); err != nil {
			log.Error("Failed to shutdown broker gracefully", "error", err)
			os.Exit(1)
		}

		log.Info("Queue Service stopped gracefully")
	}
}

