package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/arnabghosh/blazingmq-session/internal/bootstrap"
	"github.com/arnabghosh/blazingmq-session/internal/consumer"
	"github.com/arnabghosh/blazingmq-session/internal/session"
)

func main() {
	// Load configuration
	consumerConfig := consumer.LoadConfig()

	cfg, err := bootstrap.LoadConfig(consumerConfig.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := bootstrap.NewLogger(cfg, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitor, releaseMonitor, err := bootstrap.NewHostHealthMonitor(ctx, cfg.Health, logger)
	if err != nil {
		logger.Error("Failed to create host health monitor", "error", err)
		os.Exit(1)
	}
	defer releaseMonitor()

	c := consumer.NewConsumer(consumerConfig, logger)

	sess, err := bootstrap.NewSession(cfg, session.Options{
		OnMessage:         c.HandleMessage,
		HostHealthMonitor: monitor,
	}, logger)
	if err != nil {
		logger.Error("Failed to create session", "error", err)
		os.Exit(1)
	}

	if err := sess.Start(ctx); err != nil {
		logger.Error("Failed to start session", "broker_uri", cfg.Broker.URI, "error", err)
		os.Exit(1)
	}
	defer sess.Stop()

	logger.Info("Loaded configuration",
		"instance_id", consumerConfig.InstanceID,
		"queue_uri", consumerConfig.QueueURI,
		"broker_uri", cfg.Broker.URI,
		"max_messages", consumerConfig.MaxMessages,
	)

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start consumer in goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- c.Start(ctx, sess)
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", "signal", sig)
		cancel()

		// Wait for consumer to close its queue
		if err := <-errChan; err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Consumer error", "error", err)
		}

	case err := <-errChan:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Consumer error", "error", err)
			sess.Stop()
			os.Exit(1)
		}
	}

	// Final statistics
	stats := c.Stats()
	sessionStats := sess.Stats()

	logger.Info("Shutdown complete",
		"messages_received", stats.MessagesReceived,
		"messages_confirmed", stats.MessagesConfirmed,
		"messages_errors", stats.MessagesErrors,
		"session_delivered", sessionStats.Delivered,
	)

	fmt.Println("Consumer shut down gracefully")
}
