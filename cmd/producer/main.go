package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arnabghosh/blazingmq-session/internal/api"
	"github.com/arnabghosh/blazingmq-session/internal/bootstrap"
	"github.com/arnabghosh/blazingmq-session/internal/domain"
	"github.com/arnabghosh/blazingmq-session/internal/mq"
	"github.com/arnabghosh/blazingmq-session/internal/producer"
	"github.com/arnabghosh/blazingmq-session/internal/session"
)

func main() {
	// Load configuration
	producerConfig := producer.LoadConfig()

	cfg, err := bootstrap.LoadConfig(producerConfig.ConfigPath)
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

	journal, releaseJournal, err := bootstrap.NewAckJournal(cfg.Storage, logger)
	if err != nil {
		logger.Error("Failed to open ack journal", "error", err)
		os.Exit(1)
	}
	defer releaseJournal()

	var journalServer *http.Server
	if producerConfig.JournalAddr != "" {
		journalServer = &http.Server{
			Addr:         producerConfig.JournalAddr,
			Handler:      api.NewRouter(journal, logger).Engine(),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}
		go func() {
			logger.Info("Serving ack journal", "address", journalServer.Addr)
			if err := journalServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Ack journal server failed", "error", err)
			}
		}()
	}

	sess, err := bootstrap.NewSession(cfg, session.Options{HostHealthMonitor: monitor}, logger)
	if err != nil {
		logger.Error("Failed to create session", "error", err)
		os.Exit(1)
	}

	if err := sess.Start(ctx); err != nil {
		logger.Error("Failed to start session", "broker_uri", cfg.Broker.URI, "error", err)
		os.Exit(1)
	}
	defer sess.Stop()

	if err := sess.OpenQueue(ctx, producerConfig.QueueURI, mq.FlagWrite, domain.QueueOptions{}); err != nil {
		logger.Error("Failed to open queue", "queue_uri", producerConfig.QueueURI, "error", err)
		os.Exit(1)
	}

	var batchLock *producer.BatchLock
	if producerConfig.LockRedisURL != "" {
		batchLock, err = producer.NewBatchLock(producerConfig.LockRedisURL, producerConfig.QueueURI, producerConfig.InstanceID, logger)
		if err != nil {
			logger.Error("Failed to create batch lock", "error", err)
			os.Exit(1)
		}
		defer batchLock.Close()
	}

	p := producer.NewProducer(producerConfig, sess, journal, batchLock, logger)

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start producer in goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- p.Start(ctx)
	}()

	// Wait for shutdown signal or completion
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", "signal", sig)
		cancel()
		<-errChan

	case err := <-errChan:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Producer error", "error", err)
		}
	}

	// Acks still outstanding after the wait are cancelled when the session stops
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.Session.Timeouts.WithDefaults().Disconnect)
	if err := p.WaitForAcks(waitCtx); err != nil {
		logger.Warn("Not all acks received before shutdown", "error", err)
	}
	waitCancel()

	if journalServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := journalServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Failed to shutdown ack journal server", "error", err)
		}
		shutdownCancel()
	}

	// Final statistics
	stats := p.Stats()

	logger.Info("Shutdown complete",
		"posted", stats.Posted,
		"acked", stats.Acked,
		"nacked", stats.Nacked,
		"journaled", stats.Journaled,
		"errors", stats.Errors,
	)

	fmt.Println("Producer shut down gracefully")
}
