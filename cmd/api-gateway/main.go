package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/arnabghosh/blazingmq-session/internal/api"
	"github.com/arnabghosh/blazingmq-session/internal/bootstrap"
	"github.com/arnabghosh/blazingmq-session/internal/config"
	"github.com/arnabghosh/blazingmq-session/internal/storage/mongodb"
)

// @title Ack Journal API
// @version 1.0
// @description REST API for querying acknowledgments journaled by producers
// @BasePath /api/v1
// @schemes http https
func main() {
	configPath := flag.String("config", "", "Path to a YAML or TOML config file")
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

	log.Info("Starting API Gateway service",
		slog.String("service", "api-gateway"),
		slog.String("version", "1.0.0"),
	)

	port := os.Getenv("PORT")
	if port == "" {
		port = config.DefaultAPIPort
	}

	if cfg.Storage.Type != "mongodb" {
		log.Error("API Gateway requires mongodb storage. Set STORAGE_TYPE=mongodb.",
			"storage_type", cfg.Storage.Type,
		)
		os.Exit(1)
	}

	log.Info("Using MongoDB storage", "mongodb_uri", cfg.Storage.MongoURI)
	ackRepo, err := mongodb.NewAckRepository(cfg.Storage.MongoURI, cfg.Storage.MongoDatabase, cfg.Storage.MongoCollection)
	if err != nil {
		log.Error("Failed to connect to MongoDB", "error", err)
		os.Exit(1)
	}
	defer ackRepo.Close(context.Background())

	log.Info("Initialized MongoDB repository",
		slog.String("database", cfg.Storage.MongoDatabase),
		slog.String("collection", cfg.Storage.MongoCollection),
	)

	router := api.NewRouter(ackRepo, log)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  config.DefaultIdleTimeout,
	}

	log.Info("API Gateway initialized successfully",
		slog.String("port", port),
		slog.String("endpoints", "/api/v1/acks, /api/v1/acks/{guid}"),
	)

	// Start server in a goroutine
	go func() {
		log.Info("Starting HTTP server", slog.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down API Gateway...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log.Info("API Gateway stopped gracefully")
}
