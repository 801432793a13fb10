package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gateway/app"
	credis "gateway/client/redis"
	"gateway/config"
	"gateway/handlers"
	"gateway/logging"
	"gateway/middlewares"

	"github.com/redis/go-redis/v9"
)

// main is the entry point of the application.
// It loads the configuration, initializes the logger and Redis client, and starts the HTTP server.
func main() {
	// Define a flag for the configuration file path
	configFile := flag.String("f", "config.yaml", "path to the configuration file")
	flag.Parse()

	// Check if the configuration file exists
	if _, err := os.Stat(*configFile); os.IsNotExist(err) {
		log.Fatalf("Configuration file not found: %s", *configFile)
	}

	cfg, err := config.LoadConfiguration(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	config.ApplyLogging(cfg)
	logger := logging.InitializeLogger(cfg.Logging.Level)

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = credis.InitRedis(logger, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to initialize Redis client: ", err)
		}
		defer redisClient.Close()
	}

	gw, err := app.New(cfg, logger, redisClient)
	if err != nil {
		log.Fatalf("Failed to build gateway: %v", err)
	}
	defer gw.Close()

	StartServer(gw)
}

// StartServer serves the gateway on its listen address and shuts it down
// gracefully on SIGINT or SIGTERM.
//
// Parameters:
//
//	gw (*app.Gateway): The gateway instance containing configuration and logger.
func StartServer(gw *app.Gateway) {
	server := &http.Server{
		Addr:     gw.Config.Listen,
		Handler:  middlewares.LoggingMiddleware(handlers.NewHandler(gw), gw),
		ErrorLog: slog.NewLogLogger(gw.Logger.Handler(), slog.LevelWarn),
	}

	// Channel to listen for OS interrupt signals (e.g., Ctrl+C).
	idleConnsClosed := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		gw.Logger.Info("Shutting down server gracefully...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			gw.Logger.Error("Server forced to shutdown", slog.Any("error", err))
		} else {
			gw.Logger.Info("Server shut down gracefully.")
		}

		close(idleConnsClosed)
	}()

	gw.Logger.Info("Gateway listening", slog.String("address", gw.Config.Listen))

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		gw.Logger.Error("Server failed to start", slog.Any("error", err))
		return
	}

	// Wait for all idle connections to close.
	<-idleConnsClosed
	gw.Logger.Info("All connections closed, exiting.")
}
