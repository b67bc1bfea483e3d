package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"

	"github.com/dvloznov/sabadell-dashboard/internal/api"
	"github.com/dvloznov/sabadell-dashboard/internal/config"
	"github.com/dvloznov/sabadell-dashboard/internal/logger"
	"github.com/dvloznov/sabadell-dashboard/internal/pipeline"
	"github.com/dvloznov/sabadell-dashboard/internal/session"
)

const appName = "sabadell"

func main() {
	// Parse command-line flags
	var (
		configPath = flag.String("config", "dashboard.yaml", "Path to the YAML config file (empty to use defaults and env only)")
		port       = flag.String("port", "", "HTTP server port (overrides config and PORT env)")
		warm       = flag.Bool("warm", true, "Run the session pipeline before serving requests")
	)
	flag.Parse()

	displayAppname(appName)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Server.Port = *port
	}

	// Initialize logger
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewWithLevel(level)

	ctx := context.Background()

	connector, closeConnector, err := pipeline.NewConnector(ctx, cfg, nil, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create remote connector")
	}
	defer closeConnector()

	memo := session.NewMemo(cfg.Cache.Size, cfg.Cache.TTL)
	manager := pipeline.NewManager(pipeline.NewSessionPipeline(cfg, connector, log), memo, log)
	defer manager.Close()

	if *warm {
		if res, err := manager.Current(ctx); err != nil {
			log.Error().Err(err).Msg("Initial session failed; requests will retry")
		} else {
			log.Info().
				Str("session_id", res.Session.ID).
				Str("file", res.File.Name).
				Int("transactions", len(res.Transactions)).
				Msg("Session ready")
		}
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.NewRouter(manager, log),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Starting dashboard server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
