package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"metasearch/packages/api"
	"metasearch/packages/app"
	"metasearch/packages/config"
	"metasearch/packages/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, relying on environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		app.Exit("Failed to load configuration", err)
	}
	logCloser := logging.Setup(cfg, "server")
	defer logCloser.Close()

	slog.Info("--- Starting metasearch server ---", "addr", cfg.ListenAddr)

	pipeline, err := app.New(ctx, cfg)
	if err != nil {
		app.Exit("Failed to build search pipeline", err)
	}
	defer pipeline.Close()

	router := api.NewRouter(&api.Handler{
		Search:      pipeline.Aggregator,
		Statuses:    pipeline.Statuses,
		Definitions: pipeline.Registry,
	})
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.SearchTimeout + 10*time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutdown signal received. Exiting...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Graceful shutdown failed", "error", err)
	}
}
