// Command defsync validates a directory of recipe documents and upserts the
// valid ones into the Postgres definition store.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"metasearch/packages/app"
	"metasearch/packages/config"
	"metasearch/packages/db"
	"metasearch/packages/definition"
	"metasearch/packages/logging"
)

func main() {
	var (
		dir    = flag.String("dir", "", "definitions directory (default DEFINITIONS_DIR)")
		prune  = flag.Bool("prune", false, "disable stored definitions missing from the directory")
		dryRun = flag.Bool("dry-run", false, "validate only, do not touch the database")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, relying on environment variables")
	}
	cfg, err := config.Load()
	if err != nil {
		app.Exit("Failed to load configuration", err)
	}
	logCloser := logging.Setup(cfg, "defsync")
	defer logCloser.Close()

	if *dir == "" {
		*dir = cfg.DefinitionsDir
	}

	sources, err := definition.ReadDir(*dir)
	if err != nil {
		app.Exit("Failed to read definitions", err)
	}

	docs := make([]db.Document, 0, len(sources))
	invalid := 0
	for _, src := range sources {
		doc, err := db.DocumentFromSource(src)
		if err != nil {
			slog.Error("Invalid definition", "error", err)
			invalid++
			continue
		}
		docs = append(docs, doc)
	}
	slog.Info("Validated definitions", "valid", len(docs), "invalid", invalid)

	if *dryRun {
		if invalid > 0 {
			os.Exit(1)
		}
		return
	}
	if invalid > 0 && *prune {
		slog.Error("Refusing to prune while some definitions are invalid")
		os.Exit(1)
	}

	if err := config.Require("DATABASE_URL"); err != nil {
		app.Exit("FATAL", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storage, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		app.Exit("Failed to connect to database", err)
	}
	defer storage.Close()

	if err := storage.EnsureSchema(ctx); err != nil {
		app.Exit("Failed to prepare schema", err)
	}
	if err := storage.UpsertDefinitionDocuments(ctx, docs, *prune); err != nil {
		app.Exit("Failed to store definitions", err)
	}
	slog.Info("--- Definition sync completed ---", "stored", len(docs))
}
