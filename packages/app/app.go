// Package app wires configuration into the search pipeline for the binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"metasearch/packages/aggregator"
	"metasearch/packages/config"
	"metasearch/packages/db"
	"metasearch/packages/definition"
	"metasearch/packages/engine"
	"metasearch/packages/metrics"
	"metasearch/packages/reqcache"
	"metasearch/packages/statusstore"
	"metasearch/packages/transport"
)

type App struct {
	Registry   *definition.Registry
	Aggregator *aggregator.Aggregator
	Statuses   statusstore.Store
	Cache      *reqcache.Cache
	storage    *db.Storage
}

// New loads the recipes from DefinitionsDir and, when DatabaseURL is set,
// from Postgres. Database recipes override file recipes with the same id.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	a := &App{}

	sources, err := definition.ReadDir(cfg.DefinitionsDir)
	if err != nil {
		if cfg.DatabaseURL == "" {
			return nil, err
		}
		slog.Warn("No definitions directory, using the database only", "dir", cfg.DefinitionsDir, "error", err)
	}

	if cfg.DatabaseURL != "" {
		storage, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.storage = storage
		stored, err := storage.LoadDefinitionDocuments(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
		sources = overrideSources(sources, stored)
	}

	reg, errs := definition.Build(sources)
	if reg.Len() == 0 {
		a.Close()
		return nil, fmt.Errorf("no usable indexer definitions (%d rejected)", len(errs))
	}
	a.Registry = reg
	metrics.DefinitionsLoaded.Set(float64(reg.Len()))

	client, err := transport.New(transport.Options{
		UserAgent:    cfg.UserAgent,
		Timeout:      cfg.FetchTimeout,
		MaxBodyBytes: cfg.MaxBodyBytes,
		RateRequests: cfg.RateLimitRequests,
		RateWindow:   cfg.RateLimitWindow,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Cache = reqcache.New(reqcache.Options{
		TTL:           cfg.CacheTTL,
		SweepInterval: cfg.CacheSweepInterval,
		FetchTimeout:  cfg.FetchTimeout,
	})

	a.Statuses = statusstore.NewMemory()
	if cfg.RedisAddr != "" {
		store, err := statusstore.NewRedis(ctx, statusstore.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Key:      cfg.RedisKey,
		})
		if err != nil {
			slog.Warn("Redis status store unavailable, keeping statuses in memory", "error", err)
		} else {
			a.Statuses = store
		}
	}

	eng := engine.New(client, a.Cache, engine.WithSettings(config.IndexerSetting))
	a.Aggregator = aggregator.New(eng, reg, a.Statuses, aggregator.Options{
		MaxWorkers: cfg.MaxWorkers,
		Timeout:    cfg.SearchTimeout,
	})

	slog.Info("Search pipeline ready", "indexers", reg.Len(), "rejected", len(errs), "workers", cfg.MaxWorkers)
	return a, nil
}

func (a *App) Close() {
	if a.Cache != nil {
		a.Cache.Close()
	}
	if a.Statuses != nil {
		if err := a.Statuses.Close(); err != nil {
			slog.Warn("Failed to close status store", "error", err)
		}
	}
	if a.storage != nil {
		a.storage.Close()
	}
}

// overrideSources puts stored documents after file ones and drops file
// documents whose id is also stored.
func overrideSources(files, stored []definition.Source) []definition.Source {
	storedIDs := make(map[string]bool, len(stored))
	for _, src := range stored {
		if doc, err := db.DocumentFromSource(src); err == nil {
			storedIDs[doc.ID] = true
		}
	}
	out := make([]definition.Source, 0, len(files)+len(stored))
	for _, src := range files {
		doc, err := db.DocumentFromSource(src)
		if err == nil && storedIDs[doc.ID] {
			slog.Info("Database definition overrides file", "indexer", doc.ID, "file", src.Name)
			continue
		}
		out = append(out, src)
	}
	return append(out, stored...)
}

// Exit logs err and stops the process.
func Exit(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
