// Package db stores recipe documents in Postgres.
package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"metasearch/packages/definition"
	"metasearch/packages/metrics"
)

const schema = `
CREATE TABLE IF NOT EXISTS indexer_definitions (
	id         TEXT PRIMARY KEY,
	version    INTEGER NOT NULL,
	document   TEXT NOT NULL,
	enabled    BOOLEAN NOT NULL DEFAULT TRUE,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

type Storage struct {
	DB *pgxpool.Pool
}

// Document is one stored recipe.
type Document struct {
	ID       string
	Version  int
	Document []byte
}

func New(ctx context.Context, databaseURL string) (*Storage, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to reach database: %w", err)
	}
	return &Storage{DB: pool}, nil
}

func (s *Storage) Close() {
	s.DB.Close()
}

func (s *Storage) WithTransaction(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		} else if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	return fn(tx)
}

func observe(name string, start time.Time) {
	metrics.DBQueryDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
}

func (s *Storage) EnsureSchema(ctx context.Context) error {
	defer observe("ensure_schema", time.Now())
	if _, err := s.DB.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// LoadDefinitionDocuments returns the enabled recipes as registry sources.
func (s *Storage) LoadDefinitionDocuments(ctx context.Context) ([]definition.Source, error) {
	defer observe("load_definitions", time.Now())

	rows, err := s.DB.Query(ctx, `SELECT id, document FROM indexer_definitions WHERE enabled ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query definitions: %w", err)
	}

	var (
		sources []definition.Source
		id      string
		doc     string
	)
	if _, err := pgx.ForEachRow(rows, []any{&id, &doc}, func() error {
		sources = append(sources, definition.Source{Name: "db:" + id, Data: []byte(doc)})
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to iterate definition rows: %w", err)
	}
	return sources, nil
}

// UpsertDefinitionDocuments writes all documents in one transaction. When
// prune is set, stored recipes missing from docs are disabled.
func (s *Storage) UpsertDefinitionDocuments(ctx context.Context, docs []Document, prune bool) error {
	defer observe("upsert_definitions", time.Now())

	return s.WithTransaction(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		ids := make([]string, 0, len(docs))
		for _, d := range docs {
			batch.Queue(`
				INSERT INTO indexer_definitions (id, version, document, enabled, updated_at)
				VALUES ($1, $2, $3, TRUE, now())
				ON CONFLICT (id) DO UPDATE
				SET version = EXCLUDED.version, document = EXCLUDED.document, enabled = TRUE, updated_at = now()`,
				d.ID, d.Version, string(d.Document))
			ids = append(ids, d.ID)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to upsert definitions: %w", err)
		}

		if !prune {
			return nil
		}
		tag, err := tx.Exec(ctx, `UPDATE indexer_definitions SET enabled = FALSE, updated_at = now() WHERE enabled AND NOT (id = ANY($1))`, ids)
		if err != nil {
			return fmt.Errorf("failed to disable stale definitions: %w", err)
		}
		if tag.RowsAffected() > 0 {
			slog.Info("Disabled definitions missing from the source", "count", tag.RowsAffected())
		}
		return nil
	})
}

// DocumentFromSource validates a source and keys it by its recipe id.
func DocumentFromSource(src definition.Source) (Document, error) {
	def, err := definition.LoadDefinition(src.Data)
	if err != nil {
		return Document{}, fmt.Errorf("%s: %w", src.Name, err)
	}
	return Document{ID: def.ID, Version: def.Version, Document: src.Data}, nil
}
