// Package statusstore keeps the latest search status of every indexer.
package statusstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"

	"metasearch/packages/domain"
)

type Store interface {
	Record(ctx context.Context, statuses []domain.Status) error
	List(ctx context.Context) ([]domain.Status, error)
	Close() error
}

// Memory is a process-local Store.
type Memory struct {
	mu       sync.RWMutex
	statuses map[string]domain.Status
}

func NewMemory() *Memory {
	return &Memory{statuses: make(map[string]domain.Status)}
}

func (m *Memory) Record(_ context.Context, statuses []domain.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, st := range statuses {
		if newer(st, m.statuses[st.Indexer]) {
			m.statuses[st.Indexer] = st
		}
	}
	return nil
}

func (m *Memory) List(_ context.Context) ([]domain.Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Status, 0, len(m.statuses))
	for _, st := range m.statuses {
		out = append(out, st)
	}
	sortByIndexer(out)
	return out, nil
}

func (m *Memory) Close() error { return nil }

// Redis shares statuses between server instances through one hash: field is
// the indexer id, value the JSON status.
type Redis struct {
	client *redis.Client
	key    string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	key := cfg.Key
	if key == "" {
		key = "metasearch:indexer_status"
	}
	slog.Info("Connected to redis status store", "addr", cfg.Addr, "key", key)
	return &Redis{client: client, key: key}, nil
}

func (r *Redis) Record(ctx context.Context, statuses []domain.Status) error {
	if len(statuses) == 0 {
		return nil
	}
	values := make([]any, 0, len(statuses)*2)
	for _, st := range statuses {
		data, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("encode status for %s: %w", st.Indexer, err)
		}
		values = append(values, st.Indexer, string(data))
	}
	if err := r.client.HSet(ctx, r.key, values...).Err(); err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

func (r *Redis) List(ctx context.Context) ([]domain.Status, error) {
	raw, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	out := make([]domain.Status, 0, len(raw))
	for field, value := range raw {
		var st domain.Status
		if err := json.Unmarshal([]byte(value), &st); err != nil {
			slog.Warn("Skipping unreadable indexer status", "indexer", field, "error", err)
			continue
		}
		out = append(out, st)
	}
	sortByIndexer(out)
	return out, nil
}

func (r *Redis) Close() error { return r.client.Close() }

func newer(st, current domain.Status) bool {
	return current.Indexer == "" || !st.At.Before(current.At)
}

func sortByIndexer(statuses []domain.Status) {
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Indexer < statuses[j].Indexer })
}
