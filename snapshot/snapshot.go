// Package snapshot mirrors in-progress graphs into Redis so an unsaved edit
// survives a restart of the console. It is a convenience cache; persisted
// documents remain the source of truth.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/meikuraledutech/procflow"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrNoSnapshot = errors.New("snapshot: no snapshot stored")

const keyPrefix = "procflow:snapshot:"

// Config holds the Redis connection settings.
type Config struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"snapshot_ttl"`
}

// Store reads and writes graph snapshots.
type Store struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("snapshot: connect redis: %w", err)
	}

	logger.Info("snapshot store connected", zap.String("addr", cfg.Addr), zap.Duration("ttl", cfg.TTL))
	return NewWithClient(rdb, cfg.TTL, logger), nil
}

// NewWithClient wraps an existing client. A zero ttl keeps snapshots forever.
func NewWithClient(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Store {
	return &Store{rdb: rdb, ttl: ttl, logger: logger.With(zap.String("component", "snapshot"))}
}

func key(session string) string {
	return keyPrefix + session
}

// Save overwrites the snapshot of session and refreshes its TTL.
func (s *Store) Save(ctx context.Context, session string, snap procflow.Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("snapshot: encode: %w", err)
	}
	if err := s.rdb.Set(ctx, key(session), b, s.ttl).Err(); err != nil {
		return fmt.Errorf("snapshot: save %s: %w", session, err)
	}
	return nil
}

// Load returns the snapshot of session or ErrNoSnapshot.
func (s *Store) Load(ctx context.Context, session string) (procflow.Snapshot, error) {
	b, err := s.rdb.Get(ctx, key(session)).Bytes()
	if errors.Is(err, redis.Nil) {
		return procflow.Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return procflow.Snapshot{}, fmt.Errorf("snapshot: load %s: %w", session, err)
	}

	var snap procflow.Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		s.logger.Warn("discarding unreadable snapshot", zap.String("session", session), zap.Error(err))
		return procflow.Snapshot{}, ErrNoSnapshot
	}
	return snap, nil
}

// Clear removes the snapshot of session.
func (s *Store) Clear(ctx context.Context, session string) error {
	if err := s.rdb.Del(ctx, key(session)).Err(); err != nil {
		return fmt.Errorf("snapshot: clear %s: %w", session, err)
	}
	return nil
}

// Close closes the Redis client.
func (s *Store) Close() error {
	return s.rdb.Close()
}
