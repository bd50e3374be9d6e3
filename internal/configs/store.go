package configs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/datapult/insightsync/internal/kv"
	"github.com/datapult/insightsync/internal/models"
)

var ErrConfigNotFound = errors.New("config key not found")

// Getter is the lookup contract consumed by components needing tunables.
type Getter interface {
	Get(ctx context.Context, key string) (string, error)
	GetString(ctx context.Context, key, fallback string) string
	GetInt(ctx context.Context, key string, fallback int) int
}

// Store reads tunables from the configuration bucket with an in-process
// cache. Absent keys resolve to the caller-supplied defaults.
type Store struct {
	kv  kv.KeyValueStore
	log *slog.Logger

	mu    sync.RWMutex
	cache map[string]string
}

func NewStore(kvs kv.KeyValueStore, log *slog.Logger) *Store {
	return &Store{
		kv:    kvs,
		log:   log,
		cache: make(map[string]string),
	}
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	if value, ok := s.cache[key]; ok {
		s.mu.RUnlock()
		return value, nil
	}
	s.mu.RUnlock()

	value, err := s.kv.GetString(ctx, key)
	if err != nil {
		if errors.Is(err, models.ErrKeyNotFound) {
			return "", ErrConfigNotFound
		}
		return "", fmt.Errorf("get config %s: %w", key, err)
	}

	s.mu.Lock()
	s.cache[key] = value
	s.mu.Unlock()

	return value, nil
}

// GetString returns the configured value or fallback when the key is absent
// or unreadable.
func (s *Store) GetString(ctx context.Context, key, fallback string) string {
	value, err := s.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrConfigNotFound) {
			s.log.WarnContext(ctx, "failed to read config key, using default",
				"key", key, "default", fallback, "error", err)
		}
		return fallback
	}
	return value
}

// GetInt returns the configured value parsed as an integer, or fallback when
// the key is absent, unreadable or not numeric.
func (s *Store) GetInt(ctx context.Context, key string, fallback int) int {
	value, err := s.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrConfigNotFound) {
			s.log.WarnContext(ctx, "failed to read config key, using default",
				"key", key, "default", fallback, "error", err)
		}
		return fallback
	}

	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		s.log.WarnContext(ctx, "config value is not an integer, using default",
			"key", key, "value", value, "default", fallback)
		return fallback
	}
	return n
}
