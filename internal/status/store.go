package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/datapult/insightsync/internal/kv"
	"github.com/datapult/insightsync/internal/models"
)

// Store persists SyncStatus records and scope-keyed error records. Writers
// use last-write-wins puts; each target has exactly one active JobUnit at a
// time, so overlapping retry attempts cannot interleave harmfully.
type Store struct {
	statuses kv.KeyValueStore
	errors   kv.KeyValueStore
	log      *slog.Logger
}

func NewStore(statuses, errStore kv.KeyValueStore, log *slog.Logger) *Store {
	return &Store{
		statuses: statuses,
		errors:   errStore,
		log:      log,
	}
}

func (s *Store) Save(ctx context.Context, st models.SyncStatus) error {
	st.UpdatedAt = time.Now().UTC()

	data, err := st.ToJSON()
	if err != nil {
		return fmt.Errorf("encode sync status: %w", err)
	}

	err = s.statuses.Put(ctx, storeKey(st.TargetName), data)
	if err != nil {
		return fmt.Errorf("save sync status for %s: %w", st.TargetName, err)
	}

	return nil
}

func (s *Store) Get(ctx context.Context, target string) (zero models.SyncStatus, _ error) {
	data, err := s.statuses.Get(ctx, storeKey(target))
	if err != nil {
		if errors.Is(err, models.ErrKeyNotFound) {
			return zero, models.ErrRecordNotFound
		}
		return zero, fmt.Errorf("get sync status for %s: %w", target, err)
	}

	st, err := models.SyncStatusFromJSON(data)
	if err != nil {
		return zero, fmt.Errorf("decode sync status for %s: %w", target, err)
	}

	return st, nil
}

// UpsertError records the terminal error text for one scope. Scopes are
// independent: failures across different targets never overwrite each other.
func (s *Store) UpsertError(ctx context.Context, scope, message string) error {
	err := s.errors.PutString(ctx, storeKey(scope), message)
	if err != nil {
		return fmt.Errorf("upsert error record for %s: %w", scope, err)
	}
	return nil
}

func (s *Store) ClearError(ctx context.Context, scope string) error {
	err := s.errors.Delete(ctx, storeKey(scope))
	if err != nil {
		return fmt.Errorf("clear error record for %s: %w", scope, err)
	}
	return nil
}

func (s *Store) GetError(ctx context.Context, scope string) (string, error) {
	message, err := s.errors.GetString(ctx, storeKey(scope))
	if err != nil {
		if errors.Is(err, models.ErrKeyNotFound) {
			return "", models.ErrRecordNotFound
		}
		return "", fmt.Errorf("get error record for %s: %w", scope, err)
	}
	return message, nil
}

// storeKey maps a target name onto the KV key character set.
func storeKey(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, name)
}
