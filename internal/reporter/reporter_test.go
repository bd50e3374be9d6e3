package reporter

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datapult/insightsync/internal/models"
)

type fakeErrorStore struct {
	upserted map[string]string
	cleared  []string
	fail     bool
}

func newFakeErrorStore() *fakeErrorStore {
	return &fakeErrorStore{upserted: make(map[string]string), cleared: nil, fail: false}
}

func (f *fakeErrorStore) UpsertError(_ context.Context, scope, message string) error {
	if f.fail {
		return fmt.Errorf("kv down")
	}
	f.upserted[scope] = message
	return nil
}

func (f *fakeErrorStore) ClearError(_ context.Context, scope string) error {
	if f.fail {
		return fmt.Errorf("kv down")
	}
	f.cleared = append(f.cleared, scope)
	return nil
}

type fakePublisher struct {
	published []models.SyncSignal
	fail      bool
}

func (f *fakePublisher) Publish(_ context.Context, sig models.SyncSignal) error {
	if f.fail {
		return fmt.Errorf("nats down")
	}
	f.published = append(f.published, sig)
	return nil
}

func TestSuccessClearsErrorAndPublishes(t *testing.T) {
	ctx := context.Background()
	errs := newFakeErrorStore()
	pub := &fakePublisher{published: nil, fail: false}
	r := New(errs, pub, slog.New(slog.DiscardHandler))

	r.Success(ctx, "Insight.A", "schema-sync")

	assert.Equal(t, []string{"Insight.A"}, errs.cleared)
	require.Len(t, pub.published, 1)
	assert.Equal(t, models.SignalSuccess, pub.published[0].Status)
	assert.Equal(t, "Insight.A", pub.published[0].Target)
	assert.Empty(t, pub.published[0].Error)
}

func TestFailurePersistsErrorAndPublishes(t *testing.T) {
	ctx := context.Background()
	errs := newFakeErrorStore()
	pub := &fakePublisher{published: nil, fail: false}
	r := New(errs, pub, slog.New(slog.DiscardHandler))

	r.Failure(ctx, "Insight.A", "schema-sync", "field creation failed")

	assert.Equal(t, "field creation failed", errs.upserted["Insight.A"])
	require.Len(t, pub.published, 1)
	assert.Equal(t, models.SignalFailed, pub.published[0].Status)
	assert.Equal(t, "field creation failed", pub.published[0].Error)
}

func TestReportingFailuresAreSwallowed(t *testing.T) {
	ctx := context.Background()
	errs := newFakeErrorStore()
	errs.fail = true
	pub := &fakePublisher{published: nil, fail: true}
	r := New(errs, pub, slog.New(slog.DiscardHandler))

	// Must not panic and must not propagate anything.
	r.Success(ctx, "Insight.A", "schema-sync")
	r.Failure(ctx, "Insight.A", "schema-sync", "boom")
}
