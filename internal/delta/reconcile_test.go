package delta

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datapult/insightsync/internal/models"
)

func rec(key, seq string, ts time.Time) models.DeltaRecord {
	return models.DeltaRecord{ //nolint:exhaustruct // test fixture
		SourceSequence:  seq,
		ChangeTimestamp: ts,
		Payload:         map[string]any{"Id": key},
	}
}

func TestKey(t *testing.T) {
	r := rec("a1", "1", time.Time{})

	key, ok := Key(r, "Id")
	require.True(t, ok)
	assert.Equal(t, "a1", key)

	_, ok = Key(r, "Missing")
	assert.False(t, ok)

	r.Payload["Id"] = "   "
	_, ok = Key(r, "Id")
	assert.False(t, ok)

	r.Payload["Id"] = nil
	_, ok = Key(r, "Id")
	assert.False(t, ok)
}

func TestReconcileLastWriteWins(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	older := rec("a1", "1", t1)
	newer := rec("a1", "2", t2)

	winners := Reconcile([]models.DeltaRecord{older, newer}, "Id")
	require.Len(t, winners, 1)
	assert.Equal(t, "2", winners["a1"].SourceSequence)

	// Arrival order must not matter.
	winners = Reconcile([]models.DeltaRecord{newer, older}, "Id")
	assert.Equal(t, "2", winners["a1"].SourceSequence)
}

func TestReconcileZeroTimestampLoses(t *testing.T) {
	ts := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	noTime := rec("a1", "1", time.Time{})
	withTime := rec("a1", "2", ts)

	winners := Reconcile([]models.DeltaRecord{noTime, withTime}, "Id")
	assert.Equal(t, "2", winners["a1"].SourceSequence)
}

func TestReconcileExactTieGoesToLowerSequence(t *testing.T) {
	ts := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	a := rec("a1", "10", ts)
	b := rec("a1", "11", ts)

	winners := Reconcile([]models.DeltaRecord{b, a}, "Id")
	assert.Equal(t, "10", winners["a1"].SourceSequence)
}

func TestReconcileDropsRecordsWithoutKey(t *testing.T) {
	r := rec("a1", "1", time.Time{})
	delete(r.Payload, "Id")

	assert.Empty(t, Reconcile([]models.DeltaRecord{r}, "Id"))
}

func TestReconcileIdempotent(t *testing.T) {
	ts := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	r := rec("a1", "1", ts)

	winners := Reconcile([]models.DeltaRecord{r, r, r}, "Id")
	require.Len(t, winners, 1)
	assert.Equal(t, r, winners["a1"])
}

func TestMergeWinnersMatchesSinglePass(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)

	all := []models.DeltaRecord{
		rec("a1", "1", t1),
		rec("a1", "2", t2),
		rec("a2", "3", t1),
		rec("a2", "4", time.Time{}),
	}

	single := Reconcile(all, "Id")

	chunked := MergeWinners(nil, Reconcile(all[:2], "Id"))
	chunked = MergeWinners(chunked, Reconcile(all[2:], "Id"))

	assert.Equal(t, single, chunked)

	// Opposite chunk order gives the same result.
	reversed := MergeWinners(nil, Reconcile(all[2:], "Id"))
	reversed = MergeWinners(reversed, Reconcile(all[:2], "Id"))

	assert.Equal(t, single, reversed)
}
