package delta

import (
	"strings"

	"github.com/spf13/cast"

	"github.com/datapult/insightsync/internal/models"
)

// Key extracts the reconciliation key from a record's payload. Records with a
// missing or blank key are not reconcilable and must be discarded.
func Key(rec models.DeltaRecord, keyField string) (string, bool) {
	raw, ok := rec.Payload[keyField]
	if !ok || raw == nil {
		return "", false
	}

	key := strings.TrimSpace(cast.ToString(raw))
	if key == "" {
		return "", false
	}
	return key, true
}

// Reconcile picks the single surviving record per reconciliation key:
// last-write-wins on the change timestamp. Records without a usable key are
// dropped.
func Reconcile(records []models.DeltaRecord, keyField string) map[string]models.DeltaRecord {
	winners := make(map[string]models.DeltaRecord, len(records))

	for _, rec := range records {
		key, ok := Key(rec, keyField)
		if !ok {
			continue
		}

		if existing, seen := winners[key]; seen {
			winners[key] = pickWinner(existing, rec)
		} else {
			winners[key] = rec
		}
	}

	return winners
}

// MergeWinners merges per-key winners from independently processed chunks
// into dst. The merge is associative and commutative, so the global
// latest-timestamp-per-key rule holds regardless of chunk boundaries.
func MergeWinners(dst, src map[string]models.DeltaRecord) map[string]models.DeltaRecord {
	if dst == nil {
		dst = make(map[string]models.DeltaRecord, len(src))
	}

	for key, rec := range src {
		if existing, ok := dst[key]; ok {
			dst[key] = pickWinner(existing, rec)
		} else {
			dst[key] = rec
		}
	}

	return dst
}

// pickWinner is commutative: the later timestamp wins, a zero timestamp loses
// to any real one, and exact ties go to the lower source sequence so chunked
// merges stay deterministic.
func pickWinner(a, b models.DeltaRecord) models.DeltaRecord {
	switch {
	case b.ChangeTimestamp.After(a.ChangeTimestamp):
		return b
	case a.ChangeTimestamp.After(b.ChangeTimestamp):
		return a
	case b.SourceSequence < a.SourceSequence:
		return b
	default:
		return a
	}
}
