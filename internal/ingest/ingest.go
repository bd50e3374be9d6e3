package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/datapult/insightsync/internal/coerce"
	"github.com/datapult/insightsync/internal/delta"
	"github.com/datapult/insightsync/internal/models"
)

type recordUpserter interface {
	Upsert(ctx context.Context, records []models.TypedRecord) error
}

// Service turns raw delta feed lines into reconciled, typed records and
// writes them to the record store.
type Service struct {
	parser *delta.Parser
	schema models.RecordSchema
	store  recordUpserter
	log    *slog.Logger
}

func NewService(schema models.RecordSchema, store recordUpserter, log *slog.Logger) *Service {
	return &Service{
		parser: delta.NewParser(schema.TargetObject, log),
		schema: schema,
		store:  store,
		log:    log,
	}
}

// IngestLines processes one uploaded feed chunk end to end: parse, reconcile
// duplicates to a single winner per key, coerce field values and upsert.
// Records with an explicit null field value are discarded whole.
func (s *Service) IngestLines(ctx context.Context, lines []string) (models.IngestResult, error) {
	return s.IngestChunks(ctx, [][]string{lines})
}

// IngestChunks ingests several uploaded chunks as one flush. Each chunk is
// parsed on its own, so every chunk's leading header line is skipped, then
// the per-chunk winners are merged so the latest revision per key survives
// across chunk boundaries.
func (s *Service) IngestChunks(ctx context.Context, chunks [][]string) (models.IngestResult, error) {
	var result models.IngestResult

	var winners map[string]models.DeltaRecord
	for _, lines := range chunks {
		result.Lines += len(lines)

		records := s.parser.ParseLines(lines)
		result.Parsed += len(records)

		winners = delta.MergeWinners(winners, delta.Reconcile(records, s.schema.KeyField))
	}
	result.Reconciled = len(winners)

	typed := make([]models.TypedRecord, 0, len(winners))
	for _, key := range slices.Sorted(maps.Keys(winners)) {
		rec, ok := s.buildRecord(ctx, key, winners[key])
		if !ok {
			result.Discarded++
			continue
		}
		typed = append(typed, rec)
	}

	if len(typed) > 0 {
		if err := s.store.Upsert(ctx, typed); err != nil {
			return result, fmt.Errorf("ingest batch: %w", err)
		}
		result.Upserted = len(typed)
	}

	s.log.InfoContext(ctx, "ingested delta batch",
		"lines", result.Lines, "parsed", result.Parsed,
		"reconciled", result.Reconciled, "discarded", result.Discarded,
		"upserted", result.Upserted)

	return result, nil
}

// buildRecord coerces payload values onto the target schema. Fields absent
// from the payload stay absent; a field explicitly set to null voids the
// whole record; any other coercion failure blanks just that field.
func (s *Service) buildRecord(ctx context.Context, key string, rec models.DeltaRecord) (zero models.TypedRecord, _ bool) {
	values := make(map[string]any, len(s.schema.Fields))

	for _, field := range s.schema.Fields {
		raw, present := rec.Payload[field.Name]
		if !present {
			continue
		}

		value, err := coerce.Value(raw, field.DeclaredType)
		if err != nil {
			if errors.Is(err, coerce.ErrNullValue) {
				s.log.WarnContext(ctx, "discarding record with null field",
					"key", key, "field", field.Name)
				return zero, false
			}
			s.log.DebugContext(ctx, "blanking uncoercible field value",
				"key", key, "field", field.Name, "error", err)
			values[field.Name] = ""
			continue
		}

		values[field.Name] = value
	}

	return models.TypedRecord{Key: key, Values: values}, true
}
