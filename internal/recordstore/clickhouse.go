package recordstore

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/avast/retry-go/v4"

	"github.com/datapult/insightsync/internal"
	"github.com/datapult/insightsync/internal/client"
	"github.com/datapult/insightsync/internal/models"
)

// Store writes reconciled delta records into the analytics table. The table
// uses a replacing merge keyed on the record key, so re-inserting the same
// key is the upsert.
type Store struct {
	client client.DatabaseClient
	schema models.RecordSchema
	query  string
	log    *slog.Logger
}

func New(dbClient client.DatabaseClient, schema models.RecordSchema, log *slog.Logger) *Store {
	return &Store{
		client: dbClient,
		schema: schema,
		query:  buildInsertQuery(dbClient.GetDatabase(), dbClient.GetTableName(), schema),
		log:    log,
	}
}

// Upsert inserts the batch in one prepared statement. Transient failures are
// retried with a reconnect in between.
func (s *Store) Upsert(ctx context.Context, records []models.TypedRecord) error {
	if len(records) == 0 {
		return nil
	}

	cols := insertColumns(s.schema)

	err := retry.Do(
		func() error {
			return s.insertBatch(ctx, cols, records)
		},
		retry.Attempts(internal.UpsertRetryAttempts),
		retry.Delay(internal.UpsertRetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			s.log.WarnContext(ctx, "retrying record upsert", "attempt", n, "error", err)
			if rerr := s.client.Reconnect(ctx); rerr != nil {
				s.log.ErrorContext(ctx, "failed to reconnect to clickhouse", "error", rerr)
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("upsert %d records: %w", len(records), err)
	}

	return nil
}

func (s *Store) insertBatch(ctx context.Context, cols []string, records []models.TypedRecord) error {
	batch, err := s.client.PrepareBatch(ctx, s.query)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, rec := range records {
		row := make([]any, 0, len(cols))
		for _, col := range cols {
			if col == s.schema.KeyField {
				row = append(row, rec.Key)
				continue
			}
			row = append(row, rec.Values[col])
		}

		if err := batch.Append(row...); err != nil {
			return fmt.Errorf("append record %s: %w", rec.Key, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

func (s *Store) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close record store: %w", err)
	}
	return nil
}

// insertColumns returns the schema columns with the key column guaranteed
// present, in a stable order.
func insertColumns(schema models.RecordSchema) []string {
	cols := schema.ColumnNames()
	if !slices.Contains(cols, schema.KeyField) {
		cols = append([]string{schema.KeyField}, cols...)
	}
	return cols
}

func buildInsertQuery(database, table string, schema models.RecordSchema) string {
	cols := insertColumns(schema)
	quoted := make([]string, 0, len(cols))
	for _, col := range cols {
		quoted = append(quoted, "`"+col+"`")
	}

	return fmt.Sprintf(
		"INSERT INTO `%s`.`%s` (%s)",
		database, table, strings.Join(quoted, ", "),
	)
}
