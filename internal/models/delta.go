package models

import "time"

// DeltaRecord is one parsed row of the incremental change feed. Ephemeral,
// built per raw line and discarded after the batch is reconciled.
type DeltaRecord struct {
	SourceRowID      string
	SourceSequence   string
	TargetObjectName string
	// ChangeTimestamp is zero when the raw timestamp was unparsable. A zero
	// timestamp always loses tie-breaks against a real one.
	ChangeTimestamp time.Time
	Payload         map[string]any
}

// HasTimestamp reports whether the record carries a parsable change timestamp.
func (r DeltaRecord) HasTimestamp() bool {
	return !r.ChangeTimestamp.IsZero()
}

// RecordField declares one field of the ingestion target schema.
type RecordField struct {
	Name         string `json:"name"`
	DeclaredType string `json:"declared_type"`
}

// RecordSchema maps payload field names to declared types. The target schema
// is kept as explicit data so records are shaped without reflection.
type RecordSchema struct {
	TargetObject string        `json:"target_object"`
	KeyField     string        `json:"key_field"`
	Fields       []RecordField `json:"fields"`
}

// DeclaredType returns the declared type of a named field.
func (s RecordSchema) DeclaredType(name string) (string, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f.DeclaredType, true
		}
	}
	return "", false
}

// ColumnNames returns field names in declaration order.
func (s RecordSchema) ColumnNames() []string {
	cols := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		cols = append(cols, f.Name)
	}
	return cols
}

// TypedRecord is one reconciled, type-coerced record ready for upsert.
type TypedRecord struct {
	Key    string
	Values map[string]any
}

// IngestResult summarizes one ingestion batch.
type IngestResult struct {
	Lines      int
	Parsed     int
	Discarded  int
	Reconciled int
	Upserted   int
}
