package models

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

// AttributeRole distinguishes measures from dimensions in the insight metadata.
type AttributeRole string

const (
	RoleMeasure   AttributeRole = "measure"
	RoleDimension AttributeRole = "dimension"
)

// AttributeSpec is one named, typed attribute of an insight definition.
// Immutable once planned.
type AttributeSpec struct {
	Name         string        `json:"name"`
	DisplayLabel string        `json:"display_label"`
	DeclaredType string        `json:"declared_type"`
	Role         AttributeRole `json:"role"`
}

// InsightDefinition is the schema unit being synchronized into the object store.
type InsightDefinition struct {
	ObjectFullName string          `json:"object_full_name"`
	ObjectLabel    string          `json:"object_label"`
	Attributes     []AttributeSpec `json:"attributes"`
}

// FieldType is the target field type of a creation request.
type FieldType string

const (
	FieldNumber   FieldType = "Number"
	FieldText     FieldType = "Text"
	FieldLongText FieldType = "LongText"
)

// FieldCreationRequest is generated per AttributeSpec and never persisted.
type FieldCreationRequest struct {
	FullName  string    `json:"full_name"`
	Label     string    `json:"label"`
	Type      FieldType `json:"type"`
	Length    int       `json:"length,omitempty"`
	Precision int       `json:"precision,omitempty"`
	Scale     int       `json:"scale"`
}

// BatchResult is the outcome of a batched metadata-update call.
type BatchResult struct {
	Success bool     `json:"success"`
	Errors  []string `json:"errors,omitempty"`
}

// Stage is one phase of the synchronization pipeline.
type Stage string

const (
	StageObjectCreate Stage = "ObjectCreate"
	StageFieldCreate  Stage = "FieldCreate"
	StageAccessGrant  Stage = "AccessGrant"
	StageVerify       Stage = "Verify"
	StageDone         Stage = "Done"
	StageFailed       Stage = "Failed"
)

// IsTerminal reports whether no further stage is scheduled after s.
func (s Stage) IsTerminal() bool {
	return s == StageDone || s == StageFailed
}

// JobUnit is the persisted state of one end-to-end synchronization attempt for
// one target object. Stage and AttemptCount survive process restarts because
// every stage is a separately scheduled asynchronous execution.
type JobUnit struct {
	LogicalKey        string `json:"logical_key"`
	Stage             Stage  `json:"stage"`
	AttemptCount      int    `json:"attempt_count"`
	LastError         string `json:"last_error,omitempty"`
	FieldCreateFailed bool   `json:"field_create_failed,omitempty"`
	FieldJobHandle    string `json:"field_job_handle,omitempty"`
	AccessWarning     string `json:"access_warning,omitempty"`
	VerifyFailed      bool   `json:"verify_failed,omitempty"`
}

// SyncStatus is the externally readable health record of one target schema.
// Writers use last-write-wins semantics on the same key.
type SyncStatus struct {
	TargetName    string     `json:"target_name"`
	Stage         Stage      `json:"stage"`
	SyncDone      bool       `json:"sync_done"`
	LastSyncTime  *time.Time `json:"last_sync_time,omitempty"`
	LastError     string     `json:"last_error"`
	AccessWarning string     `json:"access_warning,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (s SyncStatus) ToJSON() ([]byte, error) {
	bytes, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal SyncStatus: %w", err)
	}
	return bytes, nil
}

func SyncStatusFromJSON(data []byte) (zero SyncStatus, _ error) {
	var s SyncStatus
	if err := json.Unmarshal(data, &s); err != nil {
		return zero, fmt.Errorf("failed to unmarshal SyncStatus: %w", err)
	}
	return s, nil
}

// SyncHook describes a follow-on job the orchestrator submits after a fully
// successful synchronization.
type SyncHook struct {
	Kind   string `json:"kind"`
	Target string `json:"target"`
}
