package models

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

// JobDescriptor is the unit of work submitted to the job scheduler. The
// embedded JobUnit carries stage and attempt count so retry state survives
// process restarts.
type JobDescriptor struct {
	Handle    string    `json:"handle"`
	Kind      string    `json:"kind"`
	Unit      JobUnit   `json:"unit"`
	NotBefore time.Time `json:"not_before,omitempty"`
	ChunkSize int       `json:"chunk_size"`
}

func (d JobDescriptor) ToJSON() ([]byte, error) {
	bytes, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JobDescriptor: %w", err)
	}
	return bytes, nil
}

func JobDescriptorFromJSON(data []byte) (zero JobDescriptor, _ error) {
	var d JobDescriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return zero, fmt.Errorf("failed to unmarshal JobDescriptor: %w", err)
	}
	return d, nil
}

type JobStatus string

const (
	JobCompleted JobStatus = "Completed"
	JobFailed    JobStatus = "Failed"
)

// JobOutcome is what the scheduler reports for a finished job run.
type JobOutcome struct {
	Status     JobStatus `json:"status"`
	ErrorCount int       `json:"error_count"`
	Error      string    `json:"error,omitempty"`
}

func (o JobOutcome) ToJSON() ([]byte, error) {
	bytes, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JobOutcome: %w", err)
	}
	return bytes, nil
}

func JobOutcomeFromJSON(data []byte) (zero JobOutcome, _ error) {
	var o JobOutcome
	if err := json.Unmarshal(data, &o); err != nil {
		return zero, fmt.Errorf("failed to unmarshal JobOutcome: %w", err)
	}
	return o, nil
}
