package models

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

const (
	SyncSignalsStream  = "sync-signals"
	SyncSignalsSubject = "status"
)

type SignalStatus string

const (
	SignalSuccess SignalStatus = "Success"
	SignalFailed  SignalStatus = "Failed"
)

// SyncSignal is the fire-and-forget status event published after a terminal
// synchronization result. At is stamped by the publisher when left zero.
type SyncSignal struct {
	Target string       `json:"target"`
	Phase  string       `json:"phase"`
	Status SignalStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
	At     time.Time    `json:"at"`
}

func (s SyncSignal) ToJSON() ([]byte, error) {
	bytes, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal SyncSignal: %w", err)
	}
	return bytes, nil
}

// GetSyncSignalsSubject subject
// Format: "sync-signals.status"
func GetSyncSignalsSubject() string {
	return fmt.Sprintf("%s.%s", SyncSignalsStream, SyncSignalsSubject)
}
