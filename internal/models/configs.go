package models

// ClickHouseConnectionConfig holds connection parameters for the record store.
type ClickHouseConnectionConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	Database string `json:"database"`
	Table    string `json:"table"`
	Secure   bool   `json:"secure"`
}

// SyncCatalog is the file-provided catalog of insight definitions plus the
// on-success hooks the orchestrator fans out to.
type SyncCatalog struct {
	Definitions []InsightDefinition `json:"definitions"`
	OnSuccess   []SyncHook          `json:"on_success,omitempty"`
}
