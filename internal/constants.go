package internal

import "time"

// Default values
const (
	// Declared attribute types as they arrive from the insight metadata feed
	TypeNumber        = "NUMBER"
	TypeString        = "STRING"
	TypeLongTextArea  = "LongTextArea"
	TypeBoolean       = "Boolean"
	TypeCurrency      = "Currency"
	TypeDecimal       = "Decimal"
	TypePercent       = "Percent"
	TypeDate          = "Date"
	TypeDateTime      = "DateTime"
	TypeText          = "Text"
	TypePicklist      = "Picklist"
	TypeMultiPicklist = "MultiPicklist"
	TypeEmail         = "Email"
	TypePhone         = "Phone"
	TypeURL           = "URL"

	// Field creation defaults
	NumberFieldPrecision = 18
	NumberFieldScale     = 0
	TextFieldLength      = 255
	LongTextFieldLength  = 32000

	// Config store keys
	ConfigKeyMaxAttempts       = "sync.max_attempts"
	ConfigKeyRetryIntervalMins = "sync.retry_interval_minutes"
	ConfigKeyAccessRole        = "sync.access_role"

	// Config store defaults, applied when a key is absent
	DefaultMaxAttempts          = 1
	DefaultRetryIntervalMinutes = 5

	// Delta feed constants
	DeltaFieldDelimiter = ','
	DeltaMinColumns     = 5
	// Fixed-width form the external timestamp is normalized into before parsing
	DeltaTimestampLayout = "2006-01-02 15:04:05.000"
	DateLayout           = "2006-01-02"

	// Job kind constants
	JobKindSyncStage = "sync-stage"

	// Scheduler constants
	SchedulerStreamName   = "is-jobs"
	SchedulerSubject      = "is-jobs.stage"
	SchedulerConsumerName = "is-jobs-runner"
	SchedulerAckWait      = 5 * time.Minute
	SchedulerFetchWait    = 5 * time.Second
	DefaultChunkSize      = 200

	// KV bucket names
	ConfigBucket     = "sync-config"
	StatusBucket     = "sync-status"
	ErrorBucket      = "sync-errors"
	JobOutcomeBucket = "job-outcomes"

	// Delta ingestion stream constants
	DeltaStreamName        = "is-delta"
	DeltaSubjectName       = "is-delta.batches"
	DeltaConsumerName      = "is-delta-ingestor"
	IngestDefaultBatchSize = 16
	IngestDefaultMaxDelay  = 30 * time.Second
	IngestShutdownTimeout  = 5 * time.Second
	AckRetryAttempts       = 3
	AckRetryDelay          = 500 * time.Millisecond
	UpsertRetryAttempts    = 3
	UpsertRetryDelay       = 1 * time.Second

	// FetchRetryDelay is the delay between retries when fetching messages from a NATS stream
	FetchRetryDelay = 100 * time.Millisecond

	// NATS client constants
	NATSConnectionTimeout = 1 * time.Minute
	NATSConnectionRetries = 12
	NATSInitialRetryDelay = 1 * time.Second
	NATSMaxRetryDelay     = 30 * time.Second
	NATSMaxConnectionWait = 2 * time.Minute

	// Schema admin client constants
	AdminDefaultTimeout = 30 * time.Second
)
