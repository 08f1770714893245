package config

import "time"

// Server defaults
const (
	DefaultPort         = "8080"
	DefaultMaxMemoryMB  = 48
	DefaultDataDir      = "./data"
	DefaultLogLevel     = "info"
	DefaultStoreBackend = BackendBadger
)

// Storage backends
const (
	BackendMemory   = "memory"
	BackendBadger   = "badger"
	BackendPostgres = "postgres"
	BackendSupabase = "supabase"
)

// Background task intervals
const (
	DefaultRollupInterval = 15 * time.Minute
	DefaultRollupLookback = 48 * time.Hour
	RetentionInterval     = 1 * time.Hour
	BadgerGCInterval      = 10 * time.Minute
	RollupTimeout         = 5 * time.Minute
	RollupMaxRetries      = 3
	RollupInitialBackoff  = 1 * time.Second
)

// Index defaults
const (
	DefaultBaselineLag = 24 * time.Hour
)

// Query timeouts and defaults
const (
	QueryTimeout        = 30 * time.Second
	DefaultChartDays    = 7
	MaxChartDays        = 365
	DefaultStatsDays    = 7
	DefaultDataLimit    = 100
	MaxDataLimit        = 5000
	DefaultDataHours    = 24
	DefaultSummaryDays  = 7
	HealthCheckTimeout  = 5 * time.Second
	ShutdownGracePeriod = 10 * time.Second
)

// Ingest timeouts and limits
const (
	IngestTimeout      = 5 * time.Second
	IngestMaxBatch     = 1000
	IngestMaxBodyBytes = 1 << 20
)

// Export defaults and limits
const (
	DefaultExportWindow = 24 * time.Hour
	MaxExportWindow     = 30 * 24 * time.Hour
	ImportMaxBodyBytes  = 64 << 20
)

// WebSocket configuration
const (
	WSReadBufferSize  = 1024
	WSWriteBufferSize = 1024
	WSBroadcastBuffer = 256
	WSChannelBuffer   = 10
	WSWriteDeadline   = 10 * time.Second
	WSReadDeadline    = 60 * time.Second
	WSPingInterval    = 30 * time.Second
	BroadcastInterval = 30 * time.Second
	BroadcastTimeout  = 10 * time.Second
)
