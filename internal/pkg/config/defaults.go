package config

import "time"

// Значения по умолчанию для конфигурации.
const (
	// Server defaults
	DefaultServerHost             = "0.0.0.0"
	DefaultServerPort             = 8080
	DefaultReadTimeout            = 10 * time.Second
	DefaultWriteTimeout           = 10 * time.Second
	DefaultIdleTimeout            = 60 * time.Second
	DefaultShutdownTimeoutSeconds = 15
	DefaultCleanupInterval        = 1 * time.Hour

	// Merge defaults
	DefaultStreamBatchSize          = 1000
	DefaultCopierPoolSize           = 4
	DefaultCopierRetryPauseSeconds  = 1
	DefaultCopyTimeoutSeconds       = 30
	DefaultMergeTotalTimeoutSeconds = 0 // 0 - без ограничений

	// Storage defaults
	DefaultSQLiteDir    = "./data"
	DefaultTaskTTLHours = 24

	// Logging defaults
	DefaultLogLevel = "info"
)
