package constants

import (
	"time"
)

type DriverType string

const (
	Gorgias DriverType = "gorgias"
)

const (
	JSONLFileExt   = "jsonl"
	ParquetFileExt = "parquet"
)

// viper keys
const (
	ConfigFolder   = "CONFIG_FOLDER"
	StatePath      = "STATE_PATH"
	StreamsPath    = "STREAMS_PATH"
	EncryptionKey  = "ENCRYPTION_KEY"
	LogLevel       = "LOG_LEVEL"
	DisableLogFile = "DISABLE_LOG_FILE"
)

const (
	DefaultThreadCount      = 3
	DefaultChildThreadCount = 1
	DefaultRetryCount       = 5
	DefaultRetryBackoff     = time.Second
	DefaultMaxRetryBackoff  = time.Minute
	DefaultRequestTimeout   = 60 * time.Second
	DefaultPageSize         = 100
	DefaultMaxPages         = 100000
	DefaultRequestsPerSec   = 2.0
	DefaultBatchSize        = 1000
)
