package types

type DestinationType string

const (
	Stdout  DestinationType = "stdout"
	Local   DestinationType = "local"
	Parquet DestinationType = "parquet"
)

type WriterConfig struct {
	Type         DestinationType `json:"type" validate:"required"`
	WriterConfig any             `json:"writer"`
	// records buffered per stream before a forced flush; 0 uses the default
	BatchSize int `json:"batch_size,omitempty" validate:"gte=0"`
}

// DefaultWriterConfig is used when sync runs without a destination file.
func DefaultWriterConfig() *WriterConfig {
	return &WriterConfig{Type: Stdout, WriterConfig: map[string]any{}}
}
