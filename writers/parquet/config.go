package parquet

import (
	"fmt"

	"github.com/datazip-inc/gorgias-tap/utils"
)

type Config struct {
	Path      string `json:"local_path" validate:"required"` // Local file path (for local file system usage)
	Bucket    string `json:"s3_bucket,omitempty"`
	Region    string `json:"s3_region,omitempty"`
	AccessKey string `json:"s3_access_key,omitempty"`
	SecretKey string `json:"s3_secret_key,omitempty"`
	Prefix    string `json:"s3_path,omitempty"`
	// S3 endpoint for custom S3-compatible services (like MinIO)
	S3Endpoint string `json:"s3_endpoint,omitempty"`

	Compression string `json:"compression,omitempty"` // snappy (default), gzip, zstd, none
	MaxRows     int64  `json:"max_rows_per_file,omitempty" validate:"gte=0"`
}

var validCompressions = []string{"snappy", "gzip", "zstd", "none", "uncompressed"}

func (c *Config) Validate() error {
	if c.Compression != "" && !utils.ArrayContains(validCompressions, c.Compression) {
		return fmt.Errorf("invalid compression codec: %s. Valid options are: snappy, gzip, zstd, none, uncompressed", c.Compression)
	}
	return utils.Validate(c)
}

func (c *Config) s3Enabled() bool {
	return c.Bucket != ""
}

func (c *Config) s3Config() utils.S3ArtifactConfig {
	return utils.S3ArtifactConfig{
		Bucket:    c.Bucket,
		Region:    c.Region,
		BasePath:  c.Prefix,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		Endpoint:  c.S3Endpoint,
	}
}
