package utils

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/datazip-inc/gorgias-tap/utils/logger"
)

const artifactSubDir = "_tap_runtime" // Directory within the base path for artifacts

// S3ArtifactConfig holds the S3 location and credentials used for run artifacts.
type S3ArtifactConfig struct {
	Bucket       string `json:"s3_bucket" validate:"required"`
	Region       string `json:"s3_region,omitempty"`
	BasePath     string `json:"s3_path,omitempty"`       // prefix within the bucket
	AccessKey    string `json:"s3_access_key,omitempty"` // falls back to the default credential chain
	SecretKey    string `json:"s3_secret_key,omitempty"`
	SessionToken string `json:"s3_session_token,omitempty"`
	Endpoint     string `json:"s3_endpoint,omitempty"` // S3 compatible storage such as MinIO
	PathStyle    bool   `json:"s3_path_style,omitempty"`
}

// NewS3Client builds an S3 client preferring explicit keys over the default chain.
func NewS3Client(ctx context.Context, cfg S3ArtifactConfig) (*s3.Client, error) {
	var options []func(*config.LoadOptions) error
	if cfg.Region != "" {
		options = append(options, config.WithRegion(cfg.Region))
	} else if cfg.Endpoint == "" {
		logger.Warn("S3 region not explicitly provided, relying on the default AWS resolution")
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		options = append(options, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			logger.Infof("Using custom S3 endpoint: %s", cfg.Endpoint)
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		} else {
			o.UsePathStyle = cfg.PathStyle
		}
	}), nil
}

// ArtifactPersister uploads runtime artifacts (state, catalog, logs) to S3.
type ArtifactPersister struct {
	client   *s3.Client
	bucket   string
	basePath string
}

// NewArtifactPersister creates the client and performs a write check against the bucket.
func NewArtifactPersister(ctx context.Context, cfg S3ArtifactConfig) (*ArtifactPersister, error) {
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid artifact persistence config: %s", err)
	}

	client, err := NewS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}

	basePath := artifactSubDir
	if trimmed := strings.Trim(cfg.BasePath, "/"); trimmed != "" {
		basePath = path.Join(trimmed, artifactSubDir)
	}

	persister := &ArtifactPersister{client: client, bucket: cfg.Bucket, basePath: basePath}
	testKey := persister.key(".tap_write_test")
	if _, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(cfg.Bucket),
		Key:    aws.String(testKey),
		Body:   strings.NewReader("artifact persister write test"),
	}); err != nil {
		return nil, fmt.Errorf("S3 write check failed for artifact persister (bucket: %s, key: %s): %w", cfg.Bucket, testKey, err)
	}
	// best effort
	_, _ = client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(cfg.Bucket),
		Key:    aws.String(testKey),
	})

	return persister, nil
}

func (a *ArtifactPersister) key(name string) string {
	return path.Join(a.basePath, name)
}

// UploadFile copies a local file to <base path>/_tap_runtime/<name>.
func (a *ArtifactPersister) UploadFile(ctx context.Context, localPath, name string) error {
	return UploadToS3(ctx, a.client, a.bucket, a.key(name), localPath)
}

// UploadToS3 puts the content of localPath at key.
func UploadToS3(ctx context.Context, client *s3.Client, bucket, key, localPath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer file.Close()

	if _, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   file,
	}); err != nil {
		return fmt.Errorf("failed to upload %s to s3://%s/%s: %w", localPath, bucket, key, err)
	}
	logger.Debugf("uploaded %s to s3://%s/%s", localPath, bucket, key)
	return nil
}
