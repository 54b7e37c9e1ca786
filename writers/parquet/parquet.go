package parquet

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/datazip-inc/gorgias-tap/constants"
	"github.com/datazip-inc/gorgias-tap/destination"
	"github.com/datazip-inc/gorgias-tap/types"
	"github.com/datazip-inc/gorgias-tap/utils"
	"github.com/datazip-inc/gorgias-tap/utils/logger"
	"github.com/goccy/go-json"
	pqgo "github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
)

// Row is the on-disk layout: record data is kept as a JSON document so the
// file schema does not depend on the stream schema.
type Row struct {
	RecordID  string    `parquet:"_record_id"`
	Stream    string    `parquet:"stream"`
	Data      string    `parquet:"data"`
	Timestamp time.Time `parquet:"_extracted_at"`
}

type fileMetadata struct {
	fileName    string
	filePath    string
	recordCount int64
	file        *os.File
	writer      *pqgo.GenericWriter[Row]
}

// Parquet destination writes parquet files
// local_path/namespace/stream/<timestamp>_<ulid>.parquet
// and uploads them to S3 on close when a bucket is configured.
type Parquet struct {
	config   *Config
	stream   *types.Stream
	basePath string
	files    []*fileMetadata
	s3Client *s3.Client
}

func (p *Parquet) GetConfigRef() destination.Config {
	p.config = &Config{}
	return p.config
}

func (p *Parquet) Spec() any {
	return Config{}
}

func (p *Parquet) Type() string {
	return string(types.Parquet)
}

func (p *Parquet) codec() compress.Codec {
	switch p.config.Compression {
	case "gzip":
		return &pqgo.Gzip
	case "zstd":
		return &pqgo.Zstd
	case "none", "uncompressed":
		return &pqgo.Uncompressed
	default:
		return &pqgo.Snappy
	}
}

// Check validates the local path and S3 access if applicable.
func (p *Parquet) Check(ctx context.Context) error {
	if err := os.MkdirAll(p.config.Path, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create local path: %s", err)
	}
	if !p.config.s3Enabled() {
		return nil
	}
	_, err := utils.NewArtifactPersister(ctx, p.config.s3Config())
	return err
}

func (p *Parquet) Setup(ctx context.Context, stream *types.Stream) error {
	p.stream = stream
	p.basePath = filepath.Join(stream.Namespace, stream.Name)
	if p.config.s3Enabled() {
		client, err := utils.NewS3Client(ctx, p.config.s3Config())
		if err != nil {
			return fmt.Errorf("failed to setup S3 writer: %s", err)
		}
		p.s3Client = client
	}
	return p.newFile()
}

func (p *Parquet) newFile() error {
	directoryPath := filepath.Join(p.config.Path, p.basePath)
	if err := os.MkdirAll(directoryPath, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create directories[%s]: %s", directoryPath, err)
	}

	fileName := utils.TimestampedFileName(constants.ParquetFileExt)
	filePath := filepath.Join(directoryPath, fileName)
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create parquet file: %s", err)
	}

	p.files = append(p.files, &fileMetadata{
		fileName: fileName,
		filePath: filePath,
		file:     file,
		writer:   pqgo.NewGenericWriter[Row](file, pqgo.Compression(p.codec())),
	})
	return nil
}

func (p *Parquet) current() *fileMetadata {
	return p.files[len(p.files)-1]
}

func (p *Parquet) Write(_ context.Context, records []types.RawRecord) error {
	for _, record := range records {
		if p.config.MaxRows > 0 && p.current().recordCount >= p.config.MaxRows {
			if err := p.closeFile(p.current()); err != nil {
				return err
			}
			if err := p.newFile(); err != nil {
				return err
			}
		}

		data, err := json.Marshal(record.Data)
		if err != nil {
			return fmt.Errorf("failed to marshal record[%s]: %s", record.RecordID, err)
		}
		row := Row{RecordID: record.RecordID, Stream: record.Stream, Data: string(data), Timestamp: record.Timestamp}
		if _, err := p.current().writer.Write([]Row{row}); err != nil {
			return fmt.Errorf("failed to write record: %s", err)
		}
		p.current().recordCount++
	}
	return nil
}

// Checkpoint pushes buffered rows to the file so a crash after the bookmark
// moves cannot lose them.
func (p *Parquet) Checkpoint(_ context.Context, _ string, _ *types.State) error {
	meta := p.current()
	if meta.writer == nil {
		return nil
	}
	if err := meta.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush parquet writer: %s", err)
	}
	return meta.file.Sync()
}

func (p *Parquet) closeFile(meta *fileMetadata) error {
	if meta.writer == nil {
		return nil
	}
	err := utils.ErrExecSequential(meta.writer.Close, meta.file.Close)
	meta.writer = nil
	if err != nil {
		return fmt.Errorf("failed to close parquet file[%s]: %s", meta.filePath, err)
	}
	return nil
}

// Close closes all parquet files, removes empty ones and uploads the rest to S3 if configured.
func (p *Parquet) Close(ctx context.Context) error {
	for _, meta := range p.files {
		if err := p.closeFile(meta); err != nil {
			return err
		}
		if meta.recordCount == 0 {
			logger.Debugf("removing %s: no records written", meta.filePath)
			if err := os.Remove(meta.filePath); err != nil {
				return err
			}
			continue
		}
		logger.Infof("finished writing file [%s] with %d records", meta.filePath, meta.recordCount)

		if p.s3Client != nil {
			key := path.Join(p.config.Prefix, filepath.ToSlash(p.basePath), meta.fileName)
			if err := utils.UploadToS3(ctx, p.s3Client, p.config.Bucket, key, meta.filePath); err != nil {
				return err
			}
		}
	}
	return nil
}

func init() {
	destination.RegisteredWriters[types.Parquet] = func() destination.Writer {
		return new(Parquet)
	}
}
