package local

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/datazip-inc/gorgias-tap/constants"
	"github.com/datazip-inc/gorgias-tap/destination"
	"github.com/datazip-inc/gorgias-tap/types"
	"github.com/datazip-inc/gorgias-tap/utils"
	"github.com/datazip-inc/gorgias-tap/utils/logger"
	"github.com/goccy/go-json"
)

type Config struct {
	BaseFilePath string `json:"local_path" validate:"required"`
}

func (c *Config) Validate() error {
	return utils.Validate(c)
}

// Local destination writes newline delimited JSON files
// local_path/namespace/stream/<ulid>.jsonl
type Local struct {
	config   *Config
	stream   *types.Stream
	filePath string
	file     *os.File
	writer   *bufio.Writer
	records  int64
}

func (l *Local) GetConfigRef() destination.Config {
	l.config = &Config{}
	return l.config
}

func (l *Local) Spec() any {
	return Config{}
}

func (l *Local) Type() string {
	return string(types.Local)
}

func (l *Local) Check(_ context.Context) error {
	if err := os.MkdirAll(l.config.BaseFilePath, os.ModePerm); err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(l.config.BaseFilePath, "temporary-*.txt")
	if err != nil {
		return err
	}
	if _, err := tempFile.WriteString("connectivity check"); err != nil {
		tempFile.Close()
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}
	return os.Remove(tempFile.Name())
}

func (l *Local) Setup(_ context.Context, stream *types.Stream) error {
	fileName := fmt.Sprintf("%s.%s", utils.ULID(), constants.JSONLFileExt)
	l.filePath = filepath.Join(l.config.BaseFilePath, stream.Namespace, stream.Name, fileName)
	if err := os.MkdirAll(filepath.Dir(l.filePath), os.ModePerm); err != nil {
		return err
	}

	file, err := os.Create(l.filePath)
	if err != nil {
		return err
	}
	l.file = file
	l.writer = bufio.NewWriter(file)
	l.stream = stream
	return nil
}

func (l *Local) Write(_ context.Context, records []types.RawRecord) error {
	for _, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to marshal record[%s]: %s", record.RecordID, err)
		}
		if _, err := l.writer.Write(append(line, '\n')); err != nil {
			return err
		}
	}
	l.records += int64(len(records))
	return l.writer.Flush()
}

// Checkpoint makes the written records durable before the bookmark is trusted.
func (l *Local) Checkpoint(_ context.Context, _ string, _ *types.State) error {
	if err := l.writer.Flush(); err != nil {
		return err
	}
	return l.file.Sync()
}

func (l *Local) Close(_ context.Context) error {
	if l.file == nil {
		return nil
	}
	err := utils.ErrExecSequential(l.writer.Flush, l.file.Sync, l.file.Close)
	if err != nil {
		return fmt.Errorf("failed to close file[%s]: %s", l.filePath, err)
	}
	l.file = nil
	logger.Infof("finished writing file [%s] with %d records", l.filePath, l.records)
	return nil
}

func init() {
	destination.RegisteredWriters[types.Local] = func() destination.Writer {
		return new(Local)
	}
}
