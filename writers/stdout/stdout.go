package stdout

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/datazip-inc/gorgias-tap/destination"
	"github.com/datazip-inc/gorgias-tap/types"
	"github.com/datazip-inc/gorgias-tap/utils"
	"github.com/datazip-inc/gorgias-tap/utils/typeutils"
	"github.com/goccy/go-json"
)

// all stream writers share one output
var outputMu sync.Mutex

type Config struct {
	// skip SCHEMA messages, for consumers that already know the catalog
	DisableSchemaMessages bool `json:"disable_schema_messages,omitempty"`
}

func (c *Config) Validate() error {
	return utils.Validate(c)
}

// Stdout emits Singer style SCHEMA, RECORD and STATE messages, one JSON document per line.
type Stdout struct {
	config *Config
	stream *types.Stream
	out    io.Writer
}

type schemaMessage struct {
	Type               types.MessageType `json:"type"`
	Stream             string            `json:"stream"`
	Schema             map[string]any    `json:"schema"`
	KeyProperties      []string          `json:"key_properties"`
	BookmarkProperties []string          `json:"bookmark_properties,omitempty"`
}

type recordMessage struct {
	Type          types.MessageType `json:"type"`
	Stream        string            `json:"stream"`
	Record        types.Record      `json:"record"`
	TimeExtracted string            `json:"time_extracted"`
}

type stateMessage struct {
	Type  types.MessageType `json:"type"`
	Value *types.State      `json:"value"`
}

func (s *Stdout) GetConfigRef() destination.Config {
	s.config = &Config{}
	return s.config
}

func (s *Stdout) Spec() any {
	return Config{}
}

func (s *Stdout) Type() string {
	return string(types.Stdout)
}

func (s *Stdout) Check(_ context.Context) error {
	return nil
}

func (s *Stdout) Setup(_ context.Context, stream *types.Stream) error {
	s.stream = stream
	if s.out == nil {
		s.out = os.Stdout
	}
	if s.config != nil && s.config.DisableSchemaMessages {
		return nil
	}

	var bookmarks []string
	if stream.CursorField != "" {
		bookmarks = []string{stream.CursorField}
	}
	return s.emit(schemaMessage{
		Type:               types.SchemaMessage,
		Stream:             stream.Name,
		Schema:             stream.JSONSchema,
		KeyProperties:      stream.SourceDefinedPrimaryKey.Array(),
		BookmarkProperties: bookmarks,
	})
}

func (s *Stdout) Write(_ context.Context, records []types.RawRecord) error {
	messages := make([]any, 0, len(records))
	for _, record := range records {
		messages = append(messages, recordMessage{
			Type:          types.RecordMessage,
			Stream:        record.Stream,
			Record:        record.Data,
			TimeExtracted: typeutils.FormatTime(record.Timestamp),
		})
	}
	return s.emit(messages...)
}

func (s *Stdout) Checkpoint(_ context.Context, _ string, state *types.State) error {
	return s.emit(stateMessage{Type: types.StateMessage, Value: state.Snapshot()})
}

func (s *Stdout) Close(_ context.Context) error {
	return nil
}

func (s *Stdout) emit(messages ...any) error {
	outputMu.Lock()
	defer outputMu.Unlock()

	buffered := bufio.NewWriter(s.out)
	for _, message := range messages {
		line, err := json.Marshal(message)
		if err != nil {
			return fmt.Errorf("failed to marshal %T: %s", message, err)
		}
		if _, err := buffered.Write(append(line, '\n')); err != nil {
			return err
		}
	}
	return buffered.Flush()
}

func init() {
	destination.RegisteredWriters[types.Stdout] = func() destination.Writer {
		return new(Stdout)
	}
}
