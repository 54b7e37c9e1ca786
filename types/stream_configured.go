package types

import (
	"fmt"
)

// ConfiguredStream is a catalog entry as edited by the user.
type ConfiguredStream struct {
	Stream *Stream `json:"stream,omitempty"`
}

func (s *ConfiguredStream) ID() string {
	return s.Stream.ID()
}

func (s *ConfiguredStream) Name() string {
	return s.Stream.Name
}

func (s *ConfiguredStream) Namespace() string {
	return s.Stream.Namespace
}

func (s *ConfiguredStream) GetSyncMode() SyncMode {
	if s.Stream.SyncMode == "" {
		return FULLREFRESH
	}
	return s.Stream.SyncMode
}

func (s *ConfiguredStream) Cursor() string {
	return s.Stream.CursorField
}

// Validate checks the configured stream against the stream the source declares
// and returns the schema drift since the catalog was written.
func (s *ConfiguredStream) Validate(source *Stream) ([]SchemaChange, error) {
	if !source.SupportedSyncModes.Exists(s.GetSyncMode()) {
		return nil, fmt.Errorf("invalid sync mode[%s]; valid are %v", s.GetSyncMode(), source.SupportedSyncModes)
	}

	if s.GetSyncMode() == INCREMENTAL && s.Cursor() != "" && !source.AvailableCursorFields.Exists(s.Cursor()) {
		return nil, fmt.Errorf("invalid cursor field [%s]; valid are %v", s.Cursor(), source.AvailableCursorFields)
	}

	if s.Stream.Schema == nil {
		return nil, nil
	}
	return DiffSchemas(s.Stream.Schema, source.Schema), nil
}
