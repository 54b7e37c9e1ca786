package types

import (
	"fmt"
)

// Stream is the discoverable description of a stream written to the catalog.
type Stream struct {
	Name                    string         `json:"name"`
	Namespace               string         `json:"namespace,omitempty"`
	Parent                  string         `json:"parent,omitempty"`
	JSONSchema              map[string]any `json:"json_schema,omitempty"`
	Schema                  []Field        `json:"schema,omitempty"`
	SupportedSyncModes      *Set[SyncMode] `json:"supported_sync_modes,omitempty"`
	SourceDefinedPrimaryKey *Set[string]   `json:"source_defined_primary_key,omitempty"`
	AvailableCursorFields   *Set[string]   `json:"available_cursor_fields,omitempty"`
	SyncMode                SyncMode       `json:"sync_mode,omitempty"`
	CursorField             string         `json:"cursor_field,omitempty"`
}

func NewStream(name, namespace string) *Stream {
	return &Stream{
		Name:                    name,
		Namespace:               namespace,
		SupportedSyncModes:      NewSet(FULLREFRESH),
		SourceDefinedPrimaryKey: NewSet[string](),
		AvailableCursorFields:   NewSet[string](),
		SyncMode:                FULLREFRESH,
	}
}

func (s *Stream) ID() string {
	return fmt.Sprintf("%s.%s", s.Namespace, s.Name)
}

func (s *Stream) Wrap() *ConfiguredStream {
	return &ConfiguredStream{Stream: s}
}
