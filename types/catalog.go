package types

import (
	"sort"
)

// StreamMetadata marks a stream as selected for a sync run.
type StreamMetadata struct {
	StreamName string `json:"stream_name"`
}

// Catalog lists every discovered stream; SelectedStreams narrows a sync run to a subset,
// keyed by namespace. A catalog without selections syncs everything.
type Catalog struct {
	SelectedStreams map[string][]StreamMetadata `json:"selected_streams,omitempty"`
	Streams         []*ConfiguredStream         `json:"streams,omitempty"`
}

func GetWrappedCatalog(streams []*Stream) *Catalog {
	catalog := &Catalog{
		SelectedStreams: map[string][]StreamMetadata{},
		Streams:         []*ConfiguredStream{},
	}

	sort.Slice(streams, func(i, j int) bool {
		return streams[i].ID() < streams[j].ID()
	})
	for _, stream := range streams {
		catalog.Streams = append(catalog.Streams, stream.Wrap())
		catalog.SelectedStreams[stream.Namespace] = append(catalog.SelectedStreams[stream.Namespace], StreamMetadata{StreamName: stream.Name})
	}

	return catalog
}

// Selected reports whether stream is part of the run.
func (c *Catalog) Selected(namespace, stream string) bool {
	if len(c.SelectedStreams) == 0 {
		return true
	}
	for _, metadata := range c.SelectedStreams[namespace] {
		if metadata.StreamName == stream {
			return true
		}
	}
	return false
}

// Lookup finds the configured stream by name.
func (c *Catalog) Lookup(namespace, stream string) (*ConfiguredStream, bool) {
	for _, configured := range c.Streams {
		if configured.Name() == stream && configured.Namespace() == namespace {
			return configured, true
		}
	}
	return nil, false
}
