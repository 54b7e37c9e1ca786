package types

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

type PaginationMode string

const (
	// continuation token read from NextTokenPath and sent back as the cursor param
	PaginationCursor PaginationMode = "cursor"
	// continuation token is the URL (or path) of the next page
	PaginationNextURL PaginationMode = "next_url"
	PaginationOffset  PaginationMode = "offset"
	PaginationNone    PaginationMode = "none"
)

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// StreamDefinition declares how one resource is fetched and shaped.
// Definitions are immutable once registered.
type StreamDefinition struct {
	Name        string
	Namespace   string
	PrimaryKeys []string
	// empty for streams without a usable replication key
	ReplicationKey string
	Parent         string
	// endpoint template, e.g. /api/tickets/{ticket_id}/messages
	Path       string
	Pagination PaginationMode
	// dot path of the record array in the response body, empty when the body is the record
	RecordsPath   string
	NextTokenPath string
	Params        map[string]string

	FullRefreshOnly bool
	// one bookmark per parent context instead of one per stream
	StatePartitioned bool
	// placeholder name -> field of this stream's record, for child streams
	ChildContext map[string]string

	Schema     []Field
	Transforms TransformRules
}

// Incremental reports whether the stream can resume from a bookmark.
func (d *StreamDefinition) Incremental() bool {
	return d.ReplicationKey != "" && !d.FullRefreshOnly
}

func (d *StreamDefinition) IsChild() bool {
	return d.Parent != ""
}

func (d *StreamDefinition) SupportedSyncModes() *Set[SyncMode] {
	if d.Incremental() {
		return NewSet(FULLREFRESH, INCREMENTAL)
	}
	return NewSet(FULLREFRESH)
}

// Placeholders lists the {name} segments of the endpoint template in order.
func (d *StreamDefinition) Placeholders() []string {
	return Placeholders(d.Path)
}

// ExpandPath renders the endpoint template with values from ctx.
func (d *StreamDefinition) ExpandPath(ctx SyncContext) (string, error) {
	path, err := ExpandPath(d.Path, ctx)
	if err != nil {
		if contextErr, ok := err.(*ContextError); ok {
			contextErr.Stream = d.Name
		}
		return "", err
	}
	return path, nil
}

func (d *StreamDefinition) ID() string {
	return fmt.Sprintf("%s.%s", d.Namespace, d.Name)
}

// Stream is the catalog view of the definition.
func (d *StreamDefinition) Stream() *Stream {
	stream := NewStream(d.Name, d.Namespace)
	stream.Parent = d.Parent
	stream.Schema = d.Schema
	stream.JSONSchema = SchemaToJSON(d.Schema)
	stream.SupportedSyncModes = d.SupportedSyncModes()
	stream.SourceDefinedPrimaryKey = NewSet(d.PrimaryKeys...)
	if d.Incremental() {
		stream.AvailableCursorFields = NewSet(d.ReplicationKey)
		stream.SyncMode = INCREMENTAL
		stream.CursorField = d.ReplicationKey
	}
	return stream
}

func Placeholders(template string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(template, -1)
	names := make([]string, 0, len(matches))
	for _, match := range matches {
		names = append(names, match[1])
	}
	return names
}

// ExpandPath substitutes every {name} in template with the URL escaped value from ctx.
func ExpandPath(template string, ctx SyncContext) (string, error) {
	var missing string
	expanded := placeholderPattern.ReplaceAllStringFunc(template, func(segment string) string {
		name := segment[1 : len(segment)-1]
		value, found := ctx[name]
		if !found || value == nil {
			if missing == "" {
				missing = name
			}
			return segment
		}
		return url.PathEscape(fmt.Sprint(value))
	})
	if missing != "" {
		return "", &ContextError{Field: missing}
	}
	return expanded, nil
}

// SyncContext maps placeholder names to values projected from one parent record.
type SyncContext map[string]any

// PartitionKey is the canonical k=v list used to key partitioned bookmarks.
func (c SyncContext) PartitionKey() string {
	if len(c) == 0 {
		return ""
	}
	keys := make([]string, 0, len(c))
	for key := range c {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", key, c[key]))
	}
	return strings.Join(parts, ",")
}

// TransformRules are the declarative per-stream reshaping tables.
type TransformRules struct {
	Prune       []PruneRule
	DynamicKeys []DynamicKeyRule
}

func (r TransformRules) Empty() bool {
	return len(r.Prune) == 0 && len(r.DynamicKeys) == 0
}

// PruneRule removes Fields (dot paths) from the record and from every element
// of each array field listed in Nested.
type PruneRule struct {
	Fields []string
	Nested []string
}

// DynamicKeyRule rewrites the mapping at Within so that the single sub-object whose
// DiscriminatorField equals DiscriminatorValue is stored under CanonicalKey, keeping
// its original key in OriginalKeyField.
type DynamicKeyRule struct {
	Within             string
	DiscriminatorField string
	DiscriminatorValue string
	CanonicalKey       string
	OriginalKeyField   string
}

func (r DynamicKeyRule) OriginalKey() string {
	if r.OriginalKeyField == "" {
		return "id"
	}
	return r.OriginalKeyField
}
