package types

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/datazip-inc/gorgias-tap/constants"
	"github.com/datazip-inc/gorgias-tap/utils/logger"
	"github.com/datazip-inc/gorgias-tap/utils/typeutils"
	"github.com/goccy/go-json"
	"github.com/spf13/viper"
)

type StateType string

const (
	StreamType StateType = "STREAM"
)

// StreamState holds the bookmark of one stream, or of one partition of a
// partitioned child stream.
type StreamState struct {
	Stream    string         `json:"stream"`
	Namespace string         `json:"namespace"`
	Partition string         `json:"partition,omitempty"`
	State     map[string]any `json:"state"`
}

func (s *StreamState) key() string {
	return stateKey(s.Stream, s.Partition)
}

func stateKey(stream, partition string) string {
	if partition == "" {
		return stream
	}
	return stream + "|" + partition
}

type trackedStream struct {
	definition  *StreamDefinition
	incremental bool
}

// State is the incremental state tracker: in-memory high-water marks per stream
// (or stream partition) plus atomic persistence to the state file.
type State struct {
	*sync.RWMutex `json:"-"`
	Type          StateType      `json:"type"`
	Version       int            `json:"version"`
	Streams       []*StreamState `json:"streams,omitempty"`

	tracked map[string]trackedStream
	path    string
}

func NewState() *State {
	return &State{
		RWMutex: &sync.RWMutex{},
		Type:    StreamType,
		Version: constants.LatestStateVersion,
		Streams: []*StreamState{},
		tracked: map[string]trackedStream{},
	}
}

// LoadState reads a state file. Files written by Singer based taps
// ({"bookmarks": {...}}) are migrated on read.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read state file[%s]: %s", path, err)
	}

	state := NewState()
	if len(data) == 0 {
		state.path = path
		return state, nil
	}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state file[%s]: %s", path, err)
	}
	state.path = path
	return state, nil
}

type singerBookmark struct {
	ReplicationKey      string `json:"replication_key"`
	ReplicationKeyValue any    `json:"replication_key_value"`
	Partitions          []struct {
		Context             SyncContext `json:"context"`
		ReplicationKey      string      `json:"replication_key"`
		ReplicationKeyValue any         `json:"replication_key_value"`
	} `json:"partitions"`
}

func (s *State) UnmarshalJSON(data []byte) error {
	aux := struct {
		Type      StateType                 `json:"type"`
		Version   int                       `json:"version"`
		Streams   []*StreamState            `json:"streams,omitempty"`
		Bookmarks map[string]singerBookmark `json:"bookmarks,omitempty"`
	}{}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	if err := decoder.Decode(&aux); err != nil {
		return err
	}
	s.Type = aux.Type
	s.Version = aux.Version
	s.Streams = aux.Streams

	if s.RWMutex == nil {
		s.RWMutex = &sync.RWMutex{}
	}
	if s.tracked == nil {
		s.tracked = map[string]trackedStream{}
	}
	if s.Type == "" {
		s.Type = StreamType
	}

	if len(aux.Bookmarks) > 0 && len(s.Streams) == 0 {
		logger.Infof("migrating %d singer bookmarks to state version %d", len(aux.Bookmarks), constants.LatestStateVersion)
		for stream, bookmark := range aux.Bookmarks {
			if bookmark.ReplicationKey != "" && bookmark.ReplicationKeyValue != nil {
				s.Streams = append(s.Streams, &StreamState{
					Stream: stream,
					State:  map[string]any{bookmark.ReplicationKey: bookmark.ReplicationKeyValue},
				})
			}
			for _, partition := range bookmark.Partitions {
				if partition.ReplicationKey == "" || partition.ReplicationKeyValue == nil {
					continue
				}
				s.Streams = append(s.Streams, &StreamState{
					Stream:    stream,
					Partition: partition.Context.PartitionKey(),
					State:     map[string]any{partition.ReplicationKey: partition.ReplicationKeyValue},
				})
			}
		}
	}
	if s.Version == 0 {
		s.Version = constants.LatestStateVersion
	}
	return nil
}

// SetPath overrides the checkpoint destination; by default the STATE_PATH setting is used.
func (s *State) SetPath(path string) {
	s.Lock()
	defer s.Unlock()
	s.path = path
}

// Track tells the tracker about a stream and the mode it runs in. Observe and
// Resume are no-ops for streams that are not tracked as incremental.
func (s *State) Track(definition *StreamDefinition, mode SyncMode) {
	s.Lock()
	defer s.Unlock()
	incremental := mode == INCREMENTAL && definition.Incremental()
	s.tracked[definition.Name] = trackedStream{definition: definition, incremental: incremental}

	// namespaces are unknown for migrated bookmarks
	for _, stream := range s.Streams {
		if stream.Stream == definition.Name && stream.Namespace == "" {
			stream.Namespace = definition.Namespace
		}
	}
}

// IsIncremental reports whether stream keeps a bookmark in this run.
func (s *State) IsIncremental(stream string) bool {
	s.RLock()
	defer s.RUnlock()
	return s.tracked[stream].incremental
}

func (s *State) lookup(stream, partition string) (trackedStream, string, bool) {
	tracked, found := s.tracked[stream]
	if !found || !tracked.incremental {
		return trackedStream{}, "", false
	}
	if !tracked.definition.StatePartitioned {
		// shared state children accumulate one bookmark for every parent context
		partition = ""
	}
	return tracked, partition, true
}

func (s *State) find(stream, partition string) *StreamState {
	key := stateKey(stream, partition)
	for _, streamState := range s.Streams {
		if streamState.key() == key {
			return streamState
		}
	}
	return nil
}

// Observe raises the high-water mark of stream (and partition) to value if value
// is greater than the current mark. Reports whether the mark moved.
func (s *State) Observe(stream, partition string, value any) bool {
	if value == nil {
		return false
	}

	s.Lock()
	defer s.Unlock()

	tracked, partition, ok := s.lookup(stream, partition)
	if !ok {
		return false
	}

	key := tracked.definition.ReplicationKey
	streamState := s.find(stream, partition)
	if streamState == nil {
		streamState = &StreamState{
			Stream:    stream,
			Namespace: tracked.definition.Namespace,
			Partition: partition,
			State:     map[string]any{},
		}
		s.Streams = append(s.Streams, streamState)
	}

	if current, found := streamState.State[key]; found && typeutils.Compare(value, current) <= 0 {
		return false
	}
	streamState.State[key] = bookmarkValue(value)
	return true
}

// Resume returns the bookmark of stream (and partition), or nil.
func (s *State) Resume(stream, partition string) any {
	s.RLock()
	defer s.RUnlock()

	tracked, partition, ok := s.lookup(stream, partition)
	if !ok {
		return nil
	}
	streamState := s.find(stream, partition)
	if streamState == nil {
		return nil
	}
	return streamState.State[tracked.definition.ReplicationKey]
}

// Clear drops the bookmarks of the given streams, or of every stream when none are given.
func (s *State) Clear(streams ...string) {
	s.Lock()
	defer s.Unlock()

	if len(streams) == 0 {
		s.Streams = []*StreamState{}
		return
	}
	drop := NewSet(streams...)
	kept := make([]*StreamState, 0, len(s.Streams))
	for _, streamState := range s.Streams {
		if !drop.Exists(streamState.Stream) {
			kept = append(kept, streamState)
		}
	}
	s.Streams = kept
}

// Snapshot returns a deep copy that is safe to marshal while the run continues.
func (s *State) Snapshot() *State {
	s.RLock()
	defer s.RUnlock()

	snapshot := &State{
		RWMutex: &sync.RWMutex{},
		Type:    s.Type,
		Version: constants.LatestStateVersion,
		Streams: make([]*StreamState, 0, len(s.Streams)),
		tracked: map[string]trackedStream{},
	}
	for _, streamState := range s.Streams {
		values := make(map[string]any, len(streamState.State))
		for key, value := range streamState.State {
			values[key] = value
		}
		snapshot.Streams = append(snapshot.Streams, &StreamState{
			Stream:    streamState.Stream,
			Namespace: streamState.Namespace,
			Partition: streamState.Partition,
			State:     values,
		})
	}
	sort.Slice(snapshot.Streams, func(i, j int) bool {
		return snapshot.Streams[i].key() < snapshot.Streams[j].key()
	})
	return snapshot
}

// Checkpoint persists every bookmark at once: the snapshot is written to a temp file
// in the target directory, synced and renamed over the state file.
func (s *State) Checkpoint() error {
	s.RLock()
	path := s.path
	s.RUnlock()
	if path == "" {
		path = viper.GetString(constants.StatePath)
	}
	if path == "" {
		logger.Debug("state path not configured, skipping checkpoint")
		return nil
	}

	data, err := json.MarshalIndent(s.Snapshot(), "", "  ")
	if err != nil {
		return &StateError{Path: path, Err: err}
	}
	if err := writeFileAtomic(path, data); err != nil {
		return &StateError{Path: path, Err: err}
	}
	return nil
}

func (s *State) MarshalJSON() ([]byte, error) {
	type alias State
	return json.Marshal((*alias)(s.Snapshot()))
}

func (s *State) LogState() {
	logger.LogState(s.Snapshot())
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// time values are stored as RFC3339 strings so they survive a round trip
func bookmarkValue(value any) any {
	switch v := value.(type) {
	case time.Time:
		return typeutils.FormatTime(v)
	case typeutils.Time:
		return typeutils.FormatTime(v.Time)
	default:
		return value
	}
}
