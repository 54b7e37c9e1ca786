package abstract

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/datazip-inc/gorgias-tap/destination"
	"github.com/datazip-inc/gorgias-tap/pkg/rest"
	"github.com/datazip-inc/gorgias-tap/types"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

type MockConfig struct{}

func (c *MockConfig) Validate() error {
	return nil
}

type MockDriver struct {
	client          *rest.Client
	streams         []*types.StreamDefinition
	maxThreads      int
	maxChildThreads int
	abortOnError    bool
	startDate       string
	setupFunc       func(ctx context.Context) error
	checkFunc       func(ctx context.Context) error
}

func (m *MockDriver) GetConfigRef() Config { return &MockConfig{} }
func (m *MockDriver) Spec() any            { return MockConfig{} }
func (m *MockDriver) Type() string         { return "mock" }

func (m *MockDriver) Setup(ctx context.Context) error {
	if m.setupFunc != nil {
		return m.setupFunc(ctx)
	}
	return nil
}

func (m *MockDriver) Check(ctx context.Context) error {
	if m.checkFunc != nil {
		return m.checkFunc(ctx)
	}
	return nil
}

func (m *MockDriver) MaxThreads() int                    { return m.maxThreads }
func (m *MockDriver) MaxChildThreads() int               { return m.maxChildThreads }
func (m *MockDriver) AbortOnError() bool                 { return m.abortOnError }
func (m *MockDriver) StartDate() string                  { return m.startDate }
func (m *MockDriver) Streams() []*types.StreamDefinition { return m.streams }
func (m *MockDriver) Client() *rest.Client               { return m.client }

// recorder is a destination that keeps every call in memory.
type recorder struct {
	mu     sync.Mutex
	events []string
	rows   map[string][]types.Record
}

func (r *recorder) add(event string, records ...types.RawRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	for _, record := range records {
		r.rows[record.Stream] = append(r.rows[record.Stream], record.Data)
	}
}

func (r *recorder) records(stream string) []types.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Record(nil), r.rows[stream]...)
}

func (r *recorder) ids(stream string) []int64 {
	var ids []int64
	for _, record := range r.records(stream) {
		ids = append(ids, record["id"].(int64))
	}
	return ids
}

func (r *recorder) log() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

var activeRecorder *recorder

type recorderWriter struct {
	stream string
}

func (w *recorderWriter) GetConfigRef() destination.Config  { return &MockConfig{} }
func (w *recorderWriter) Spec() any                          { return MockConfig{} }
func (w *recorderWriter) Type() string                       { return "recorder" }
func (w *recorderWriter) Check(_ context.Context) error      { return nil }
func (w *recorderWriter) Close(_ context.Context) error      { return nil }
func (w *recorderWriter) Setup(_ context.Context, stream *types.Stream) error {
	w.stream = stream.Name
	activeRecorder.add("setup:" + stream.Name)
	return nil
}
func (w *recorderWriter) Write(_ context.Context, records []types.RawRecord) error {
	activeRecorder.add("write:"+w.stream, records...)
	return nil
}
func (w *recorderWriter) Checkpoint(_ context.Context, stream string, _ *types.State) error {
	activeRecorder.add("checkpoint:" + stream)
	return nil
}

func init() {
	destination.RegisteredWriters["recorder"] = func() destination.Writer {
		return &recorderWriter{}
	}
}

func newRecorderPool(t *testing.T) (*destination.WriterPool, *recorder) {
	t.Helper()
	activeRecorder = &recorder{rows: map[string][]types.Record{}}
	pool, err := destination.NewWriter(context.Background(), &types.WriterConfig{Type: "recorder", WriterConfig: map[string]any{}})
	require.NoError(t, err)
	return pool, activeRecorder
}

// fakeAPI serves canned pages keyed by path and cursor and records the request order.
type fakeAPI struct {
	mu        sync.Mutex
	server    *httptest.Server
	pages     map[string]string
	requested []string
	onRequest func(path string)
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	api := &fakeAPI{pages: map[string]string{}}
	api.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		api.mu.Lock()
		api.requested = append(api.requested, r.URL.Path)
		body, found := api.pages[r.URL.Path+"?"+r.URL.Query().Get("cursor")]
		hook := api.onRequest
		api.mu.Unlock()

		if hook != nil {
			hook(r.URL.Path)
		}
		if !found {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":"not found"}`)
			return
		}
		fmt.Fprint(w, body)
	}))
	t.Cleanup(api.server.Close)
	return api
}

// route registers the page served for path at cursor; next is the following cursor.
func (f *fakeAPI) route(path, cursor string, next string, records ...map[string]any) {
	body := map[string]any{"data": records, "meta": map[string]any{}}
	if next != "" {
		body["meta"] = map[string]any{"next_cursor": next}
	}
	encoded, _ := json.Marshal(body)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[path+"?"+cursor] = string(encoded)
}

func (f *fakeAPI) paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requested...)
}

func (f *fakeAPI) count(prefix string) int {
	total := 0
	for _, path := range f.paths() {
		if strings.HasPrefix(path, prefix) {
			total++
		}
	}
	return total
}

func (f *fakeAPI) client(t *testing.T) *rest.Client {
	t.Helper()
	client, err := rest.NewClient(rest.Config{
		BaseURL:        f.server.URL,
		APIKey:         "key",
		Username:       "user@example.com",
		MaxRetries:     1,
		RetryBackoff:   time.Millisecond,
		RequestTimeout: 5 * time.Second,
		MaxConnections: 8,
	})
	require.NoError(t, err)
	return client
}

// newTestDriver sets up an abstract driver whose state checkpoints into a temp dir.
func newTestDriver(t *testing.T, api *fakeAPI, mock *MockDriver) (*AbstractDriver, string) {
	t.Helper()
	mock.client = api.client(t)
	driver := NewAbstractDriver(context.Background(), mock)
	require.NoError(t, driver.Setup(context.Background()))

	statePath := filepath.Join(t.TempDir(), "state.json")
	state := types.NewState()
	state.SetPath(statePath)
	driver.SetupState(state)
	return driver, statePath
}

func ticketsDefinition() *types.StreamDefinition {
	return &types.StreamDefinition{
		Name:           "tickets",
		Namespace:      "gorgias",
		PrimaryKeys:    []string{"id"},
		ReplicationKey: "updated_datetime",
		Path:           "/api/tickets",
		Pagination:     types.PaginationCursor,
		RecordsPath:    "data",
		NextTokenPath:  "meta.next_cursor",
		ChildContext:   map[string]string{"ticket_id": "id"},
		Schema: []types.Field{
			types.NewField("id", types.Integer),
			types.NewField("updated_datetime", types.DateTime),
		},
	}
}

func messagesDefinition() *types.StreamDefinition {
	return &types.StreamDefinition{
		Name:          "messages",
		Namespace:     "gorgias",
		PrimaryKeys:   []string{"id"},
		Parent:        "tickets",
		Path:          "/api/tickets/{ticket_id}/messages",
		Pagination:    types.PaginationCursor,
		RecordsPath:   "data",
		NextTokenPath: "meta.next_cursor",
		Schema: []types.Field{
			types.NewField("id", types.Integer),
			types.NewField("ticket_id", types.Integer),
		},
	}
}

func eventsDefinition() *types.StreamDefinition {
	return &types.StreamDefinition{
		Name:             "ticket_events",
		Namespace:        "gorgias",
		PrimaryKeys:      []string{"id"},
		ReplicationKey:   "created_datetime",
		Parent:           "tickets",
		StatePartitioned: true,
		Path:             "/api/tickets/{ticket_id}/events",
		RecordsPath:      "data",
		Schema: []types.Field{
			types.NewField("id", types.Integer),
			types.NewField("created_datetime", types.DateTime),
		},
	}
}

func customersDefinition() *types.StreamDefinition {
	return &types.StreamDefinition{
		Name:            "customers",
		Namespace:       "gorgias",
		PrimaryKeys:     []string{"id"},
		Path:            "/api/customers",
		Pagination:      types.PaginationCursor,
		RecordsPath:     "data",
		NextTokenPath:   "meta.next_cursor",
		FullRefreshOnly: true,
		Schema:          []types.Field{types.NewField("id", types.Integer), types.NewField("email", types.String)},
	}
}

func ticket(id int, updated string) map[string]any {
	return map[string]any{"id": id, "updated_datetime": updated, "status": "open"}
}

func message(id, ticketID int) map[string]any {
	return map[string]any{"id": id, "ticket_id": ticketID, "body_html": "<p>hi</p>"}
}

func loadBookmark(t *testing.T, statePath string, definition *types.StreamDefinition, partition string) any {
	t.Helper()
	state, err := types.LoadState(statePath)
	require.NoError(t, err)
	state.Track(definition, types.INCREMENTAL)
	return state.Resume(definition.Name, partition)
}
