package abstract

import (
	"fmt"
	"sync"
	"time"

	"github.com/datazip-inc/gorgias-tap/utils/logger"
	"github.com/hashicorp/go-multierror"
)

type StreamStatus string

const (
	StatusPending   StreamStatus = "pending"
	StatusRunning   StreamStatus = "running"
	StatusCompleted StreamStatus = "completed"
	StatusFailed    StreamStatus = "failed"
	StatusSkipped   StreamStatus = "skipped"
)

var transitions = map[StreamStatus][]StreamStatus{
	StatusPending: {StatusRunning, StatusFailed, StatusSkipped},
	StatusRunning: {StatusCompleted, StatusFailed, StatusSkipped},
}

// StreamReport is the outcome of one stream in a run.
type StreamReport struct {
	Stream      string
	Status      StreamStatus
	Records     int64 // emitted to the destination
	Skipped     int64 // below the bookmark, already delivered by an earlier run
	Pages       int64
	Invocations int64
	Err         error
	Reason      string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// RunReport tracks the status machine of every stream taking part in a run.
type RunReport struct {
	mu      sync.Mutex
	order   []string
	streams map[string]*StreamReport
}

func newRunReport(streams ...string) *RunReport {
	report := &RunReport{streams: make(map[string]*StreamReport, len(streams))}
	for _, stream := range streams {
		report.order = append(report.order, stream)
		report.streams[stream] = &StreamReport{Stream: stream, Status: StatusPending}
	}
	return report
}

// caller must hold r.mu
func (r *RunReport) transition(stream string, to StreamStatus) (*StreamReport, bool) {
	entry, found := r.streams[stream]
	if !found {
		return nil, false
	}
	for _, allowed := range transitions[entry.Status] {
		if allowed == to {
			entry.Status = to
			if to == StatusRunning {
				entry.StartedAt = time.Now()
			} else {
				entry.FinishedAt = time.Now()
			}
			return entry, true
		}
	}
	return entry, false
}

// start moves a stream to running and counts the invocation; it reports false
// once the stream reached a terminal status.
func (r *RunReport) start(stream string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, found := r.streams[stream]
	if !found {
		return false
	}
	if entry.Status == StatusPending {
		r.transition(stream, StatusRunning)
	}
	if entry.Status != StatusRunning {
		return false
	}
	entry.Invocations++
	return true
}

func (r *RunReport) complete(stream string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// a child whose parent yielded no records never started
	if entry, found := r.streams[stream]; found && entry.Status == StatusPending {
		r.transition(stream, StatusRunning)
	}
	r.transition(stream, StatusCompleted)
}

// fail records the first error of a stream; later errors are ignored.
func (r *RunReport) fail(stream string, err error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, moved := r.transition(stream, StatusFailed)
	if moved {
		entry.Err = err
	}
	return moved
}

func (r *RunReport) skip(stream, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, moved := r.transition(stream, StatusSkipped); moved {
		entry.Reason = reason
	}
}

func (r *RunReport) page(stream string, records, skipped int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, found := r.streams[stream]; found {
		entry.Pages++
		entry.Records += records
		entry.Skipped += skipped
	}
}

// Active reports whether the stream may still be invoked.
func (r *RunReport) Active(stream string) bool {
	return r.Status(stream) == StatusPending || r.Status(stream) == StatusRunning
}

func (r *RunReport) Status(stream string) StreamStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, found := r.streams[stream]; found {
		return entry.Status
	}
	return ""
}

// Get returns a copy of the stream's report.
func (r *RunReport) Get(stream string) (StreamReport, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, found := r.streams[stream]
	if !found {
		return StreamReport{}, false
	}
	return *entry, true
}

// Streams returns copies of every stream report in topological order.
func (r *RunReport) Streams() []StreamReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	reports := make([]StreamReport, 0, len(r.order))
	for _, stream := range r.order {
		reports = append(reports, *r.streams[stream])
	}
	return reports
}

// Err aggregates the errors of failed streams.
func (r *RunReport) Err() error {
	var errs error
	for _, report := range r.Streams() {
		if report.Status == StatusFailed {
			errs = multierror.Append(errs, fmt.Errorf("stream[%s]: %w", report.Stream, report.Err))
		}
	}
	return errs
}

func (r *RunReport) Log() {
	for _, report := range r.Streams() {
		event := logger.With("stream", report.Stream, "status", report.Status, "records", report.Records,
			"skipped", report.Skipped, "pages", report.Pages, "invocations", report.Invocations)
		switch report.Status {
		case StatusFailed:
			event.Error().Err(report.Err).Msg("stream failed")
		case StatusSkipped:
			event.Warn().Str("reason", report.Reason).Msg("stream skipped")
		default:
			event.Info().Dur("elapsed", report.FinishedAt.Sub(report.StartedAt)).Msg("stream finished")
		}
	}
}
