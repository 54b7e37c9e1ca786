package destination

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/datazip-inc/gorgias-tap/constants"
	"github.com/datazip-inc/gorgias-tap/types"
	"github.com/datazip-inc/gorgias-tap/utils"
	"github.com/datazip-inc/gorgias-tap/utils/logger"
)

type NewFunc func() Writer

var RegisteredWriters = map[types.DestinationType]NewFunc{}

// WriterPool buffers records per stream and hands them to one writer per stream.
// Buffered records are only written on Flush, Checkpoint, Close or when a buffer
// reaches the batch size.
type WriterPool struct {
	recordCount atomic.Int64
	batchSize   int
	config      any
	init        NewFunc

	mu      sync.Mutex
	threads map[string]*streamThread
}

type streamThread struct {
	mu     sync.Mutex
	stream *types.Stream
	writer Writer
	buffer []types.RawRecord
}

// NewWriter resolves the registered writer for config.Type and validates its config.
func NewWriter(ctx context.Context, config *types.WriterConfig) (*WriterPool, error) {
	if config == nil {
		config = types.DefaultWriterConfig()
	}
	newfunc, found := RegisteredWriters[config.Type]
	if !found {
		return nil, fmt.Errorf("invalid destination type has been passed [%s]", config.Type)
	}

	adapter := newfunc()
	ref := adapter.GetConfigRef()
	if err := utils.Unmarshal(config.WriterConfig, ref); err != nil {
		return nil, err
	}
	if err := ref.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s destination config: %s", config.Type, err)
	}
	if err := adapter.Check(ctx); err != nil {
		return nil, fmt.Errorf("failed to test destination: %s", err)
	}

	return &WriterPool{
		batchSize: utils.Ternary(config.BatchSize > 0, config.BatchSize, constants.DefaultBatchSize),
		config:    config.WriterConfig,
		init:      newfunc,
		threads:   make(map[string]*streamThread),
	}, nil
}

// Setup creates the writer for a stream. It is idempotent.
func (w *WriterPool) Setup(ctx context.Context, stream *types.Stream) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.threads[stream.Name]; exists {
		return nil
	}

	writer := w.init()
	if err := utils.Unmarshal(w.config, writer.GetConfigRef()); err != nil {
		return err
	}
	if err := writer.Setup(ctx, stream); err != nil {
		return fmt.Errorf("failed to setup writer for stream[%s]: %s", stream.ID(), err)
	}
	w.threads[stream.Name] = &streamThread{stream: stream, writer: writer}
	return nil
}

func (w *WriterPool) thread(stream string) (*streamThread, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	thread, found := w.threads[stream]
	if !found {
		return nil, fmt.Errorf("writer for stream[%s] has not been setup", stream)
	}
	return thread, nil
}

// Push buffers one record of its stream.
func (w *WriterPool) Push(ctx context.Context, record types.RawRecord) error {
	thread, err := w.thread(record.Stream)
	if err != nil {
		return err
	}

	thread.mu.Lock()
	defer thread.mu.Unlock()
	thread.buffer = append(thread.buffer, record)
	if len(thread.buffer) >= w.batchSize {
		return w.flush(ctx, thread)
	}
	return nil
}

// Flush writes everything buffered for the stream.
func (w *WriterPool) Flush(ctx context.Context, stream string) error {
	thread, err := w.thread(stream)
	if err != nil {
		return err
	}

	thread.mu.Lock()
	defer thread.mu.Unlock()
	return w.flush(ctx, thread)
}

// Checkpoint flushes the stream and then forwards the state to its writer, so the
// destination never sees a bookmark ahead of its records.
func (w *WriterPool) Checkpoint(ctx context.Context, stream string, state *types.State) error {
	thread, err := w.thread(stream)
	if err != nil {
		return err
	}

	thread.mu.Lock()
	defer thread.mu.Unlock()
	if err := w.flush(ctx, thread); err != nil {
		return err
	}
	return thread.writer.Checkpoint(ctx, stream, state)
}

// caller must hold thread.mu
func (w *WriterPool) flush(ctx context.Context, thread *streamThread) error {
	if len(thread.buffer) == 0 {
		return nil
	}
	if err := thread.writer.Write(ctx, thread.buffer); err != nil {
		return fmt.Errorf("failed to write records of stream[%s]: %s", thread.stream.ID(), err)
	}
	w.recordCount.Add(int64(len(thread.buffer)))
	thread.buffer = thread.buffer[:0]
	return nil
}

// Close flushes and closes every stream writer.
func (w *WriterPool) Close(ctx context.Context) error {
	w.mu.Lock()
	names := make([]string, 0, len(w.threads))
	for name := range w.threads {
		names = append(names, name)
	}
	w.mu.Unlock()
	sort.Strings(names)

	closers := make([]func() error, 0, len(names))
	for _, name := range names {
		closers = append(closers, func() error {
			thread, err := w.thread(name)
			if err != nil {
				return err
			}
			thread.mu.Lock()
			defer thread.mu.Unlock()
			if err := w.flush(ctx, thread); err != nil {
				return err
			}
			logger.Debugf("closing writer for stream[%s]", thread.stream.ID())
			return thread.writer.Close(ctx)
		})
	}
	return utils.ErrExecSequential(closers...)
}

// Returns total records written at runtime
func (w *WriterPool) SyncedRecords() int64 {
	return w.recordCount.Load()
}
