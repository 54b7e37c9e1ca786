package destination

import (
	"context"

	"github.com/datazip-inc/gorgias-tap/types"
)

type Config interface {
	Validate() error
}

type Writer interface {
	GetConfigRef() Config
	Spec() any
	Type() string
	// Check verifies the destination is reachable and writable.
	Check(ctx context.Context) error
	// Setup prepares the writer for a single stream; one writer serves one stream.
	Setup(ctx context.Context, stream *types.Stream) error
	// Write persists a batch of records; an error means none of the batch can be trusted.
	Write(ctx context.Context, records []types.RawRecord) error
	// Checkpoint is called after every record of the stream up to this point was written.
	Checkpoint(ctx context.Context, stream string, state *types.State) error
	Close(ctx context.Context) error
}
