package abstract

import (
	"context"

	"github.com/datazip-inc/gorgias-tap/pkg/rest"
	"github.com/datazip-inc/gorgias-tap/types"
)

type Config interface {
	Validate() error
}

type DriverInterface interface {
	GetConfigRef() Config
	Spec() any
	Type() string
	// specific to test & setup
	Setup(ctx context.Context) error
	Check(ctx context.Context) error
	// sync artifacts
	MaxThreads() int
	MaxChildThreads() int
	AbortOnError() bool
	// lower bound for incremental streams without a bookmark, empty for none
	StartDate() string
	// stream declarations and the client that serves them; valid after Setup
	Streams() []*types.StreamDefinition
	Client() *rest.Client
}
