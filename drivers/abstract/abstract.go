package abstract

import (
	"context"
	"fmt"

	"github.com/datazip-inc/gorgias-tap/constants"
	"github.com/datazip-inc/gorgias-tap/types"
	"github.com/datazip-inc/gorgias-tap/utils"
)

type AbstractDriver struct { //nolint:revive
	driver         DriverInterface
	state          *types.State
	resume         *types.State
	registry       *Registry
	report         *RunReport
	GlobalCtxGroup *utils.CxGroup
}

func NewAbstractDriver(ctx context.Context, driver DriverInterface) *AbstractDriver {
	return &AbstractDriver{
		driver:         driver,
		state:          types.NewState(),
		GlobalCtxGroup: utils.NewCGroupWithLimit(ctx, constants.DefaultThreadCount),
	}
}

func (a *AbstractDriver) SetupState(state *types.State) {
	a.state = state
}

func (a *AbstractDriver) GetConfigRef() Config {
	return a.driver.GetConfigRef()
}

func (a *AbstractDriver) Spec() any {
	return a.driver.Spec()
}

func (a *AbstractDriver) Type() string {
	return a.driver.Type()
}

// Setup prepares the driver and validates its stream declarations.
func (a *AbstractDriver) Setup(ctx context.Context) error {
	if err := a.driver.Setup(ctx); err != nil {
		return err
	}
	registry, err := NewRegistry(a.driver.Streams()...)
	if err != nil {
		return fmt.Errorf("failed to register streams: %s", err)
	}
	a.registry = registry
	return nil
}

// Check verifies credentials and reachability. Transient failures are
// already retried by the driver's REST client.
func (a *AbstractDriver) Check(ctx context.Context) error {
	return a.driver.Check(ctx)
}

func (a *AbstractDriver) Registry() *Registry {
	return a.registry
}

// Report is the status of the last run, nil before the first Read.
func (a *AbstractDriver) Report() *RunReport {
	return a.report
}

// Discover lists every registered stream, parents first, defaulting to
// incremental sync where the stream supports it.
func (a *AbstractDriver) Discover(_ context.Context) ([]*types.Stream, error) {
	if a.registry == nil {
		return nil, fmt.Errorf("driver not setup")
	}

	streams := make([]*types.Stream, 0, len(a.registry.order))
	for _, definition := range a.registry.Order() {
		stream := definition.Stream()
		stream.SyncMode = utils.Ternary(stream.SupportedSyncModes.Exists(types.INCREMENTAL), types.INCREMENTAL, types.FULLREFRESH)
		streams = append(streams, stream)
	}
	return streams, nil
}

// ClearState drops the bookmarks of the given streams and of their descendants,
// whose bookmarks are only meaningful relative to the parent's.
func (a *AbstractDriver) ClearState(streams []*types.ConfiguredStream) (*types.State, error) {
	if a.state == nil {
		return types.NewState(), nil
	}

	drop := types.NewSet[string]()
	for _, stream := range streams {
		drop.Insert(stream.Name())
		if a.registry != nil {
			for _, descendant := range a.registry.Descendants(stream.Name()) {
				drop.Insert(descendant.Name)
			}
		}
	}
	if drop.Len() == 0 {
		return a.state, nil
	}
	a.state.Clear(drop.Array()...)
	return a.state, nil
}
