package abstract

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/datazip-inc/gorgias-tap/constants"
	"github.com/datazip-inc/gorgias-tap/destination"
	"github.com/datazip-inc/gorgias-tap/pkg/rest"
	"github.com/datazip-inc/gorgias-tap/pkg/transform"
	"github.com/datazip-inc/gorgias-tap/types"
	"github.com/datazip-inc/gorgias-tap/utils"
	"github.com/datazip-inc/gorgias-tap/utils/logger"
	"github.com/datazip-inc/gorgias-tap/utils/typeutils"
	"github.com/hashicorp/go-multierror"
)

// streamPlan is the part one stream plays in a run.
type streamPlan struct {
	definition *types.StreamDefinition
	mode       types.SyncMode
	// selected in the catalog; unselected streams only drive their children
	emit     bool
	parent   *streamPlan
	children []*streamPlan
	// set once a descendant failed: the bookmark stays put for the rest of the run
	frozen atomic.Bool
}

type childInvocation struct {
	plan   *streamPlan
	record types.Record
}

// Read syncs every selected stream. Root streams run concurrently up to max_threads;
// child streams run once per parent record. A page is committed (bookmark observed,
// state checkpointed) only after its records are flushed and its child syncs are done.
func (a *AbstractDriver) Read(ctx context.Context, pool *destination.WriterPool, catalog *types.Catalog) (*RunReport, error) {
	if a.registry == nil {
		return nil, fmt.Errorf("driver not setup")
	}

	plans, err := a.planRun(ctx, pool, catalog)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(plans))
	var roots []*streamPlan
	for _, plan := range plans {
		names = append(names, plan.definition.Name)
		if plan.parent == nil {
			roots = append(roots, plan)
		}
	}
	a.report = newRunReport(names...)
	if len(roots) == 0 {
		logger.Warn("no streams selected for sync")
		return a.report, nil
	}

	// bounds come from the state the run started with, so bookmarks raised during
	// the run never hide records of other parents sharing a bookmark
	a.resume = a.state.Snapshot()
	for _, plan := range plans {
		a.resume.Track(plan.definition, plan.mode)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.GlobalCtxGroup = utils.NewCGroupWithLimit(runCtx, utils.Ternary(a.driver.MaxThreads() > 0, a.driver.MaxThreads(), constants.DefaultThreadCount))
	for _, root := range roots {
		a.GlobalCtxGroup.Add(func(ctx context.Context) error {
			return a.syncRoot(ctx, pool, root)
		})
	}
	groupErr := a.GlobalCtxGroup.Block()

	for _, name := range names {
		if a.report.Status(name) == StatusPending {
			a.report.skip(name, "run stopped before the stream started")
		}
	}

	checkpointErr := a.state.Checkpoint()
	a.report.Log()
	logger.Infof("sync finished, %d records written", pool.SyncedRecords())

	if groupErr != nil {
		return a.report, multierror.Append(fmt.Errorf("sync aborted: %w", groupErr), checkpointErr).ErrorOrNil()
	}
	return a.report, multierror.Append(a.report.Err(), checkpointErr).ErrorOrNil()
}

// planRun resolves the catalog against the registry: selected streams plus the
// ancestors needed to drive them, in topological order.
func (a *AbstractDriver) planRun(ctx context.Context, pool *destination.WriterPool, catalog *types.Catalog) ([]*streamPlan, error) {
	selected := make(map[string]*types.ConfiguredStream)
	for _, definition := range a.registry.Order() {
		source := definition.Stream()
		if catalog == nil || len(catalog.Streams) == 0 {
			selected[definition.Name] = source.Wrap()
			continue
		}

		configured, found := catalog.Lookup(definition.Namespace, definition.Name)
		if !found || !catalog.Selected(definition.Namespace, definition.Name) {
			continue
		}
		changes, err := configured.Validate(source)
		if err != nil {
			return nil, fmt.Errorf("stream[%s]: %s", definition.ID(), err)
		}
		for _, change := range changes {
			logger.Warnf("stream[%s]: schema changed since discover: %s", definition.ID(), change)
		}
		selected[definition.Name] = configured
	}

	active := make(map[string]bool)
	for name := range selected {
		for definition, found := a.registry.Get(name); found; definition, found = a.registry.Get(definition.Parent) {
			active[definition.Name] = true
		}
	}

	plans := make(map[string]*streamPlan)
	var ordered []*streamPlan
	for _, definition := range a.registry.Order() {
		if !active[definition.Name] {
			continue
		}

		plan := &streamPlan{definition: definition, mode: types.FULLREFRESH}
		if configured, emit := selected[definition.Name]; emit {
			plan.emit = true
			plan.mode = configured.GetSyncMode()
		}
		a.state.Track(definition, plan.mode)

		if plan.emit {
			stream := definition.Stream()
			stream.SyncMode = plan.mode
			if !a.state.IsIncremental(definition.Name) {
				stream.CursorField = ""
				if !definition.IsChild() {
					// consumers must de-duplicate on the primary key
					logger.Infof("stream[%s]: full refresh re-emits every record, primary key %v", definition.ID(), definition.PrimaryKeys)
				}
			}
			if err := pool.Setup(ctx, stream); err != nil {
				return nil, err
			}
		}

		if definition.IsChild() {
			plan.parent = plans[definition.Parent]
			plan.parent.children = append(plan.parent.children, plan)
		}
		plans[definition.Name] = plan
		ordered = append(ordered, plan)
	}
	return ordered, nil
}

func (a *AbstractDriver) syncRoot(ctx context.Context, pool *destination.WriterPool, plan *streamPlan) error {
	if !a.report.start(plan.definition.Name) {
		return nil
	}
	logger.Infof("starting %s sync for stream[%s]", plan.mode, plan.definition.ID())

	if err := a.syncStream(ctx, pool, plan, nil); err != nil {
		return a.failStream(ctx, plan, err)
	}
	a.completeTree(plan)
	return nil
}

// completeTree marks a finished root and every descendant still running as completed.
func (a *AbstractDriver) completeTree(plan *streamPlan) {
	a.report.complete(plan.definition.Name)
	for _, child := range plan.children {
		a.completeTree(child)
	}
}

// failStream marks the stream failed, skips its descendants and freezes the
// bookmarks of its ancestors. The error is returned only when the run must stop.
func (a *AbstractDriver) failStream(ctx context.Context, plan *streamPlan, err error) error {
	name := plan.definition.Name
	if a.report.fail(name, err) {
		logger.Errorf("stream[%s] failed: %s", plan.definition.ID(), err)
	}
	for _, descendant := range a.registry.Descendants(name) {
		a.report.skip(descendant.Name, fmt.Sprintf("ancestor stream[%s] failed", name))
	}
	for ancestor := plan.parent; ancestor != nil; ancestor = ancestor.parent {
		ancestor.frozen.Store(true)
	}

	if a.driver.AbortOnError() || ctx.Err() != nil {
		return err
	}
	return nil
}

// syncStream runs one invocation of a stream: every page of the root stream, or
// every page of a child stream for one parent context.
func (a *AbstractDriver) syncStream(ctx context.Context, pool *destination.WriterPool, plan *streamPlan, syncCtx types.SyncContext) error {
	definition := plan.definition
	path, err := definition.ExpandPath(syncCtx)
	if err != nil {
		return err
	}

	partition := syncCtx.PartitionKey()
	bound := a.lowerBound(definition, partition)
	if bound != nil {
		logger.Debugf("stream[%s] %s: skipping records below %v", definition.ID(), partition, bound)
	}

	paginator := rest.NewPaginator(a.driver.Client(), definition, path, nil)
	return paginator.Pages(ctx, rest.Cursor{}, func(page *rest.Page) error {
		return a.processPage(ctx, pool, plan, partition, bound, page)
	})
}

func (a *AbstractDriver) processPage(ctx context.Context, pool *destination.WriterPool, plan *streamPlan, partition string, bound any, page *rest.Page) error {
	definition := plan.definition
	incremental := a.state.IsIncremental(definition.Name)
	concurrentChildren := a.driver.MaxChildThreads() > 1

	var pageMax any
	var emitted, skipped int64
	var invocations []childInvocation
	for _, raw := range page.Records {
		record, err := transform.Process(definition, raw)
		if err != nil {
			return err
		}

		if incremental {
			value := record[definition.ReplicationKey]
			if bound != nil && value != nil && typeutils.Compare(value, bound) < 0 {
				skipped++
				continue
			}
			if value != nil && (pageMax == nil || typeutils.Compare(value, pageMax) > 0) {
				pageMax = value
			}
		}

		if plan.emit {
			recordID := utils.GetKeysHash(record, definition.PrimaryKeys...)
			if err := pool.Push(ctx, types.CreateRawRecord(definition, recordID, record)); err != nil {
				return err
			}
			emitted++
		}

		if len(plan.children) == 0 {
			continue
		}
		if concurrentChildren {
			for _, child := range plan.children {
				invocations = append(invocations, childInvocation{plan: child, record: record})
			}
			continue
		}
		if err := a.flush(ctx, pool, plan); err != nil {
			return err
		}
		for _, child := range plan.children {
			if err := a.syncChild(ctx, pool, plan, child, record); err != nil {
				return err
			}
		}
	}

	if len(invocations) > 0 {
		if err := a.flush(ctx, pool, plan); err != nil {
			return err
		}
		err := utils.Concurrent(ctx, invocations, a.driver.MaxChildThreads(), func(ctx context.Context, invocation childInvocation, _ int) error {
			return a.syncChild(ctx, pool, plan, invocation.plan, invocation.record)
		})
		if err != nil {
			return err
		}
	}

	if err := a.flush(ctx, pool, plan); err != nil {
		return err
	}
	// a page whose child syncs were cut short is never committed
	if err := ctx.Err(); err != nil {
		return err
	}
	a.report.page(definition.Name, emitted, skipped)
	return a.commit(ctx, pool, plan, partition, pageMax)
}

func (a *AbstractDriver) flush(ctx context.Context, pool *destination.WriterPool, plan *streamPlan) error {
	if !plan.emit {
		return nil
	}
	return pool.Flush(ctx, plan.definition.Name)
}

// syncChild runs the child for one parent record. Failed or skipped children are
// not invoked again.
func (a *AbstractDriver) syncChild(ctx context.Context, pool *destination.WriterPool, parent, child *streamPlan, record types.Record) error {
	name := child.definition.Name
	if !a.report.Active(name) {
		return nil
	}

	syncCtx, err := ResolveContext(parent.definition, record, child.definition)
	if err == nil {
		if !a.report.start(name) {
			return nil
		}
		err = a.syncStream(ctx, pool, child, syncCtx)
	}
	if err == nil {
		return nil
	}
	if failErr := a.failStream(ctx, child, err); failErr != nil {
		return fmt.Errorf("child stream[%s]: %w", name, failErr)
	}
	return nil
}

// commit observes the page's high-water mark and, for root streams, persists the
// state and forwards it to the destination.
func (a *AbstractDriver) commit(ctx context.Context, pool *destination.WriterPool, plan *streamPlan, partition string, pageMax any) error {
	definition := plan.definition
	if pageMax != nil && !plan.frozen.Load() {
		a.state.Observe(definition.Name, partition, pageMax)
	}
	// child bookmarks are persisted by their root's next checkpoint
	if plan.parent != nil {
		return nil
	}
	if err := a.state.Checkpoint(); err != nil {
		return err
	}
	if plan.emit {
		return pool.Checkpoint(ctx, definition.Name, a.state)
	}
	return nil
}

// lowerBound is the value below which records were already delivered: the bookmark
// the run started with, or start_date for date-time keys without one.
func (a *AbstractDriver) lowerBound(definition *types.StreamDefinition, partition string) any {
	if !a.state.IsIncremental(definition.Name) {
		return nil
	}
	if bookmark := a.resume.Resume(definition.Name, partition); bookmark != nil {
		return bookmark
	}
	startDate := a.driver.StartDate()
	if field, found := lookupTopLevel(definition.Schema, definition.ReplicationKey); found && field.Type == types.DateTime && startDate != "" {
		return startDate
	}
	return nil
}
