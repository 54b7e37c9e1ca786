package abstract

import (
	"github.com/datazip-inc/gorgias-tap/pkg/rest"
	"github.com/datazip-inc/gorgias-tap/types"
)

// ResolveContext projects one parent record onto the placeholders of the child's
// endpoint template. The context is used by exactly one child invocation.
func ResolveContext(parent *types.StreamDefinition, record types.Record, child *types.StreamDefinition) (types.SyncContext, error) {
	syncCtx := types.SyncContext{}
	for _, placeholder := range child.Placeholders() {
		field, found := parent.ChildContext[placeholder]
		if !found {
			return nil, &types.ContextError{Stream: child.Name, Field: placeholder}
		}
		value, found := rest.Lookup(map[string]any(record), field)
		if !found || value == nil {
			return nil, &types.ContextError{Stream: child.Name, Field: field}
		}
		syncCtx[placeholder] = value
	}
	return syncCtx, nil
}
