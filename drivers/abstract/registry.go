package abstract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/datazip-inc/gorgias-tap/types"
)

var ErrInvalidStream = errors.New("invalid stream definition")

// Registry is the validated set of stream definitions and their parent/child graph.
type Registry struct {
	streams  map[string]*types.StreamDefinition
	children map[string][]*types.StreamDefinition
	order    []*types.StreamDefinition
}

// NewRegistry validates definitions and builds the dependency graph. It rejects
// duplicates, unknown parents, cycles and child placeholders the parent cannot provide.
func NewRegistry(definitions ...*types.StreamDefinition) (*Registry, error) {
	registry := &Registry{
		streams:  make(map[string]*types.StreamDefinition, len(definitions)),
		children: make(map[string][]*types.StreamDefinition),
	}

	for _, definition := range definitions {
		if err := validateDefinition(definition); err != nil {
			return nil, err
		}
		if _, exists := registry.streams[definition.Name]; exists {
			return nil, invalid(definition.Name, "duplicate stream name")
		}
		registry.streams[definition.Name] = definition
	}

	for _, definition := range definitions {
		if err := registry.validateEdge(definition); err != nil {
			return nil, err
		}
		if definition.IsChild() {
			registry.children[definition.Parent] = append(registry.children[definition.Parent], definition)
		}
	}

	visited := make(map[string]bool, len(definitions))
	for _, definition := range definitions {
		registry.visit(definition, visited)
	}
	return registry, nil
}

func invalid(stream, format string, args ...any) error {
	return fmt.Errorf("%w [%s]: %s", ErrInvalidStream, stream, fmt.Sprintf(format, args...))
}

func validateDefinition(definition *types.StreamDefinition) error {
	if definition == nil {
		return fmt.Errorf("%w: nil definition", ErrInvalidStream)
	}
	name := definition.Name
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: stream name is empty", ErrInvalidStream)
	}
	if definition.Path == "" {
		return invalid(name, "path is empty")
	}
	if len(definition.PrimaryKeys) == 0 {
		return invalid(name, "no primary key declared")
	}

	switch definition.Pagination {
	case types.PaginationCursor, types.PaginationNextURL:
		if definition.NextTokenPath == "" {
			return invalid(name, "%s pagination requires a next token path", definition.Pagination)
		}
	case types.PaginationOffset, types.PaginationNone, "":
	default:
		return invalid(name, "unknown pagination mode %q", definition.Pagination)
	}

	if err := types.ValidateSchema(definition.Schema); err != nil {
		return invalid(name, "schema: %s", err)
	}
	for _, key := range definition.PrimaryKeys {
		if _, found := lookupTopLevel(definition.Schema, key); !found {
			return invalid(name, "primary key %q is not in the schema", key)
		}
	}

	if definition.ReplicationKey != "" {
		if definition.FullRefreshOnly {
			return invalid(name, "full refresh only stream declares replication key %q", definition.ReplicationKey)
		}
		field, found := lookupTopLevel(definition.Schema, definition.ReplicationKey)
		if !found {
			return invalid(name, "replication key %q is not in the schema", definition.ReplicationKey)
		}
		switch field.Type {
		case types.Integer, types.Number, types.String, types.DateTime:
		default:
			return invalid(name, "replication key %q has unordered type %s", definition.ReplicationKey, field.Type)
		}
	}
	if definition.StatePartitioned && !definition.IsChild() {
		return invalid(name, "only child streams can partition state")
	}

	for placeholder, field := range definition.ChildContext {
		if _, found := lookupTopLevel(definition.Schema, strings.Split(field, ".")[0]); !found {
			return invalid(name, "child context %q reads field %q which is not in the schema", placeholder, field)
		}
	}
	return nil
}

func (r *Registry) validateEdge(definition *types.StreamDefinition) error {
	placeholders := definition.Placeholders()
	if !definition.IsChild() {
		if len(placeholders) > 0 {
			return invalid(definition.Name, "root stream path has placeholders %v", placeholders)
		}
		return nil
	}

	parent, found := r.streams[definition.Parent]
	if !found {
		return invalid(definition.Name, "unknown parent stream %q", definition.Parent)
	}
	for _, placeholder := range placeholders {
		if _, provided := parent.ChildContext[placeholder]; !provided {
			return invalid(definition.Name, "placeholder {%s} is not provided by parent %q", placeholder, parent.Name)
		}
	}

	// every stream has at most one parent, so a cycle shows up as a revisit on the parent chain
	seen := map[string]bool{definition.Name: true}
	for current := parent; current != nil; current = r.streams[current.Parent] {
		if seen[current.Name] {
			return invalid(definition.Name, "parent chain forms a cycle through %q", current.Name)
		}
		seen[current.Name] = true
		if !current.IsChild() {
			break
		}
	}
	return nil
}

func (r *Registry) visit(definition *types.StreamDefinition, visited map[string]bool) {
	if visited[definition.Name] {
		return
	}
	visited[definition.Name] = true
	if definition.IsChild() {
		r.visit(r.streams[definition.Parent], visited)
	}
	r.order = append(r.order, definition)
}

func lookupTopLevel(fields []types.Field, name string) (types.Field, bool) {
	for _, field := range fields {
		if field.Name == name {
			return field, true
		}
	}
	return types.Field{}, false
}

func (r *Registry) Get(name string) (*types.StreamDefinition, bool) {
	definition, found := r.streams[name]
	return definition, found
}

// Order lists every stream with parents before their children, otherwise in
// registration order.
func (r *Registry) Order() []*types.StreamDefinition {
	return append([]*types.StreamDefinition(nil), r.order...)
}

func (r *Registry) Children(name string) []*types.StreamDefinition {
	return r.children[name]
}

func (r *Registry) Roots() []*types.StreamDefinition {
	var roots []*types.StreamDefinition
	for _, definition := range r.order {
		if !definition.IsChild() {
			roots = append(roots, definition)
		}
	}
	return roots
}

// Descendants lists every stream below name, closest first.
func (r *Registry) Descendants(name string) []*types.StreamDefinition {
	var descendants []*types.StreamDefinition
	queue := append([]*types.StreamDefinition(nil), r.children[name]...)
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		descendants = append(descendants, current)
		queue = append(queue, r.children[current.Name]...)
	}
	return descendants
}
