package transform

import (
	"fmt"
	"sort"
	"strings"

	"github.com/datazip-inc/gorgias-tap/types"
)

// Process runs the stream's rule tables and then projects the result onto its schema.
// The raw record is never modified.
func Process(stream *types.StreamDefinition, raw map[string]any) (types.Record, error) {
	record, err := Apply(stream.Name, stream.Transforms, raw)
	if err != nil {
		return nil, err
	}
	return Conform(stream.Name, stream.Schema, record)
}

// Apply evaluates dynamic key rules first and prune rules second on a copy of record.
func Apply(stream string, rules types.TransformRules, record map[string]any) (types.Record, error) {
	result := deepCopy(record).(map[string]any)

	for _, rule := range rules.DynamicKeys {
		if err := applyDynamicKey(result, rule); err != nil {
			return nil, &types.TransformError{Stream: stream, Path: rule.Within, Err: err}
		}
	}
	for _, rule := range rules.Prune {
		applyPrune(result, rule)
	}
	return result, nil
}

func applyDynamicKey(record map[string]any, rule types.DynamicKeyRule) error {
	value, found := lookup(record, rule.Within)
	if !found {
		return nil
	}
	mapping, ok := value.(map[string]any)
	if !ok {
		return nil
	}

	var matches []string
	for key, entry := range mapping {
		object, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if discriminator, found := object[rule.DiscriminatorField]; found && fmt.Sprint(discriminator) == rule.DiscriminatorValue {
			matches = append(matches, key)
		}
	}
	sort.Strings(matches)

	switch len(matches) {
	case 0:
		return nil
	case 1:
	default:
		return fmt.Errorf("%d entries have %s=%q (keys %s), expected at most one",
			len(matches), rule.DiscriminatorField, rule.DiscriminatorValue, strings.Join(matches, ", "))
	}

	key := matches[0]
	if key == rule.CanonicalKey {
		return nil
	}
	if _, taken := mapping[rule.CanonicalKey]; taken {
		return fmt.Errorf("canonical key %q is already used by a different entry", rule.CanonicalKey)
	}

	object := mapping[key].(map[string]any)
	delete(mapping, key)
	object[rule.OriginalKey()] = key
	mapping[rule.CanonicalKey] = object
	return nil
}

func applyPrune(record map[string]any, rule types.PruneRule) {
	for _, field := range rule.Fields {
		remove(record, field)
	}
	for _, nested := range rule.Nested {
		value, found := lookup(record, nested)
		if !found {
			continue
		}
		elements, ok := value.([]any)
		if !ok {
			continue
		}
		for _, element := range elements {
			if object, ok := element.(map[string]any); ok {
				for _, field := range rule.Fields {
					remove(object, field)
				}
			}
		}
	}
}

func lookup(record map[string]any, path string) (any, bool) {
	var current any = record
	for _, segment := range strings.Split(path, ".") {
		object, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		if current, ok = object[segment]; !ok {
			return nil, false
		}
	}
	return current, true
}

func remove(record map[string]any, path string) {
	parent := record
	segments := strings.Split(path, ".")
	for _, segment := range segments[:len(segments)-1] {
		next, ok := parent[segment].(map[string]any)
		if !ok {
			return
		}
		parent = next
	}
	delete(parent, segments[len(segments)-1])
}

func deepCopy(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		copied := make(map[string]any, len(typed))
		for key, element := range typed {
			copied[key] = deepCopy(element)
		}
		return copied
	case types.Record:
		return deepCopy(map[string]any(typed))
	case []any:
		copied := make([]any, len(typed))
		for idx, element := range typed {
			copied[idx] = deepCopy(element)
		}
		return copied
	default:
		return value
	}
}
