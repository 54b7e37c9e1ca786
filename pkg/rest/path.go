package rest

import (
	"strings"
)

// Lookup walks a dot path ("meta.next_cursor", optionally prefixed with "$.")
// through decoded JSON objects. An empty path returns body itself.
func Lookup(body any, path string) (any, bool) {
	path = strings.TrimPrefix(strings.TrimPrefix(path, "$"), ".")
	if path == "" {
		return body, body != nil
	}

	current := body
	for _, segment := range strings.Split(path, ".") {
		object, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = object[segment]
		if !ok {
			return nil, false
		}
	}
	return current, current != nil
}
