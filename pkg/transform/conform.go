package transform

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/datazip-inc/gorgias-tap/types"
	"github.com/datazip-inc/gorgias-tap/utils/typeutils"
	"github.com/goccy/go-json"
)

// Conform keeps only the declared fields of record (recursively) and coerces each
// value to its declared type. Date-times are normalised to RFC3339 UTC.
func Conform(stream string, schema []types.Field, record map[string]any) (types.Record, error) {
	conformed, err := conformObject("", schema, record)
	if err != nil {
		return nil, &types.TransformError{Stream: stream, Path: err.path, Err: err.err}
	}
	return conformed, nil
}

type fieldError struct {
	path string
	err  error
}

func conformObject(prefix string, fields []types.Field, object map[string]any) (map[string]any, *fieldError) {
	result := make(map[string]any, len(fields))
	for _, field := range fields {
		value, found := object[field.Name]
		if !found {
			continue
		}
		converted, err := conformValue(joinPath(prefix, field.Name), field, value)
		if err != nil {
			return nil, err
		}
		result[field.Name] = converted
	}
	return result, nil
}

func conformValue(path string, field types.Field, value any) (any, *fieldError) {
	if value == nil {
		return nil, nil
	}

	fail := func(format string, args ...any) (any, *fieldError) {
		return nil, &fieldError{path: path, err: fmt.Errorf(format, args...)}
	}

	switch field.Type {
	case types.Integer:
		converted, err := toInt64(value)
		if err != nil {
			return fail("expected integer: %s", err)
		}
		return converted, nil
	case types.Number:
		converted, err := toFloat64(value)
		if err != nil {
			return fail("expected number: %s", err)
		}
		return converted, nil
	case types.Boolean:
		switch typed := value.(type) {
		case bool:
			return typed, nil
		case string:
			parsed, err := strconv.ParseBool(typed)
			if err != nil {
				return fail("expected boolean, got %q", typed)
			}
			return parsed, nil
		}
		return fail("expected boolean, got %T", value)
	case types.String:
		switch typed := value.(type) {
		case string:
			return typed, nil
		case map[string]any, []any:
			encoded, err := json.Marshal(typed)
			if err != nil {
				return fail("failed to stringify: %s", err)
			}
			return string(encoded), nil
		default:
			return fmt.Sprint(typed), nil
		}
	case types.DateTime:
		text, ok := value.(string)
		if !ok {
			return fail("expected date-time string, got %T", value)
		}
		if strings.TrimSpace(text) == "" {
			return nil, nil
		}
		parsed, err := typeutils.ParseTime(text)
		if err != nil {
			return fail("%s", err)
		}
		return typeutils.FormatTime(parsed), nil
	case types.Object:
		object, ok := value.(map[string]any)
		if !ok {
			return fail("expected object, got %T", value)
		}
		if len(field.Properties) == 0 {
			return object, nil
		}
		return conformObject(path, field.Properties, object)
	case types.Array:
		elements, ok := value.([]any)
		if !ok {
			return fail("expected array, got %T", value)
		}
		if field.Items == nil {
			return elements, nil
		}
		result := make([]any, 0, len(elements))
		for idx, element := range elements {
			converted, err := conformValue(fmt.Sprintf("%s[%d]", path, idx), *field.Items, element)
			if err != nil {
				return nil, err
			}
			result = append(result, converted)
		}
		return result, nil
	}
	return fail("unsupported type %q", field.Type)
}

func toInt64(value any) (int64, error) {
	switch typed := value.(type) {
	case json.Number:
		if converted, err := typed.Int64(); err == nil {
			return converted, nil
		}
		float, err := typed.Float64()
		if err != nil {
			return 0, err
		}
		return integral(float)
	case int:
		return int64(typed), nil
	case int32:
		return int64(typed), nil
	case int64:
		return typed, nil
	case float64:
		return integral(typed)
	case string:
		return strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
	}
	return 0, fmt.Errorf("unsupported value of type %T", value)
}

func integral(value float64) (int64, error) {
	if value != math.Trunc(value) || math.IsInf(value, 0) || math.IsNaN(value) {
		return 0, fmt.Errorf("%v is not a whole number", value)
	}
	return int64(value), nil
}

func toFloat64(value any) (float64, error) {
	switch typed := value.(type) {
	case json.Number:
		return typed.Float64()
	case int:
		return float64(typed), nil
	case int64:
		return float64(typed), nil
	case float64:
		return typed, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(typed), 64)
	}
	return 0, fmt.Errorf("unsupported value of type %T", value)
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
