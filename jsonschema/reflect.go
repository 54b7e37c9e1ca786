// Package jsonschema renders connector and writer config structs as JSON Schema
// for the spec command. Field metadata comes from struct tags:
//
//	Subdomain string `json:"subdomain" title:"Subdomain" description:"Account subdomain" validate:"required"`
//
// Properties keep declaration order through an "order" keyword.
package jsonschema

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

const draft = "http://json-schema.org/draft-07/schema#"

// Reflect returns the schema of v, which must be a struct or a pointer to one.
func Reflect(v any) (map[string]any, error) {
	typ := reflect.TypeOf(v)
	for typ != nil && typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ == nil || typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("cannot reflect schema of %T: not a struct", v)
	}

	schema, err := reflectStruct(typ, map[reflect.Type]bool{})
	if err != nil {
		return nil, err
	}
	schema["$schema"] = draft
	return schema, nil
}

func reflectStruct(typ reflect.Type, visiting map[reflect.Type]bool) (map[string]any, error) {
	if visiting[typ] {
		return nil, fmt.Errorf("recursive type %s", typ)
	}
	visiting[typ] = true
	defer delete(visiting, typ)

	properties := map[string]any{}
	required := []string{}
	order := 0
	for idx := 0; idx < typ.NumField(); idx++ {
		field := typ.Field(idx)
		if !field.IsExported() {
			continue
		}
		name, skip := fieldName(field)
		if skip {
			continue
		}

		property, err := reflectType(field.Type, visiting)
		if err != nil {
			return nil, fmt.Errorf("field %s: %s", field.Name, err)
		}
		if err := annotate(property, field); err != nil {
			return nil, fmt.Errorf("field %s: %s", field.Name, err)
		}
		property["order"] = order
		order++
		properties[name] = property

		if isRequired(field) {
			required = append(required, name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema, nil
}

func fieldName(field reflect.StructField) (string, bool) {
	tag := field.Tag.Get("json")
	if tag == "-" {
		return "", true
	}
	name := strings.SplitN(tag, ",", 2)[0]
	if name == "" {
		name = field.Name
	}
	return name, false
}

func isRequired(field reflect.StructField) bool {
	for _, rule := range strings.Split(field.Tag.Get("validate"), ",") {
		if rule == "required" {
			return true
		}
	}
	return false
}

func reflectType(typ reflect.Type, visiting map[reflect.Type]bool) (map[string]any, error) {
	switch typ.Kind() {
	case reflect.Pointer:
		return reflectType(typ.Elem(), visiting)
	case reflect.String:
		return map[string]any{"type": "string"}, nil
	case reflect.Bool:
		return map[string]any{"type": "boolean"}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]any{"type": "integer"}, nil
	case reflect.Float32, reflect.Float64:
		return map[string]any{"type": "number"}, nil
	case reflect.Slice, reflect.Array:
		items, err := reflectType(typ.Elem(), visiting)
		if err != nil {
			return nil, err
		}
		return map[string]any{"type": "array", "items": items}, nil
	case reflect.Map:
		values, err := reflectType(typ.Elem(), visiting)
		if err != nil {
			return nil, err
		}
		return map[string]any{"type": "object", "additionalProperties": values}, nil
	case reflect.Struct:
		return reflectStruct(typ, visiting)
	case reflect.Interface:
		return map[string]any{}, nil
	default:
		return nil, fmt.Errorf("unsupported kind %s", typ.Kind())
	}
}

// annotate copies title, description, format, enum and default tags onto the property.
func annotate(property map[string]any, field reflect.StructField) error {
	for _, key := range []string{"title", "description", "format"} {
		if value := field.Tag.Get(key); value != "" {
			property[key] = value
		}
	}
	if enum := field.Tag.Get("enum"); enum != "" {
		property["enum"] = strings.Split(enum, "|")
	}

	raw, found := field.Tag.Lookup("default")
	if !found {
		return nil
	}
	value, err := parseDefault(property["type"], raw)
	if err != nil {
		return fmt.Errorf("invalid default %q: %s", raw, err)
	}
	property["default"] = value
	return nil
}

func parseDefault(typ any, raw string) (any, error) {
	switch typ {
	case "integer":
		return strconv.ParseInt(raw, 10, 64)
	case "number":
		return strconv.ParseFloat(raw, 64)
	case "boolean":
		return strconv.ParseBool(raw)
	case "string":
		return raw, nil
	default:
		var value any
		err := json.Unmarshal([]byte(raw), &value)
		return value, err
	}
}
