package types

import (
	"fmt"
	"sort"
	"strings"
)

// Field is one entry of an ordered schema declaration. Objects carry Properties,
// arrays carry Items; every declared value is nullable.
type Field struct {
	Name       string   `json:"name,omitempty"`
	Type       DataType `json:"type"`
	Properties []Field  `json:"properties,omitempty"`
	Items      *Field   `json:"items,omitempty"`
}

func NewField(name string, typ DataType) Field {
	return Field{Name: name, Type: typ}
}

func NewObject(name string, properties ...Field) Field {
	return Field{Name: name, Type: Object, Properties: properties}
}

func NewArray(name string, items Field) Field {
	return Field{Name: name, Type: Array, Items: &items}
}

// ObjectItems describes array elements that are objects.
func ObjectItems(properties ...Field) Field {
	return Field{Type: Object, Properties: properties}
}

// ScalarItems describes array elements of a scalar type.
func ScalarItems(typ DataType) Field {
	return Field{Type: typ}
}

// Lookup returns the direct property named name.
func (f Field) Lookup(name string) (Field, bool) {
	return lookupField(f.Properties, name)
}

func lookupField(fields []Field, name string) (Field, bool) {
	for _, field := range fields {
		if field.Name == name {
			return field, true
		}
	}
	return Field{}, false
}

// JSONSchema renders the field as a nullable JSON Schema fragment.
func (f Field) JSONSchema() map[string]any {
	schema := map[string]any{}
	switch f.Type {
	case DateTime:
		schema["type"] = []string{string(String), string(Null)}
		schema["format"] = "date-time"
	case Object:
		schema["type"] = []string{string(Object), string(Null)}
		schema["properties"] = propertiesSchema(f.Properties)
	case Array:
		schema["type"] = []string{string(Array), string(Null)}
		if f.Items != nil {
			schema["items"] = f.Items.JSONSchema()
		}
	default:
		schema["type"] = []string{string(f.Type), string(Null)}
	}
	return schema
}

func propertiesSchema(fields []Field) map[string]any {
	properties := make(map[string]any, len(fields))
	for _, field := range fields {
		properties[field.Name] = field.JSONSchema()
	}
	return properties
}

// SchemaToJSON renders a top level field list as a JSON Schema object.
func SchemaToJSON(fields []Field) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": propertiesSchema(fields),
	}
}

// FieldNames lists the top level names in declaration order.
func FieldNames(fields []Field) []string {
	names := make([]string, 0, len(fields))
	for _, field := range fields {
		names = append(names, field.Name)
	}
	return names
}

// ValidateSchema checks that names are present and unique at every level,
// types are known and arrays declare their items.
func ValidateSchema(fields []Field) error {
	return validateFields("", fields)
}

func validateFields(prefix string, fields []Field) error {
	seen := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		if field.Name == "" {
			return fmt.Errorf("field without name under [%s]", prefix)
		}
		path := joinPath(prefix, field.Name)
		if _, found := seen[field.Name]; found {
			return fmt.Errorf("duplicate field [%s]", path)
		}
		seen[field.Name] = struct{}{}
		if err := validateField(path, field); err != nil {
			return err
		}
	}
	return nil
}

func validateField(path string, field Field) error {
	if !field.Type.Valid() {
		return fmt.Errorf("field [%s] has unknown type %q", path, field.Type)
	}
	switch field.Type {
	case Object:
		return validateFields(path, field.Properties)
	case Array:
		if field.Items == nil {
			return fmt.Errorf("array field [%s] does not declare items", path)
		}
		return validateField(path+"[]", *field.Items)
	}
	return nil
}

type SchemaChangeKind string

const (
	FieldAdded   SchemaChangeKind = "added"
	FieldRemoved SchemaChangeKind = "removed"
	TypeChanged  SchemaChangeKind = "type_changed"
)

type SchemaChange struct {
	Path string
	Kind SchemaChangeKind
	From DataType
	To   DataType
}

func (c SchemaChange) String() string {
	switch c.Kind {
	case TypeChanged:
		return fmt.Sprintf("%s: %s -> %s", c.Path, c.From, c.To)
	default:
		return fmt.Sprintf("%s: %s", c.Path, c.Kind)
	}
}

// DiffSchemas lists changes going from previous to current, sorted by path.
func DiffSchemas(previous, current []Field) []SchemaChange {
	changes := diffFields("", previous, current)
	sort.Slice(changes, func(i, j int) bool {
		return changes[i].Path < changes[j].Path
	})
	return changes
}

func diffFields(prefix string, previous, current []Field) []SchemaChange {
	var changes []SchemaChange
	for _, oldField := range previous {
		path := joinPath(prefix, oldField.Name)
		newField, found := lookupField(current, oldField.Name)
		if !found {
			changes = append(changes, SchemaChange{Path: path, Kind: FieldRemoved, From: oldField.Type})
			continue
		}
		changes = append(changes, diffField(path, oldField, newField)...)
	}
	for _, newField := range current {
		if _, found := lookupField(previous, newField.Name); !found {
			changes = append(changes, SchemaChange{Path: joinPath(prefix, newField.Name), Kind: FieldAdded, To: newField.Type})
		}
	}
	return changes
}

func diffField(path string, oldField, newField Field) []SchemaChange {
	if oldField.Type != newField.Type {
		return []SchemaChange{{Path: path, Kind: TypeChanged, From: oldField.Type, To: newField.Type}}
	}
	switch oldField.Type {
	case Object:
		return diffFields(path, oldField.Properties, newField.Properties)
	case Array:
		if oldField.Items != nil && newField.Items != nil {
			return diffField(path+"[]", *oldField.Items, *newField.Items)
		}
	}
	return nil
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return strings.Join([]string{prefix, name}, ".")
}
