package util

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// CreateSchema creates a JSON schema from a Go value using reflection.
// Struct fields honour `json` names, `description` and comma separated
// `enum` tags; fields without omitempty that are not pointers are required.
func CreateSchema(v any) map[string]any {
	t := reflect.TypeOf(v)
	if t == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return schemaFor(t)
}

func schemaFor(t reflect.Type) map[string]any {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.Struct:
		return structSchema(t)
	case reflect.Slice, reflect.Array:
		return map[string]any{"type": "array", "items": schemaFor(t.Elem())}
	case reflect.Map:
		return map[string]any{"type": "object"}
	case reflect.Interface:
		return map[string]any{}
	default:
		return map[string]any{"type": getJSONType(t)}
	}
}

func structSchema(t reflect.Type) map[string]any {
	properties := make(map[string]any)
	required := make([]any, 0)

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		fieldName := field.Name
		if jsonTag != "" {
			if name := strings.Split(jsonTag, ",")[0]; name != "" {
				fieldName = name
			}
		}

		fieldSchema := schemaFor(field.Type)

		if description := field.Tag.Get("description"); description != "" {
			fieldSchema["description"] = description
		}
		if enum := field.Tag.Get("enum"); enum != "" {
			values := strings.Split(enum, ",")
			anyValues := make([]any, len(values))
			for i, v := range values {
				anyValues[i] = strings.TrimSpace(v)
			}
			fieldSchema["enum"] = anyValues
		}

		properties[fieldName] = fieldSchema

		if !hasOmitEmpty(jsonTag) && !isPointer(field.Type) {
			required = append(required, fieldName)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}

	if len(required) > 0 {
		schema["required"] = required
	}

	return schema
}

// getJSONType returns the JSON schema type for a given Go type.
func getJSONType(t reflect.Type) string {
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Bool:
		return "boolean"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	case reflect.Ptr:
		return getJSONType(t.Elem())
	default:
		return "string"
	}
}

// hasOmitEmpty checks if a JSON tag has the "omitempty" option.
func hasOmitEmpty(tag string) bool {
	parts := strings.Split(tag, ",")
	for _, part := range parts[1:] {
		if strings.TrimSpace(part) == "omitempty" {
			return true
		}
	}
	return false
}

// isPointer checks if a type is a pointer.
func isPointer(t reflect.Type) bool {
	return t.Kind() == reflect.Ptr
}

// Schema is a compiled JSON schema together with its source document.
type Schema struct {
	doc      map[string]any
	compiled *jsonschema.Schema
}

// CompileSchema compiles a schema document. name identifies the resource in
// error messages.
func CompileSchema(name string, doc map[string]any) (*Schema, error) {
	if doc == nil {
		doc = map[string]any{}
	}

	normalized, err := Normalize(doc)
	if err != nil {
		return nil, fmt.Errorf("normalize schema %s: %w", name, err)
	}

	url := name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, normalized); err != nil {
		return nil, fmt.Errorf("add schema resource %s: %w", name, err)
	}

	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}

	return &Schema{doc: doc, compiled: compiled}, nil
}

// Doc returns the source schema document.
func (s *Schema) Doc() map[string]any { return s.doc }

// Validate checks v against the schema. v may be any JSON-serializable value.
func (s *Schema) Validate(v any) error {
	normalized, err := Normalize(v)
	if err != nil {
		return err
	}
	return s.compiled.Validate(normalized)
}

// Defaults returns a deep copy of the top-level "default" value when it is an
// object, merged with the defaults of each declared property.
func (s *Schema) Defaults() map[string]any {
	out := map[string]any{}
	if d, ok := s.doc["default"].(map[string]any); ok {
		for k, v := range DeepCopy(d).(map[string]any) {
			out[k] = v
		}
	}
	if props, ok := s.doc["properties"].(map[string]any); ok {
		for name, p := range props {
			pm, ok := p.(map[string]any)
			if !ok {
				continue
			}
			if d, ok := pm["default"]; ok {
				if _, set := out[name]; !set {
					out[name] = DeepCopy(d)
				}
			}
		}
	}
	return out
}

// Normalize converts v into its generic JSON form (maps, slices, float64,
// string, bool, nil) through a JSON round trip.
func Normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	return out, nil
}

// DeepCopy copies generic JSON values; other values are returned unchanged.
func DeepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = DeepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = DeepCopy(val)
		}
		return out
	default:
		return v
	}
}
