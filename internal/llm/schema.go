package llm

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
)

var schemaCache sync.Map // reflect.Type -> map[string]any

// SchemaFor returns a strict JSON schema for the type of v. Results are cached per type.
func SchemaFor(v any) (map[string]any, error) {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return nil, fmt.Errorf("schema: nil target")
	}
	if cached, ok := schemaCache.Load(t); ok {
		return cached.(map[string]any), nil
	}

	reflector := &jsonschema.Reflector{ExpandedStruct: true, DoNotReference: true}
	schema := reflector.ReflectFromType(t)
	b, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("schema: marshal: %w", err)
	}
	var result map[string]any
	if err := json.Unmarshal(b, &result); err != nil {
		return nil, fmt.Errorf("schema: unmarshal: %w", err)
	}
	delete(result, "$schema")
	delete(result, "$id")
	schemaCache.Store(t, result)
	return result, nil
}

// SchemaName derives a snake_case response_format name from the Go type name.
func SchemaName(v any) string {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "response"
	}
	var b strings.Builder
	for i, r := range t.Name() {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
