// Schema generation and validation helpers. Tool argument schemas are
// reflected from typed structs via invopop/jsonschema (grounded on
// haasonsaas-nexus/internal/config/schema.go's Reflector-based JSONSchema()
// cache) and validated before execution via santhosh-tekuri/jsonschema/v5
// (grounded on haasonsaas-nexus/pkg/pluginsdk/validation.go's compile-cache
// pattern).
package tools

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	jsoniter "github.com/json-iterator/go"
	schemacompiler "github.com/santhosh-tekuri/jsonschema/v5"
)

var jsonv = jsoniter.ConfigCompatibleWithStandardLibrary

// reflectParams builds the JSON-Schema "properties" map for a tool argument
// struct, used by Parameters() implementations.
func reflectParams(v any) map[string]any {
	r := &jsonschema.Reflector{DoNotReference: true}
	schema := r.Reflect(v)
	b, err := jsonv.Marshal(schema)
	if err != nil {
		return map[string]any{}
	}
	var raw map[string]any
	if err := jsonv.Unmarshal(b, &raw); err != nil {
		return map[string]any{}
	}
	props, _ := raw["properties"].(map[string]any)
	if props == nil {
		return map[string]any{}
	}
	return props
}

var (
	compileMu    sync.Mutex
	compileCache = map[string]*schemacompiler.Schema{}
)

// ValidateArguments validates argsJSON against the tool's declared
// properties/required list, ignoring unknown fields (spec §6 "Tool
// schemas"). Returns a non-nil error describing the first violation.
func ValidateArguments(t Tool, argsJSON []byte) error {
	doc := map[string]any{
		"type":                 "object",
		"properties":           t.Parameters(),
		"required":             t.Required(),
		"additionalProperties": true,
	}
	schemaBytes, err := jsonv.Marshal(doc)
	if err != nil {
		return fmt.Errorf("schema encode: %w", err)
	}
	key := t.Name() + ":" + string(schemaBytes)

	compileMu.Lock()
	compiled, ok := compileCache[key]
	compileMu.Unlock()
	if !ok {
		compiler := schemacompiler.NewCompiler()
		url := "mem://" + t.Name() + ".json"
		if err := compiler.AddResource(url, bytes.NewReader(schemaBytes)); err != nil {
			return fmt.Errorf("schema add: %w", err)
		}
		compiled, err = compiler.Compile(url)
		if err != nil {
			return fmt.Errorf("schema compile: %w", err)
		}
		compileMu.Lock()
		compileCache[key] = compiled
		compileMu.Unlock()
	}

	var instance any
	if err := jsonv.Unmarshal(argsJSON, &instance); err != nil {
		return fmt.Errorf("arguments not valid JSON: %w", err)
	}
	if err := compiled.Validate(instance); err != nil {
		return fmt.Errorf("arguments failed validation: %w", err)
	}
	return nil
}
