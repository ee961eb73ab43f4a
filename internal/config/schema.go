package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "config.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile(schemaURL)
	})
	return schema, schemaErr
}

// ValidateDocument checks a decoded config document (from any supported
// format) against the embedded JSON schema. It catches unknown keys and
// wrongly typed values that struct decoding silently drops.
func ValidateDocument(doc any) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	// Round-trip through JSON so every format reaches the validator with
	// the same value types.
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("normalize document: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var normalized any
	if err := dec.Decode(&normalized); err != nil {
		return fmt.Errorf("normalize document: %w", err)
	}

	if err := s.Validate(normalized); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return nil
}
