package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

//go:embed settings.schema.json
var schemaData []byte

var (
	settingsSchema *jsonschema.Schema
	compileOnce    sync.Once
	compileErr     error
)

func compileSchema() error {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaData))
		if err != nil {
			compileErr = fmt.Errorf("unmarshal settings schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("settings.schema.json", doc); err != nil {
			compileErr = fmt.Errorf("add settings schema resource: %w", err)
			return
		}
		settingsSchema, err = compiler.Compile("settings.schema.json")
		if err != nil {
			compileErr = fmt.Errorf("compile settings schema: %w", err)
		}
	})
	return compileErr
}

// Validate checks a YAML settings document against the embedded schema.
// An empty document is valid.
func Validate(data []byte) error {
	if err := compileSchema(); err != nil {
		return err
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}
	if doc == nil {
		return nil
	}

	// round-trip through JSON so the validator sees JSON types only
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("convert settings: %w", err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("convert settings: %w", err)
	}

	if err := settingsSchema.Validate(v); err != nil {
		return fmt.Errorf("settings validation failed: %w", err)
	}
	return nil
}
