package calibration

import (
	"encoding/json"
	"fmt"
	"strings"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema/calibration-v1.json
var calibrationSchemaJSON string

type Validator struct {
	schema *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()

	if err := compiler.AddResource("calibration-v1.json",
		strings.NewReader(calibrationSchemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}

	schema, err := compiler.Compile("calibration-v1.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &Validator{schema: schema}, nil
}

// ValidateYAML checks an overrides document against the calibration schema.
func (v *Validator) ValidateYAML(data []byte) error {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}
	if doc == nil {
		// empty file: nothing overridden
		return nil
	}

	// Round-trip through JSON so the validator sees JSON-native types
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to convert overrides: %w", err)
	}
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return fmt.Errorf("failed to convert overrides: %w", err)
	}

	if err := v.schema.Validate(value); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	return nil
}
