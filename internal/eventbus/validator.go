package eventbus

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ContractValidator validates event payloads against JSON Schema contracts
// loaded from a directory of *.schema.json files. Unlike the single-service
// bus this pattern originates from, a ContractValidator here is optional:
// a Bus with a nil validator simply skips validation, since most topics in
// this system carry no schema at all.
type ContractValidator struct {
	schemas map[string]*jsonschema.Schema
}

// NewContractValidator compiles every *.schema.json file under contractsDir.
// Schema keys are derived from filenames: "dialogue_turn.schema.json" maps
// to the topic key "dialogue_turn". An empty or missing directory yields a
// validator with zero schemas rather than an error — callers that want
// validation to be mandatory should check ContractCount() themselves.
func NewContractValidator(contractsDir string) (*ContractValidator, error) {
	v := &ContractValidator{schemas: make(map[string]*jsonschema.Schema)}

	pattern := filepath.Join(contractsDir, "*.schema.json")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to find schema files: %w", err)
	}

	for _, file := range files {
		schema, err := loadSchema(file)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
		basename := filepath.Base(file)
		contractType := strings.TrimSuffix(basename, ".schema.json")
		v.schemas[contractType] = schema
	}

	return v, nil
}

// ContractCount reports how many schemas were loaded.
func (v *ContractValidator) ContractCount() int {
	if v == nil {
		return 0
	}
	return len(v.schemas)
}

// Validate checks payload against the schema registered for topic. A topic
// with no registered schema passes validation unconditionally — contracts
// are opt-in per topic, not blanket-mandatory.
func (v *ContractValidator) Validate(topic string, payload map[string]any) error {
	if v == nil {
		return nil
	}
	schema, ok := v.schemas[topic]
	if !ok {
		return nil
	}
	if err := schema.Validate(payload); err != nil {
		return fmt.Errorf("contract validation failed for %s: %w", topic, err)
	}
	return nil
}

func loadSchema(path string) (*jsonschema.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}

	var schemaDoc any
	if err := json.Unmarshal(data, &schemaDoc); err != nil {
		return nil, fmt.Errorf("failed to parse schema JSON: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(path, schemaDoc); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}

	return compiler.Compile(path)
}
