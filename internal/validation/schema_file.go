package validation

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// schemaFile is the on-disk layout for operator-supplied schemas.
type schemaFile struct {
	Schemas []Schema `yaml:"schemas"`
}

// LoadSchemas reads additional event schemas from a YAML file. Loaded
// schemas replace built-ins for the same event type, letting operators
// tighten or relax validation without a rebuild.
//
// File layout:
//
//	schemas:
//	  - event: push
//	    rules:
//	      - {path: ref, kind: string, required: true}
func LoadSchemas(path string) ([]Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("validation: read schema file: %w", err)
	}

	var f schemaFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("validation: parse schema file: %w", err)
	}

	for i, s := range f.Schemas {
		if s.Event == "" {
			return nil, fmt.Errorf("validation: schema %d: event is required", i)
		}
		for j, r := range s.Rules {
			if r.Path == "" {
				return nil, fmt.Errorf("validation: schema %q rule %d: path is required", s.Event, j)
			}
		}
	}

	return f.Schemas, nil
}
