// Package validation performs per-event-type structural checks on parsed
// webhook payloads. Only a subset of event types carries a schema; types
// without one pass through as valid.
package validation

import (
	"fmt"
	"strings"

	"github.com/cbwinslow/crawl4ai/internal/domain"
)

// Kind is the expected JSON type of a field.
type Kind string

const (
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindBool   Kind = "bool"
	KindObject Kind = "object"
	KindArray  Kind = "array"
)

// Rule checks one field, addressed by a dot-separated path into the payload.
type Rule struct {
	Path     string `yaml:"path"`
	Kind     Kind   `yaml:"kind"`
	Required bool   `yaml:"required"`
}

// Schema is the set of rules for one event type.
type Schema struct {
	Event string `yaml:"event"`
	Rules []Rule `yaml:"rules"`
}

// FieldError describes one failed rule.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Result is the outcome of validating one payload.
type Result struct {
	Valid  bool
	Errors []FieldError
}

// Validator holds the registered schemas. Populate at startup; it is not
// safe to register schemas while the pipeline is running.
type Validator struct {
	schemas map[domain.EventType]Schema
}

// New returns a Validator carrying the built-in schemas for the closed set
// of handled event types.
func New() *Validator {
	v := &Validator{schemas: make(map[domain.EventType]Schema)}
	for _, s := range builtinSchemas() {
		v.Register(s)
	}
	return v
}

// Register adds or replaces the schema for s.Event.
func (v *Validator) Register(s Schema) {
	v.schemas[domain.EventType(s.Event)] = s
}

// Validate checks payload against the schema registered for event.
// An event type with no schema is automatically valid.
func (v *Validator) Validate(event domain.EventType, payload map[string]any) Result {
	schema, ok := v.schemas[event]
	if !ok {
		return Result{Valid: true}
	}

	var errs []FieldError
	for _, rule := range schema.Rules {
		val, present := lookup(payload, rule.Path)
		if !present {
			if rule.Required {
				errs = append(errs, FieldError{Path: rule.Path, Message: "required field missing"})
			}
			continue
		}
		if !matchesKind(val, rule.Kind) {
			errs = append(errs, FieldError{
				Path:    rule.Path,
				Message: fmt.Sprintf("expected %s", rule.Kind),
			})
		}
	}

	return Result{Valid: len(errs) == 0, Errors: errs}
}

// lookup walks a dot-separated path through nested objects.
func lookup(payload map[string]any, path string) (any, bool) {
	var current any = payload
	for _, seg := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[seg]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func matchesKind(val any, kind Kind) bool {
	if kind == "" {
		return true
	}
	switch kind {
	case KindString:
		_, ok := val.(string)
		return ok
	case KindNumber:
		switch val.(type) {
		case float64, int64, int:
			return true
		}
		return false
	case KindBool:
		_, ok := val.(bool)
		return ok
	case KindObject:
		_, ok := val.(map[string]any)
		return ok
	case KindArray:
		_, ok := val.([]any)
		return ok
	default:
		return false
	}
}

func builtinSchemas() []Schema {
	return []Schema{
		{
			Event: string(domain.EventPing),
			Rules: []Rule{
				{Path: "zen", Kind: KindString, Required: true},
			},
		},
		{
			Event: string(domain.EventPush),
			Rules: []Rule{
				{Path: "ref", Kind: KindString, Required: true},
				{Path: "repository", Kind: KindObject, Required: true},
				{Path: "repository.full_name", Kind: KindString, Required: true},
			},
		},
		{
			Event: string(domain.EventIssues),
			Rules: []Rule{
				{Path: "action", Kind: KindString, Required: true},
				{Path: "issue", Kind: KindObject, Required: true},
				{Path: "issue.number", Kind: KindNumber, Required: true},
			},
		},
		{
			Event: string(domain.EventIssueComment),
			Rules: []Rule{
				{Path: "action", Kind: KindString, Required: true},
				{Path: "issue", Kind: KindObject, Required: true},
				{Path: "comment", Kind: KindObject, Required: true},
			},
		},
		{
			Event: string(domain.EventPullRequest),
			Rules: []Rule{
				{Path: "action", Kind: KindString, Required: true},
				{Path: "pull_request", Kind: KindObject, Required: true},
				{Path: "pull_request.number", Kind: KindNumber, Required: true},
			},
		},
	}
}
