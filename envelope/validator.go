package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const schemaURL = "relay://schema/envelope.json"

// wireSchema mirrors the checks the daemon performs on POST /v1/events.
var wireSchema = map[string]any{
	"type": "object",
	"required": []any{
		"event_id", "timestamp", "source", "app", "content_pointer",
		"content_hash", "size_bytes", "tags", "privacy_flag",
	},
	"additionalProperties": false,
	"properties": map[string]any{
		"event_id": map[string]any{
			"type":    "string",
			"pattern": "^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-4[0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$",
		},
		"timestamp":       map[string]any{"type": "string", "minLength": 1},
		"source":          map[string]any{"type": "string", "pattern": `\S`},
		"app":             map[string]any{"type": "string", "pattern": `\S`},
		"content_pointer": map[string]any{"type": "string", "maxLength": 4096},
		"content_hash":    map[string]any{"type": "string", "pattern": "^[0-9a-fA-F]{64}$"},
		"size_bytes":      map[string]any{"type": "integer", "minimum": 0},
		"tags": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
		"privacy_flag": map[string]any{
			"enum": []any{string(PrivacyDefault), string(PrivacySensitive), string(PrivacyNeverStore)},
		},
		"diff":            map[string]any{"type": "string"},
		"content_preview": map[string]any{"type": "string"},
	},
}

// Validator checks envelopes against the daemon's wire contract so malformed
// captures are refused locally instead of being sent and rejected.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the wire schema.
func NewValidator() (*Validator, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, wireSchema); err != nil {
		return nil, fmt.Errorf("envelope: add schema resource: %w", err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("envelope: compile schema: %w", err)
	}
	return &Validator{schema: compiled}, nil
}

// Validate returns an error describing the first contract violation in e.
func (v *Validator) Validate(e Envelope) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("envelope: marshal: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("envelope: decode: %w", err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("envelope %s: %w", e.EventID, err)
	}
	if _, err := time.Parse(time.RFC3339, e.Timestamp); err != nil {
		return fmt.Errorf("envelope %s: timestamp must be RFC3339: %w", e.EventID, err)
	}
	return nil
}
