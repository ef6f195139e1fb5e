package schema

import (
	"encoding/json"
	"testing"
)

func setRequestSchema() json.RawMessage {
	return json.RawMessage(`{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"required": ["name", "value"],
		"properties": {
			"name": {"type": "string", "minLength": 1},
			"value": {},
			"actor": {"type": "string"}
		},
		"additionalProperties": false
	}`)
}

func booleanSchema() json.RawMessage {
	return json.RawMessage(`{"type": "boolean"}`)
}

func TestValidate_ValidPayload(t *testing.T) {
	v := NewValidator()

	err := v.Validate(setRequestSchema(), map[string]any{
		"name":  "Output",
		"value": true,
		"actor": "MCP",
	})
	if err != nil {
		t.Errorf("expected valid payload, got: %v", err)
	}
}

func TestValidate_MissingValue(t *testing.T) {
	v := NewValidator()

	err := v.Validate(setRequestSchema(), map[string]any{
		"name": "Output",
	})
	if err == nil {
		t.Error("expected validation error for missing value")
	}
}

func TestValidate_EmptyName(t *testing.T) {
	v := NewValidator()

	err := v.Validate(setRequestSchema(), map[string]any{
		"name":  "",
		"value": true,
	})
	if err == nil {
		t.Error("expected validation error for empty name")
	}
}

func TestValidate_UnknownProperty(t *testing.T) {
	v := NewValidator()

	err := v.Validate(setRequestSchema(), map[string]any{
		"name":    "Output",
		"value":   true,
		"unknown": "value",
	})
	if err == nil {
		t.Error("expected validation error for unknown property")
	}
}

func TestValidate_ScalarPayload(t *testing.T) {
	v := NewValidator()

	if err := v.Validate(booleanSchema(), false); err != nil {
		t.Errorf("expected boolean to validate, got: %v", err)
	}
	if err := v.Validate(booleanSchema(), "true"); err == nil {
		t.Error("expected validation error for string value")
	}
}

func TestValidate_EmptySchema(t *testing.T) {
	v := NewValidator()

	err := v.Validate(json.RawMessage(`{}`), map[string]any{
		"anything": "goes",
	})
	if err != nil {
		t.Errorf("empty schema should skip validation, got: %v", err)
	}
}

func TestValidate_NilSchema(t *testing.T) {
	v := NewValidator()

	if err := v.Validate(nil, 42); err != nil {
		t.Errorf("nil schema should skip validation, got: %v", err)
	}
}

func TestDecode(t *testing.T) {
	v := NewValidator()

	payload, err := v.Decode(setRequestSchema(), []byte(`{"name":"Output","value":false}`))
	if err != nil {
		t.Fatalf("expected valid payload, got: %v", err)
	}
	m, ok := payload.(map[string]any)
	if !ok {
		t.Fatalf("expected object, got %T", payload)
	}
	if m["value"] != false {
		t.Errorf("expected value false, got %v", m["value"])
	}

	if _, err := v.Decode(setRequestSchema(), []byte(`{"name":`)); err == nil {
		t.Error("expected error for malformed JSON")
	}
	if _, err := v.Decode(setRequestSchema(), []byte(`{"name":"Output","value":1,"x":2}`)); err == nil {
		t.Error("expected validation error")
	}
}

func TestValidate_CachesSchema(t *testing.T) {
	v := NewValidator()
	schema := booleanSchema()

	if err := v.Validate(schema, true); err != nil {
		t.Fatal(err)
	}
	if err := v.Validate(schema, false); err != nil {
		t.Fatal(err)
	}

	v.mu.RLock()
	cacheSize := len(v.cache)
	v.mu.RUnlock()
	if cacheSize != 1 {
		t.Errorf("expected 1 cached schema, got %d", cacheSize)
	}
}
