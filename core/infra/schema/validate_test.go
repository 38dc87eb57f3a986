package schema

import (
	"strings"
	"testing"
)

const testSchema = `{
	"type": "object",
	"required": ["id"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"priority": {"type": "integer"}
	}
}`

func TestValidateAccepts(t *testing.T) {
	value := map[string]any{"id": "hook-a", "priority": 10}
	if err := Validate("offer", []byte(testSchema), value); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateRejectsMissingRequired(t *testing.T) {
	err := Validate("offer", []byte(testSchema), map[string]any{"priority": 10})
	if err == nil {
		t.Fatalf("expected validation failure")
	}
	if !strings.Contains(err.Error(), "schema validation failed") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateNormalizesRawJSON(t *testing.T) {
	if err := Validate("offer", []byte(testSchema), []byte(`{"id":"x"}`)); err != nil {
		t.Fatalf("validate raw json: %v", err)
	}
}

func TestValidateEmptySchema(t *testing.T) {
	if err := Validate("offer", nil, map[string]any{}); err == nil {
		t.Fatalf("expected error for empty schema")
	}
}
