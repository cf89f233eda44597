// Package schema validates fact and assertion records against their
// versioned wire contracts before anything is persisted or ingested.
package schema

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	factSchemaURL   = "https://arbiter.schemas.local/facts.v0.schema.json"
	resultSchemaURL = "https://arbiter.schemas.local/assertion_result.v0.schema.json"
)

// factSchemaV0 is the persistence gate for Fact records. Every line of
// facts.jsonl must satisfy it.
const factSchemaV0 = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://arbiter.schemas.local/facts.v0.schema.json",
  "type": "object",
  "required": ["fact_id", "schema_version", "digest", "oracle_source", "evidence_refs", "payload"],
  "additionalProperties": false,
  "properties": {
    "fact_id": {"type": "string", "minLength": 1},
    "schema_version": {"const": "facts.v0"},
    "digest": {"type": "string", "pattern": "^[0-9a-f]{64}$"},
    "oracle_source": {"enum": ["device_query", "trajectory_declared", "none"]},
    "evidence_refs": {"type": "array", "items": {"type": "string", "minLength": 1}},
    "payload": {"type": "object"}
  }
}`

// resultSchemaV0 is the persistence gate for AssertionResult records.
// The conditionals encode the cross-field contract: a grading bucket is
// mandatory, inconclusive_reason appears exactly on INCONCLUSIVE, and a
// FAIL must cite at least one line-addressable evidence ref.
const resultSchemaV0 = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://arbiter.schemas.local/assertion_result.v0.schema.json",
  "type": "object",
  "required": ["assertion_id", "result", "mapped_sp", "mapped_primitive", "mapped_boundary", "impact_level", "evidence_refs", "applicable"],
  "additionalProperties": false,
  "properties": {
    "assertion_id": {"type": "string", "minLength": 1},
    "result": {"enum": ["PASS", "FAIL", "INCONCLUSIVE"]},
    "severity": {"enum": ["low", "med", "high"]},
    "risk_weight_bucket": {"enum": ["low", "med", "high", "critical"]},
    "mapped_sp": {"type": ["string", "null"]},
    "mapped_primitive": {"type": ["string", "null"]},
    "mapped_boundary": {"type": ["string", "null"]},
    "impact_level": {"type": ["string", "null"]},
    "evidence_refs": {"type": "array", "items": {"type": "string", "minLength": 1}},
    "applicable": {"type": ["boolean", "null"]},
    "inconclusive_reason": {"type": "string", "minLength": 1},
    "payload": {"type": "object"}
  },
  "anyOf": [
    {"required": ["severity"]},
    {"required": ["risk_weight_bucket"]}
  ],
  "allOf": [
    {
      "if": {"properties": {"result": {"const": "INCONCLUSIVE"}}, "required": ["result"]},
      "then": {"required": ["inconclusive_reason"]},
      "else": {"not": {"required": ["inconclusive_reason"]}}
    },
    {
      "if": {"properties": {"result": {"const": "FAIL"}}, "required": ["result"]},
      "then": {"properties": {"evidence_refs": {"contains": {"pattern": ":L[1-9][0-9]*$"}, "minContains": 1}}}
    }
  ]
}`

// Validator holds the compiled record schemas. Construct one per
// engine; there is no package-level instance to mutate.
type Validator struct {
	fact   *jsonschema.Schema
	result *jsonschema.Schema
}

// NewValidator compiles the facts.v0 and assertion_result.v0 schemas.
func NewValidator() (*Validator, error) {
	fact, err := compile(factSchemaURL, factSchemaV0)
	if err != nil {
		return nil, err
	}
	result, err := compile(resultSchemaURL, resultSchemaV0)
	if err != nil {
		return nil, err
	}
	return &Validator{fact: fact, result: result}, nil
}

func compile(url, text string) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(url, strings.NewReader(text)); err != nil {
		return nil, fmt.Errorf("schema load failed for %s: %w", url, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("schema compile failed for %s: %w", url, err)
	}
	return compiled, nil
}
