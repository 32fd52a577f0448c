package reasoning

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const enhancementSchema = `{
  "type": "object",
  "required": ["type", "confidence"],
  "properties": {
    "type": {"type": "string", "minLength": 1},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "fields": {
      "type": "object",
      "properties": {
        "issue_date": {"type": "string"},
        "expiry_date": {"type": "string"},
        "amounts": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["value"],
            "properties": {
              "value": {"type": "number"},
              "currency": {"type": "string"},
              "raw": {"type": "string"}
            }
          }
        },
        "identifiers": {"type": "array", "items": {"type": "string"}},
        "emails": {"type": "array", "items": {"type": "string"}},
        "phones": {"type": "array", "items": {"type": "string"}},
        "custom": {"type": "object", "additionalProperties": {"type": "string"}}
      }
    }
  }
}`

func compileSchema(raw string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

func validateJSON(schema *jsonschema.Schema, data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}
