package decision

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const replySchemaJSON = `{
  "type": "object",
  "required": ["signal", "confidence"],
  "properties": {
    "signal": {"type": "string", "enum": ["BUY", "SELL", "HOLD"]},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "reasoning": {"type": "string"},
    "key_points": {"type": "array", "items": {"type": "string"}},
    "disagreements": {"type": "array", "items": {"type": "string"}}
  }
}`

const reflectionSchemaJSON = `{
  "type": "object",
  "required": ["adjusted_confidence"],
  "properties": {
    "adjusted_confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "weight_adjustments": {
      "type": "object",
      "additionalProperties": {"type": "number"}
    },
    "insights": {"type": "string"}
  }
}`

var (
	schemaOnce       sync.Once
	replySchema      *jsonschema.Schema
	reflectionSchema *jsonschema.Schema
	schemaErr        error
)

func compiledSchemas() (*jsonschema.Schema, *jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		replySchema, schemaErr = compileSchema("reply.json", replySchemaJSON)
		if schemaErr != nil {
			return
		}
		reflectionSchema, schemaErr = compileSchema("reflection.json", reflectionSchemaJSON)
	})
	return replySchema, reflectionSchema, schemaErr
}

func compileSchema(name, raw string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(raw)); err != nil {
		return nil, err
	}
	return compiler.Compile(name)
}

// ValidateReply checks a coerced reply object against the reply schema.
func ValidateReply(obj map[string]any) error {
	sch, _, err := compiledSchemas()
	if err != nil {
		return fmt.Errorf("compile reply schema: %w", err)
	}
	return sch.Validate(obj)
}

// ValidateReflection checks a decoded reflection object.
func ValidateReflection(obj map[string]any) error {
	_, sch, err := compiledSchemas()
	if err != nil {
		return fmt.Errorf("compile reflection schema: %w", err)
	}
	return sch.Validate(obj)
}
