package verdict

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ResultJSONSchema describes the serialized Result consumed by clients.
func ResultJSONSchema() map[string]any {
	str := map[string]any{"type": "string", "minLength": 1}
	boolean := map[string]any{"type": "boolean"}
	statuses := make([]string, 0, len(Statuses))
	for _, s := range Statuses {
		statuses = append(statuses, string(s))
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"status", "confidence", "extractedData", "checks", "timestamp"},
		"properties": map[string]any{
			"status":     map[string]any{"type": "string", "enum": statuses},
			"confidence": map[string]any{"type": "integer", "minimum": 0, "maximum": 100},
			"extractedData": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"required": []string{
					"studentName", "rollNumber", "course", "institution", "year", "grade", "certificateNumber",
				},
				"properties": map[string]any{
					"studentName":       str,
					"rollNumber":        str,
					"course":            str,
					"institution":       str,
					"year":              str,
					"grade":             str,
					"certificateNumber": str,
				},
			},
			"checks": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"required":             []string{"formatValidation", "sealAuthenticity", "databaseMatch", "tampering"},
				"properties": map[string]any{
					"formatValidation": boolean,
					"sealAuthenticity": boolean,
					"databaseMatch":    boolean,
					"tampering":        boolean,
				},
			},
			"timestamp": map[string]any{"type": "string", "format": "date-time"},
		},
	}
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		b, err := json.Marshal(ResultJSONSchema())
		if err != nil {
			schemaErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		compiler.AssertFormat = true
		if err := compiler.AddResource("result.json", bytes.NewReader(b)); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("result.json")
	})
	return schema, schemaErr
}

// ValidateResultJSON checks data against ResultJSONSchema.
func ValidateResultJSON(data []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

// DecodeResult validates data and decodes it into a Result.
func DecodeResult(data []byte) (Result, error) {
	if err := ValidateResultJSON(data); err != nil {
		return Result{}, err
	}
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return Result{}, err
	}
	return r, nil
}
