package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/invoicy-app/invoicy/internal/common"
)

// Schema is the JSON Schema document describing the invoice fields we want
// back. It is passed verbatim into every prompt; the compiled form lets the
// pipeline flag completions that drift from the requested shape.
type Schema struct {
	raw      []byte
	compiled *jsonschema.Schema
}

// JSON returns the schema exactly as it will appear in prompts.
func (s *Schema) JSON() []byte { return s.raw }

// Validate checks an already-decoded document against the schema. A mismatch
// is advisory: extraction keeps whatever fields came back.
func (s *Schema) Validate(doc any) error {
	if err := s.compiled.Validate(doc); err != nil {
		return fmt.Errorf("document does not match schema: %w", err)
	}
	return nil
}

// LoadSchema reads and compiles a JSON Schema file. A file that is not a
// well-formed schema is a configuration error, fatal at startup.
func LoadSchema(path string) (*Schema, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read schema %q: %v", common.ErrConfiguration, path, err)
	}
	compiled, err := compileSchema(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: schema %q: %v", common.ErrConfiguration, path, err)
	}
	return &Schema{raw: raw, compiled: compiled}, nil
}

// DefaultSchema returns the built-in invoice schema used when no schema
// file is configured.
func DefaultSchema() *Schema {
	doc := map[string]any{
		"type":  "object",
		"title": "Invoice",
		"properties": map[string]any{
			"invoice_number": map[string]any{"type": "string"},
			"invoice_date":   map[string]any{"type": "string", "description": "YYYY-MM-DD"},
			"due_date":       map[string]any{"type": "string", "description": "YYYY-MM-DD"},
			"vendor_name":    map[string]any{"type": "string"},
			"vendor_address": map[string]any{"type": "string"},
			"customer_name":  map[string]any{"type": "string"},
			"currency":       map[string]any{"type": "string", "description": "ISO 4217 code"},
			"subtotal":       map[string]any{"type": "number"},
			"tax":            map[string]any{"type": "number"},
			"total":          map[string]any{"type": "number"},
			"items": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"description": map[string]any{"type": "string"},
						"quantity":    map[string]any{"type": "number"},
						"unit_price":  map[string]any{"type": "number"},
						"total":       map[string]any{"type": "number"},
					},
				},
			},
		},
		"required": []string{"invoice_number"},
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		panic(err) // static document, cannot fail
	}
	compiled, err := compileSchema(raw)
	if err != nil {
		panic(err)
	}
	return &Schema{raw: raw, compiled: compiled}
}

func compileSchema(raw []byte) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return compiled, nil
}
