package providers

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ocrPayloadSchema is the canonical schema for structured OCR responses.
// Confidence bounds here are what guarantee the 0-100 invariant downstream.
const ocrPayloadSchema = `{
	"type": "object",
	"required": ["text", "confidence"],
	"properties": {
		"text": {"type": "string"},
		"confidence": {"type": "integer", "minimum": 0, "maximum": 100}
	}
}`

var compiledOCRSchema = jsonschema.MustCompileString("ocr_payload.json", ocrPayloadSchema)

// ValidateOCRPayload checks a raw OCR response document against the schema.
func ValidateOCRPayload(payload []byte) error {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("OCR payload is not valid JSON: %w", err)
	}
	if err := compiledOCRSchema.Validate(doc); err != nil {
		return fmt.Errorf("OCR payload failed validation: %w", err)
	}
	return nil
}
