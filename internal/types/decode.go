package types

import (
	"encoding/json"

	"github.com/xeipuuv/gojsonschema"

	"satei/internal/apperr"
)

// JSON Schemas enforced on extracted model output before decoding. The
// generation instruction asks for exactly these shapes; validating up front
// keeps partially-populated objects from ever reaching a caller.

const descriptionSchema = `{
	"type": "object",
	"properties": {
		"category":  {"type": "string"},
		"brand":     {"type": "string"},
		"model":     {"type": "string"},
		"year":      {"type": ["string", "null"]},
		"condition": {"type": "string"},
		"materials": {"type": "array", "items": {"type": "string"}},
		"features":  {"type": "array", "items": {"type": "string"}},
		"notes":     {"type": "string"}
	}
}`

const valuationSchema = `{
	"type": "object",
	"required": ["price_jpy", "range_jpy", "confidence", "rationale", "evidence"],
	"properties": {
		"price_jpy":  {"type": "integer", "minimum": 0},
		"range_jpy":  {"type": "array", "items": {"type": "integer"}, "minItems": 2, "maxItems": 2},
		"confidence": {"type": "number", "minimum": 0, "maximum": 1},
		"rationale":  {"type": "string"},
		"evidence":   {"type": "array", "items": {"type": "string"}}
	}
}`

var (
	descriptionSchemaLoader = gojsonschema.NewStringLoader(descriptionSchema)
	valuationSchemaLoader   = gojsonschema.NewStringLoader(valuationSchema)
)

func validateAgainst(schema gojsonschema.JSONLoader, raw json.RawMessage) error {
	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return apperr.ParseWrap(err, "schema validation failed")
	}
	if !result.Valid() {
		first := result.Errors()[0]
		return apperr.Parse("model output failed validation: %s", first.String())
	}
	return nil
}

// DecodeInstrumentDescription validates raw model JSON and decodes it into
// an InstrumentDescription. Missing optional fields take their defaults.
func DecodeInstrumentDescription(raw json.RawMessage) (InstrumentDescription, error) {
	var desc InstrumentDescription
	if err := validateAgainst(descriptionSchemaLoader, raw); err != nil {
		return desc, err
	}
	if err := json.Unmarshal(raw, &desc); err != nil {
		return InstrumentDescription{}, apperr.ParseWrap(err, "failed to decode description")
	}
	desc.Normalize()
	return desc, nil
}

// DecodeValuationResult validates raw model JSON and decodes it into a
// ValuationResult. The range pair must be ordered low to high; whether it
// brackets the point price is an instruction-level contract left to the
// model.
func DecodeValuationResult(raw json.RawMessage) (ValuationResult, error) {
	var result ValuationResult
	if err := validateAgainst(valuationSchemaLoader, raw); err != nil {
		return result, err
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return ValuationResult{}, apperr.ParseWrap(err, "failed to decode valuation")
	}
	if result.RangeJPY[0] > result.RangeJPY[1] {
		return ValuationResult{}, apperr.Parse("range_jpy must be ordered low to high")
	}
	result.Normalize()
	return result, nil
}
