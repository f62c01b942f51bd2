package llm

// datePattern constrains date fields to ISO-8601 calendar dates.
const datePattern = `^\d{4}-\d{2}-\d{2}$`

// BuildJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a generic
// map. It is sent to the completion service as a structured-output
// constraint and also compiled locally to validate responses.
func BuildJSONSchema(spec SchemaSpec) map[string]any {
	props := make(map[string]any, len(spec.Fields))
	var required []string
	for _, f := range spec.Fields {
		props[f.Name] = fieldProp(f)
		if f.Required {
			required = append(required, f.Name)
		}
	}
	schema := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// BuildTypeSchema is BuildJSONSchema without the required list. It is the
// conformance check applied before re-asking the model: a wrong shape is a
// garbled generation worth retrying, while a missing required field is an
// incomplete extraction surfaced immediately.
func BuildTypeSchema(spec SchemaSpec) map[string]any {
	schema := BuildJSONSchema(spec)
	delete(schema, "required")
	return schema
}

func fieldProp(f FieldSpec) map[string]any {
	switch f.Type {
	case FieldDate:
		return map[string]any{"type": "string", "pattern": datePattern}
	case FieldNumber:
		return map[string]any{"type": "number"}
	default:
		return map[string]any{"type": "string", "minLength": 1}
	}
}
