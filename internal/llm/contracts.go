package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/certiflow/certiflow/internal/extract"
)

// FieldType is the declared type of a schema field.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldDate   FieldType = "date" // ISO-8601, YYYY-MM-DD
	FieldNumber FieldType = "number"
)

// FieldSpec describes one field the completion service must populate.
type FieldSpec struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
	Hint     string    `json:"hint,omitempty"` // short semantic hint for the prompt
}

// SchemaSpec is the field contract shared between the structuring step and
// the template mapping. The field set is configuration, not inferred.
type SchemaSpec struct {
	Fields []FieldSpec
}

// DefaultSchema is the standard certificate/report field set used when the
// caller does not override the schema.
func DefaultSchema() SchemaSpec {
	return SchemaSpec{Fields: []FieldSpec{
		{Name: "name", Type: FieldString, Required: true, Hint: "full name of the certificate or report holder"},
		{Name: "course", Type: FieldString, Required: true, Hint: "title of the course or program"},
		{Name: "score", Type: FieldNumber, Required: true, Hint: "final numeric score or grade"},
		{Name: "issue_date", Type: FieldDate, Required: false, Hint: "date the document was issued"},
		{Name: "issuer", Type: FieldString, Required: false, Hint: "organization that issued the document"},
		{Name: "certificate_id", Type: FieldString, Required: false, Hint: "certificate or document identifier"},
	}}
}

// Validate checks the schema is usable: unique non-empty names, known types,
// at least one field.
func (s SchemaSpec) Validate() error {
	if len(s.Fields) == 0 {
		return fmt.Errorf("schema has no fields")
	}
	seen := make(map[string]struct{}, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			return fmt.Errorf("schema field with empty name")
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("duplicate schema field %q", f.Name)
		}
		seen[f.Name] = struct{}{}
		switch f.Type {
		case FieldString, FieldDate, FieldNumber:
		default:
			return fmt.Errorf("schema field %q has unknown type %q", f.Name, f.Type)
		}
	}
	return nil
}

// Field returns the spec for a named field.
func (s SchemaSpec) Field(name string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// RequiredFields returns the names of all required fields, in declaration
// order.
func (s SchemaSpec) RequiredFields() []string {
	var out []string
	for _, f := range s.Fields {
		if f.Required {
			out = append(out, f.Name)
		}
	}
	return out
}

// Record is a validated structured record: schema field names mapped to
// typed values (string for string/date fields, float64 for number fields).
// Unknown fields from the completion are dropped before a Record is built.
type Record map[string]any

// Checksum returns the SHA-256 hex digest of the record's canonical JSON
// encoding (object keys sorted), used for artifact traceability.
func (r Record) Checksum() string {
	b, err := json.Marshal(r)
	if err != nil {
		// Records only hold strings and float64s, which always encode.
		b = []byte(fmt.Sprintf("%v", map[string]any(r)))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// StructureResult is the outcome of a successful structuring call.
type StructureResult struct {
	Record    Record
	Attempts  int      // completion calls consumed, including re-asks
	Truncated bool     // input exceeded the character budget
	Warnings  []string // non-fatal notes (truncation, dropped fields)
}

// Structurer is Stage 2: extracted text + schema -> validated record.
// It is the only non-deterministic boundary in the pipeline and is modeled
// as a capability interface so tests can swap in deterministic stubs.
type Structurer interface {
	Structure(ctx context.Context, text extract.ExtractedText, schema SchemaSpec) (StructureResult, error)
}
