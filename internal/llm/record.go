package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/certiflow/certiflow/internal/common"
)

// ParseError marks a completion that could not be decoded into the schema's
// shape: not JSON, or JSON with the wrong types. This guards against
// transient garbled generations, so callers re-ask the model with the same
// input up to their bounded retry ceiling.
type ParseError struct {
	Reason string
	Cause  error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("parse completion: %s: %v", e.Reason, e.Cause)
	}
	return "parse completion: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Cause }

var reDate = regexp.MustCompile(datePattern)

// DecodeRecord turns raw completion output into a validated Record.
//
// Failure classification:
//   - *ParseError: output is not JSON or not type-conformant (retryable)
//   - INCOMPLETE_EXTRACTION StageError: required field missing or unusable
//     after parsing (not retryable)
//
// Unknown fields are dropped, never propagated; each drop is returned as a
// warning. No missing or invalid value is ever substituted with a default.
func DecodeRecord(spec SchemaSpec, raw []byte) (Record, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, &ParseError{Reason: "completion is not a JSON object", Cause: err}
	}

	var warnings []string
	for _, key := range sortedKeys(m) {
		if _, ok := spec.Field(key); !ok {
			delete(m, key)
			warnings = append(warnings, fmt.Sprintf("dropped unknown field %q", key))
		}
	}

	coerceValues(spec, m)

	cleaned, err := json.Marshal(m)
	if err != nil {
		return nil, warnings, &ParseError{Reason: "re-encode completion", Cause: err}
	}
	if err := ValidateJSONAgainstSchema(BuildTypeSchema(spec), cleaned); err != nil {
		return nil, warnings, &ParseError{Reason: "completion does not conform to schema types", Cause: err}
	}

	if missing := missingRequired(spec, m); len(missing) > 0 {
		return nil, warnings, common.StageErrorf(common.StageStructure, common.KindIncompleteExtraction,
			"required fields missing or invalid: %s", strings.Join(missing, ", "))
	}

	return Record(m), warnings, nil
}

// coerceValues applies the light normalization the model legitimately needs:
// trimming strings, parsing numbers the model quoted, and normalizing date
// spellings to YYYY-MM-DD. Values that stay unusable are left in place for
// the type validation to reject.
func coerceValues(spec SchemaSpec, m map[string]any) {
	for _, f := range spec.Fields {
		v, ok := m[f.Name]
		if !ok {
			continue
		}
		if v == nil {
			delete(m, f.Name)
			continue
		}
		switch f.Type {
		case FieldNumber:
			if s, isStr := v.(string); isStr {
				if n, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
					m[f.Name] = n
				}
			}
		case FieldDate:
			if s, isStr := v.(string); isStr {
				m[f.Name] = normalizeDate(strings.TrimSpace(s))
			}
		case FieldString:
			if s, isStr := v.(string); isStr {
				s = strings.TrimSpace(s)
				if s == "" {
					delete(m, f.Name)
				} else {
					m[f.Name] = s
				}
			}
		}
	}
}

// dateLayouts are the spellings accepted from the model beyond the
// canonical one.
var dateLayouts = []string{"2006-01-02", "2006/01/02", "02/01/2006", "January 2, 2006", "2 January 2006"}

func normalizeDate(s string) string {
	if reDate.MatchString(s) {
		return s
	}
	for _, layout := range dateLayouts[1:] {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}

func missingRequired(spec SchemaSpec, m map[string]any) []string {
	var missing []string
	for _, f := range spec.Fields {
		if !f.Required {
			continue
		}
		if _, ok := m[f.Name]; !ok {
			missing = append(missing, f.Name)
		}
	}
	return missing
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
