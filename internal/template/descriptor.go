// Package template fills named spreadsheet templates from structured
// records according to declared field-to-cell mappings.
package template

import (
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Mapping declares where one record field lands in the workbook and how it
// is formatted. The format is declared, never inferred: a Go time layout for
// date fields, a printf verb (e.g. "%.2f") for number fields.
type Mapping struct {
	Field  string `json:"field"`
	Cell   string `json:"cell"` // "Sheet1!B2"
	Format string `json:"format,omitempty"`
}

// Descriptor identifies a spreadsheet template and its field-to-cell
// mapping. Descriptors live as JSON files next to their .xlsx templates.
type Descriptor struct {
	Name     string    `json:"name"`
	File     string    `json:"template,omitempty"` // defaults to Name + ".xlsx"
	Mappings []Mapping `json:"mappings"`
}

// TemplateFile returns the workbook filename for the descriptor.
func (d Descriptor) TemplateFile() string {
	if d.File != "" {
		return d.File
	}
	return d.Name + ".xlsx"
}

// Fields returns the record field names the descriptor maps, in declaration
// order.
func (d Descriptor) Fields() []string {
	out := make([]string, 0, len(d.Mappings))
	for _, m := range d.Mappings {
		out = append(out, m.Field)
	}
	return out
}

// Validate checks the descriptor is internally consistent: non-empty name,
// at least one mapping, unique fields, and parseable cell references.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("descriptor has no name")
	}
	if len(d.Mappings) == 0 {
		return fmt.Errorf("descriptor %q has no mappings", d.Name)
	}
	seen := make(map[string]struct{}, len(d.Mappings))
	for _, m := range d.Mappings {
		if m.Field == "" {
			return fmt.Errorf("descriptor %q: mapping with empty field", d.Name)
		}
		if _, dup := seen[m.Field]; dup {
			return fmt.Errorf("descriptor %q: duplicate mapping for field %q", d.Name, m.Field)
		}
		seen[m.Field] = struct{}{}
		if _, _, err := splitCellRef(m.Cell); err != nil {
			return fmt.Errorf("descriptor %q: field %q: %w", d.Name, m.Field, err)
		}
	}
	return nil
}

// splitCellRef splits "Sheet1!B2" into sheet name and cell reference, and
// checks the cell lies within the XLSX coordinate space.
func splitCellRef(ref string) (sheet, cell string, err error) {
	i := strings.LastIndexByte(ref, '!')
	if i <= 0 || i == len(ref)-1 {
		return "", "", fmt.Errorf("cell reference %q must have the form Sheet!Cell", ref)
	}
	sheet, cell = ref[:i], ref[i+1:]
	if _, _, err := excelize.CellNameToCoordinates(cell); err != nil {
		return "", "", fmt.Errorf("cell reference %q: %w", ref, err)
	}
	return sheet, cell, nil
}

// formatValue renders a record value under the mapping's declared rule.
// With no rule declared, strings and numbers pass through as-is and date
// strings keep their canonical YYYY-MM-DD spelling.
func formatValue(v any, format string) (any, error) {
	if format == "" {
		return v, nil
	}
	switch t := v.(type) {
	case float64:
		return fmt.Sprintf(format, t), nil
	case string:
		if looksLikeTimeLayout(format) {
			parsed, err := time.Parse("2006-01-02", t)
			if err != nil {
				return nil, fmt.Errorf("value %q is not a date", t)
			}
			return parsed.Format(format), nil
		}
		return fmt.Sprintf(format, t), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// looksLikeTimeLayout distinguishes Go time layouts ("02 Jan 2006") from
// printf verbs ("%s", "%.2f") in a declared format.
func looksLikeTimeLayout(format string) bool {
	return !strings.ContainsRune(format, '%')
}
