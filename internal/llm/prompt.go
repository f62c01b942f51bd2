package llm

import (
	"fmt"
	"strings"
)

// BuildSystemPrompt composes the system message: the extraction role, the
// field contract with semantic hints, and strict formatting rules.
func BuildSystemPrompt(spec SchemaSpec) string {
	var fields []string
	for _, f := range spec.Fields {
		req := "optional"
		if f.Required {
			req = "required"
		}
		line := fmt.Sprintf("- %s (%s, %s)", f.Name, f.Type, req)
		if f.Hint != "" {
			line += ": " + f.Hint
		}
		fields = append(fields, line)
	}

	parts := []string{
		"You are a document data extraction assistant. Return ONLY JSON that matches the provided JSON Schema.",
		"Extract these fields from the document text:",
		strings.Join(fields, "\n"),
		"Use ISO-8601 dates (YYYY-MM-DD).",
		"Numbers must be JSON numbers, not quoted strings.",
		"Copy values from the document verbatim; never invent data.",
		"Never output null. If an optional field is not present in the document, omit it.",
		"Do not add fields that are not in the schema.",
	}
	return strings.Join(parts, "\n")
}

// BuildUserPrompt packages the extracted text with its page count and an
// optional filename hint.
func BuildUserPrompt(text string, pages int, filename string) string {
	var b strings.Builder
	if fn := strings.TrimSpace(filename); fn != "" {
		b.WriteString("Filename: ")
		b.WriteString(fn)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Document text (%d pages):\n", pages)
	b.WriteString(text)
	return b.String()
}
