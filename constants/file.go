package constants

import "strings"

// MediaTypePDF is the canonical media type accepted by the pipeline.
const MediaTypePDF = "application/pdf"

// pdfMediaTypes holds the declared media types treated as PDF. Some
// uploaders still send the legacy x-pdf type.
var pdfMediaTypes = map[string]struct{}{
	"application/pdf":   {},
	"application/x-pdf": {},
}

// IsPDFMediaType reports whether the declared media type identifies a PDF.
// Parameters (e.g. "; charset=...") are ignored.
func IsPDFMediaType(mediaType string) bool {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	_, ok := pdfMediaTypes[mt]
	return ok
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
