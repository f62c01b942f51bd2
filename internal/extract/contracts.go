package extract

import "context"

// RawDocument is the immutable input to the pipeline: the uploaded bytes
// plus the caller-declared media type and original filename. It is owned by
// the request that created it and discarded when the run completes.
type RawDocument struct {
	Bytes     []byte
	MediaType string
	Filename  string
}

// ExtractedText is Stage 1 output: one text blob plus the page count.
// Extraction fails rather than produce an empty blob.
type ExtractedText struct {
	Text  string
	Pages int
}

// TextExtractor is Stage 1: document bytes -> text.
type TextExtractor interface {
	Extract(ctx context.Context, doc RawDocument) (ExtractedText, error)
}
