package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/certiflow/certiflow/constants"
	"github.com/certiflow/certiflow/internal/common"
)

// PageSeparator marks page boundaries in the concatenated text, matching the
// form-feed convention of pdftotext output.
const PageSeparator = "\f"

// PDFExtractor extracts the embedded text layer from PDF documents. Only
// text-layer PDFs are supported; scanned image-only documents fail with
// NO_EXTRACTABLE_TEXT since OCR is out of scope.
type PDFExtractor struct {
	logger *slog.Logger
}

func NewPDFExtractor(logger *slog.Logger) *PDFExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFExtractor{logger: logger}
}

// Extract walks each page in document order and concatenates page text with
// a page-boundary marker. Layout (columns, tables) collapses to linear text.
// Deterministic for a given input; no side effects beyond reading the bytes.
func (e *PDFExtractor) Extract(ctx context.Context, doc RawDocument) (ExtractedText, error) {
	start := time.Now()

	if !constants.IsPDFMediaType(doc.MediaType) {
		return ExtractedText{}, common.StageErrorf(common.StageExtract, common.KindUnsupportedFormat,
			"media type %q is not a PDF", doc.MediaType)
	}
	if len(doc.Bytes) == 0 {
		return ExtractedText{}, common.StageErrorf(common.StageExtract, common.KindCorruptDocument,
			"document is empty")
	}
	if err := ctx.Err(); err != nil {
		return ExtractedText{}, err
	}

	e.logger.Info("extract.start",
		"filename", doc.Filename,
		"bytes", len(doc.Bytes),
	)

	pages, err := readPages(ctx, doc.Bytes)
	if err != nil {
		if ctx.Err() != nil {
			return ExtractedText{}, ctx.Err()
		}
		e.logger.Error("extract.parse_failed", "filename", doc.Filename, "error", err)
		return ExtractedText{}, common.NewStageError(common.StageExtract, common.KindCorruptDocument,
			"cannot parse PDF structure", err)
	}

	var b strings.Builder
	empty := true
	for i, text := range pages {
		if i > 0 {
			b.WriteString(PageSeparator)
		}
		if text != "" {
			empty = false
		}
		b.WriteString(text)
	}
	if empty {
		e.logger.Warn("extract.no_text", "filename", doc.Filename, "pages", len(pages))
		return ExtractedText{}, common.StageErrorf(common.StageExtract, common.KindNoExtractableText,
			"no extractable text on any of %d pages", len(pages))
	}

	out := ExtractedText{Text: b.String(), Pages: len(pages)}
	e.logger.Info("extract.ok",
		"filename", doc.Filename,
		"pages", out.Pages,
		"text_len", len(out.Text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// readPages parses the PDF and returns the trimmed text of every page in
// order. The pdf library panics on some malformed cross-reference tables, so
// the whole walk runs under a recover that converts panics into errors.
func readPages(ctx context.Context, data []byte) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("pdf parse panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	n := reader.NumPage()
	if n == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}

	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Pages without a readable text layer contribute nothing;
			// they still count toward the page total.
			pages = append(pages, "")
			continue
		}
		pages = append(pages, strings.TrimSpace(text))
	}
	return pages, nil
}
