package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrExtraction is matched by every ExtractionError via errors.Is.
	ErrExtraction = errors.New("document extraction failed")
	// ErrUnsupportedDocument indicates a document type the extractor cannot read.
	ErrUnsupportedDocument = errors.New("unsupported document type")
)

// ExtractionError reports that a document could not be read at all.
// Documents that merely yield little or no text are not errors.
type ExtractionError struct {
	Reference Reference
	Err       error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Reference, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Is lets callers match any extraction failure with errors.Is(err, ErrExtraction).
func (e *ExtractionError) Is(target error) bool {
	return target == ErrExtraction
}

// Extraction is the text pulled out of one document.
type Extraction struct {
	Text         string
	Pages        int
	SkippedPages int
	MediaType    string
}

// Extractor converts stored documents into plain text.
type Extractor struct {
	store  Store
	logger zerolog.Logger
	tracer trace.Tracer
}

// NewExtractor builds an extractor reading through store.
func NewExtractor(store Store, logger zerolog.Logger) *Extractor {
	return &Extractor{
		store:  store,
		logger: logger.With().Str("component", "text_extractor").Logger(),
		tracer: otel.Tracer("github.com/noah-isme/gema-grader/pkg/document"),
	}
}

// Extract returns the document text. An empty string with a nil error means no page had extractable text.
func (e *Extractor) Extract(ctx context.Context, ref Reference) (string, error) {
	result, err := e.ExtractDetailed(ctx, ref)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// ExtractDetailed is Extract plus page accounting.
func (e *Extractor) ExtractDetailed(ctx context.Context, ref Reference) (Extraction, error) {
	ctx, span := e.tracer.Start(ctx, "document.extract", trace.WithAttributes(
		attribute.String("document.category", string(ref.Category)),
		attribute.String("document.name", ref.Name),
	))
	defer span.End()

	result, err := e.extract(ctx, ref)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "extraction_failed")
		return Extraction{}, &ExtractionError{Reference: ref, Err: err}
	}

	span.SetAttributes(
		attribute.Int("document.pages", result.Pages),
		attribute.Int("document.skipped_pages", result.SkippedPages),
	)

	logEvent := e.logger.Debug()
	if result.Text == "" {
		logEvent = e.logger.Warn()
	}
	logEvent.
		Str("document", ref.String()).
		Str("media_type", result.MediaType).
		Int("pages", result.Pages).
		Int("skipped_pages", result.SkippedPages).
		Int("chars", len(result.Text)).
		Msg("document extracted")

	return result, nil
}

func (e *Extractor) extract(ctx context.Context, ref Reference) (Extraction, error) {
	reader, err := e.store.Open(ctx, ref)
	if err != nil {
		return Extraction{}, err
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return Extraction{}, fmt.Errorf("read: %w", err)
	}
	if len(data) == 0 {
		return Extraction{}, nil
	}

	mediaType := mimetype.Detect(data)
	switch {
	case mediaType.Is("application/pdf"):
		result, err := extractPDF(data)
		result.MediaType = mediaType.String()
		return result, err
	case mediaType.Is("text/plain"):
		return Extraction{Text: string(data), Pages: 1, MediaType: mediaType.String()}, nil
	default:
		return Extraction{}, fmt.Errorf("%w: %s", ErrUnsupportedDocument, mediaType.String())
	}
}

func extractPDF(data []byte) (Extraction, error) {
	reader, pages, err := openPDF(data)
	if err != nil {
		return Extraction{}, err
	}

	var builder strings.Builder
	result := Extraction{Pages: pages}
	for i := 1; i <= result.Pages; i++ {
		text, ok := pageText(reader, i)
		if !ok {
			result.SkippedPages++
			continue
		}
		if builder.Len() > 0 {
			builder.WriteString("\n")
		}
		builder.WriteString(text)
	}

	result.Text = builder.String()
	return result, nil
}

// openPDF reads the trailer and page count. The pdf package panics on some
// malformed trailers and xref offsets, so those panics become errors here.
func openPDF(data []byte) (reader *pdf.Reader, pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			reader, pages, err = nil, 0, fmt.Errorf("open pdf: malformed document: %v", r)
		}
	}()

	reader, err = pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, 0, fmt.Errorf("open pdf: %w", err)
	}
	return reader, reader.NumPage(), nil
}

// pageText reports false for pages without extractable text, including image-only pages
// and pages whose content stream the pdf package cannot interpret.
func pageText(reader *pdf.Reader, index int) (text string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			text, ok = "", false
		}
	}()

	page := reader.Page(index)
	if page.V.IsNull() {
		return "", false
	}

	text, err := page.GetPlainText(nil)
	if err != nil || strings.TrimSpace(text) == "" {
		return "", false
	}
	return text, true
}
