package services

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/Lllllllleong/pdfchatgenie/internal/models"
)

const (
	FormatPDF  = "pdf"
	FormatText = "text"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// TextExtractor turns uploaded bytes into a plain-text Document.
type TextExtractor struct {
	logger *slog.Logger
}

func NewTextExtractor(logger *slog.Logger) *TextExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &TextExtractor{logger: logger}
}

// IsPDF reports whether a file name, extension or MIME type names a PDF.
func IsPDF(formatHint string) bool {
	hint := strings.ToLower(strings.TrimSpace(formatHint))
	return hint == "application/pdf" || hint == FormatPDF || filepath.Ext(hint) == ".pdf"
}

// Extract reads data according to formatHint. PDFs are validated and read page by
// page; a page without a text layer contributes an empty line. Anything else must
// be UTF-8 text.
func (e *TextExtractor) Extract(ctx context.Context, data []byte, formatHint string) (models.Document, error) {
	if IsPDF(formatHint) {
		return e.extractPDF(ctx, data, formatHint)
	}
	return extractText(data, formatHint)
}

func (e *TextExtractor) extractPDF(ctx context.Context, data []byte, source string) (models.Document, error) {
	logCtx := e.logger.With("source", source, "sizeBytes", len(data))

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.Validate(bytes.NewReader(data), conf); err != nil {
		logCtx.Warn("PDF failed validation", "error", err)
		return models.Document{}, fmt.Errorf("%w: %w", models.ErrCorruptDocument, err)
	}

	text, pages, err := readPages(ctx, data)
	if err != nil {
		return models.Document{}, err
	}
	logCtx.Info("Extracted PDF text.", "pages", pages, "runes", utf8.RuneCountInString(text))

	return models.Document{
		Content: text,
		Metadata: map[string]string{
			"source": source,
			"format": FormatPDF,
			"pages":  strconv.Itoa(pages),
		},
	}, nil
}

// readPages joins the plain text of every page in order, one line break between
// pages. A page without a content stream contributes an empty string. The reader
// panics on some malformed object graphs that still pass validation; those become
// ErrCorruptDocument.
func readPages(ctx context.Context, data []byte) (text string, pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, pages = "", 0
			err = fmt.Errorf("%w: %v", models.ErrCorruptDocument, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("%w: %w", models.ErrCorruptDocument, err)
	}

	pages = reader.NumPage()
	texts := make([]string, 0, pages)
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return "", 0, err
		}
		page := reader.Page(i)
		if page.V.IsNull() || page.V.Key("Contents").IsNull() {
			texts = append(texts, "")
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", 0, fmt.Errorf("%w: page %d: %w", models.ErrCorruptDocument, i, err)
		}
		texts = append(texts, pageText)
	}
	return strings.Join(texts, "\n"), pages, nil
}

func extractText(data []byte, source string) (models.Document, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return models.Document{}, fmt.Errorf("%w: %s is not valid UTF-8", models.ErrUnsupportedEncoding, source)
	}
	return models.Document{
		Content: string(data),
		Metadata: map[string]string{
			"source": source,
			"format": FormatText,
		},
	}, nil
}
