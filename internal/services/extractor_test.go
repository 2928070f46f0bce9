package services

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/pdfchatgenie/internal/models"
)

// buildPDF writes a minimal PDF with one Helvetica text line per page. An empty
// string yields a blank page with no /Contents entry.
func buildPDF(pages ...string) []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"", // page tree, filled in below
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}
	kids := ""
	for _, text := range pages {
		pageNum := len(objects) + 1
		kids += fmt.Sprintf("%d 0 R ", pageNum)
		if text == "" {
			objects = append(objects, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
			continue
		}
		stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", pageNum+1),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		)
	}
	objects[1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, len(pages))

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestExtract_PDFPagesInOrder(t *testing.T) {
	e := NewTextExtractor(nil)
	tests := []struct {
		name  string
		pages []string
		want  []string
	}{
		{"two text pages", []string{"First page text", "Second page text"}, []string{"First page text", "Second page text"}},
		{"blank page between", []string{"Alpha", "", "Omega"}, []string{"Alpha", "Omega"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			doc, err := e.Extract(context.Background(), buildPDF(tc.pages...), "manual.pdf")
			require.NoError(t, err)

			last := -1
			for _, want := range tc.want {
				at := strings.Index(doc.Content, want)
				require.Greater(t, at, last, "%q missing or out of order in %q", want, doc.Content)
				last = at
			}
			assert.Equal(t, FormatPDF, doc.Metadata["format"])
			assert.Equal(t, strconv.Itoa(len(tc.pages)), doc.Metadata["pages"])
			assert.Equal(t, "manual.pdf", doc.Metadata["source"])
		})
	}
}

func TestExtract_PagesAreLineSeparated(t *testing.T) {
	e := NewTextExtractor(nil)
	doc, err := e.Extract(context.Background(), buildPDF("Alpha", "Omega"), "a.pdf")
	require.NoError(t, err)
	assert.NotContains(t, doc.Content, "AlphaOmega")
	assert.Regexp(t, `Alpha\s*\n\s*Omega`, doc.Content)
}

func TestExtract_CorruptPDF(t *testing.T) {
	e := NewTextExtractor(nil)
	tests := []struct {
		name string
		data []byte
	}{
		{"garbage", []byte("this is not a pdf at all")},
		{"truncated", buildPDF("Some text")[:40]},
		{"empty", nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.Extract(context.Background(), tc.data, "application/pdf")
			assert.ErrorIs(t, err, models.ErrCorruptDocument)
		})
	}
}

func TestExtract_CancelledContext(t *testing.T) {
	e := NewTextExtractor(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Extract(ctx, buildPDF("page"), "a.pdf")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtract_TextFallback(t *testing.T) {
	e := NewTextExtractor(nil)

	doc, err := e.Extract(context.Background(), []byte("plain notes\nline two"), "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "plain notes\nline two", doc.Content)
	assert.Equal(t, FormatText, doc.Metadata["format"])
	assert.Empty(t, doc.Metadata["pages"])

	withBOM := append([]byte{0xEF, 0xBB, 0xBF}, []byte("bom text")...)
	doc, err = e.Extract(context.Background(), withBOM, "bom.txt")
	require.NoError(t, err)
	assert.Equal(t, "bom text", doc.Content)
}

func TestExtract_InvalidUTF8(t *testing.T) {
	e := NewTextExtractor(nil)
	_, err := e.Extract(context.Background(), []byte{0xff, 0xfe, 0x00, 0x41}, "legacy.doc")
	assert.ErrorIs(t, err, models.ErrUnsupportedEncoding)
}

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF("application/pdf"))
	assert.True(t, IsPDF("Report.PDF"))
	assert.True(t, IsPDF("pdf"))
	assert.False(t, IsPDF("notes.txt"))
	assert.False(t, IsPDF("application/msword"))
	assert.False(t, IsPDF(""))
}
