package services

import (
	"fmt"
	"strconv"
	"unicode"

	"github.com/Lllllllleong/pdfchatgenie/internal/models"
)

const (
	DefaultChunkSize    = 3000
	DefaultChunkOverlap = 400
)

// Chunker splits extracted text into overlapping passages.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker validates the configuration up front so a bad config fails before
// any document is processed.
func NewChunker(chunkSize, chunkOverlap int) (*Chunker, error) {
	if err := validateChunkConfig(chunkSize, chunkOverlap); err != nil {
		return nil, err
	}
	return &Chunker{chunkSize: chunkSize, chunkOverlap: chunkOverlap}, nil
}

// SplitDocument splits doc.Content and copies doc.Metadata onto every chunk.
func (c *Chunker) SplitDocument(doc models.Document) ([]models.Chunk, error) {
	chunks, err := Split(doc.Content, c.chunkSize, c.chunkOverlap)
	if err != nil {
		return nil, err
	}
	for i := range chunks {
		md := make(map[string]string, len(doc.Metadata)+1)
		for k, v := range doc.Metadata {
			md[k] = v
		}
		md["chunk"] = strconv.Itoa(chunks[i].Index)
		chunks[i].Metadata = md
	}
	return chunks, nil
}

// Split cuts text into chunks of at most chunkSize runes. Each window is cut after
// the last paragraph break, line break or whitespace it contains, falling back to
// a hard cut. Consecutive chunks share exactly chunkOverlap runes, so dropping the
// first chunkOverlap runes of every chunk but the first reconstructs text.
func Split(text string, chunkSize, chunkOverlap int) ([]models.Chunk, error) {
	if err := validateChunkConfig(chunkSize, chunkOverlap); err != nil {
		return nil, err
	}
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil, nil
	}

	chunks := make([]models.Chunk, 0, n/(chunkSize-chunkOverlap)+1)
	start := 0
	for {
		if n-start <= chunkSize {
			chunks = append(chunks, newChunk(runes, start, n, len(chunks)))
			return chunks, nil
		}
		end := breakPoint(runes, start, start+chunkSize, chunkOverlap)
		chunks = append(chunks, newChunk(runes, start, end, len(chunks)))
		start = end - chunkOverlap
	}
}

func newChunk(runes []rune, start, end, index int) models.Chunk {
	return models.Chunk{
		Document: models.Document{Content: string(runes[start:end])},
		Index:    index,
		Offset:   start,
	}
}

// breakPoint returns the exclusive end of the chunk starting at start. A cut is only
// taken if the chunk stays longer than overlap, otherwise the next start would not
// advance.
func breakPoint(runes []rune, start, limit, overlap int) int {
	minEnd := start + overlap + 1
	if end := lastParagraphBreak(runes, start, limit); end >= minEnd {
		return end
	}
	if end := lastRuneMatch(runes, start, limit, func(r rune) bool { return r == '\n' }); end >= minEnd {
		return end
	}
	if end := lastRuneMatch(runes, start, limit, unicode.IsSpace); end >= minEnd {
		return end
	}
	return limit
}

func lastParagraphBreak(runes []rune, start, limit int) int {
	for i := limit - 1; i > start; i-- {
		if runes[i] == '\n' && runes[i-1] == '\n' {
			return i + 1
		}
	}
	return -1
}

func lastRuneMatch(runes []rune, start, limit int, match func(rune) bool) int {
	for i := limit - 1; i >= start; i-- {
		if match(runes[i]) {
			return i + 1
		}
	}
	return -1
}

func validateChunkConfig(chunkSize, chunkOverlap int) error {
	if chunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", models.ErrInvalidChunkConfig, chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return fmt.Errorf("%w: chunk overlap %d must be in [0, %d)", models.ErrInvalidChunkConfig, chunkOverlap, chunkSize)
	}
	return nil
}
