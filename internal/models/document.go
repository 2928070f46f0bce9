package models

// Document is extracted text plus the metadata describing where it came from.
// It is never mutated once the extractor has produced it.
type Document struct {
	Content  string
	Metadata map[string]string
}

// Chunk is a contiguous slice of a Document's content, sized for an embedding model.
// Index is the chunk's position in the split sequence; Offset is the rune offset of
// its first character in the source text.
type Chunk struct {
	Document
	Index  int
	Offset int
}

// ScoredChunk pairs a retrieved chunk with its similarity to the query.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}
