package models

import "errors"

// Error categories. Callers match them with errors.Is; the concrete cause is
// wrapped alongside so provider details survive.
var (
	ErrFileTooLarge        = errors.New("file too large")
	ErrCorruptDocument     = errors.New("corrupt document")
	ErrUnsupportedEncoding = errors.New("unsupported encoding")
	ErrInvalidChunkConfig  = errors.New("invalid chunk config")
	ErrEmbeddingProvider   = errors.New("embedding provider error")
	ErrAnswerGeneration    = errors.New("answer generation error")
	ErrBlobStore           = errors.New("blob store error")
	ErrCredentialMissing   = errors.New("credential missing")

	ErrEmptyDocument   = errors.New("document has no extractable text")
	ErrEmptyQuestion   = errors.New("question is empty")
	ErrSessionNotFound = errors.New("session not found")
)
