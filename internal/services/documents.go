package services

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Lllllllleong/pdfchatgenie/internal/models"
)

const DefaultMaxUploadBytes = 50 << 20

// DocumentConfig holds the ingestion settings.
type DocumentConfig struct {
	MaxUploadBytes int64
	BlobTimeout    time.Duration
	IndexOptions   []IndexOption
}

// DocumentService runs the upload and ingestion pipeline for one document at a
// time: BlobStore, lifecycle tracking, extraction, chunking and indexing.
type DocumentService struct {
	store     BlobStore
	lifecycle *LifecycleManager
	extractor *TextExtractor
	chunker   *Chunker
	embedder  Embedder
	answerer  *Answerer
	sessions  *SessionStore
	config    DocumentConfig
	logger    *slog.Logger
	now       func() time.Time
}

// DocumentDeps are the collaborators of a DocumentService.
type DocumentDeps struct {
	Store     BlobStore
	Lifecycle *LifecycleManager
	Extractor *TextExtractor
	Chunker   *Chunker
	Embedder  Embedder
	Answerer  *Answerer
	Sessions  *SessionStore
	Logger    *slog.Logger
}

func NewDocumentService(deps DocumentDeps, config DocumentConfig) *DocumentService {
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if config.BlobTimeout <= 0 {
		config.BlobTimeout = DefaultBlobTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	extractor := deps.Extractor
	if extractor == nil {
		extractor = NewTextExtractor(logger)
	}
	return &DocumentService{
		store:     deps.Store,
		lifecycle: deps.Lifecycle,
		extractor: extractor,
		chunker:   deps.Chunker,
		embedder:  deps.Embedder,
		answerer:  deps.Answerer,
		sessions:  deps.Sessions,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

// UploadResult identifies a stored upload.
type UploadResult struct {
	SessionID string
	Key       string
	FileHash  string
}

// Upload stores data under a fresh session prefix and starts tracking it. Files
// over the size limit are rejected before the BlobStore is called.
func (s *DocumentService) Upload(ctx context.Context, filename string, data []byte) (UploadResult, error) {
	if int64(len(data)) > s.config.MaxUploadBytes {
		return UploadResult{}, fmt.Errorf("%w: %d bytes exceeds the %d byte limit", models.ErrFileTooLarge, len(data), s.config.MaxUploadBytes)
	}

	sessionID := uuid.NewString()
	key := sessionID + "/" + cleanFileName(filename)
	sum := md5.Sum(data)
	fileHash := hex.EncodeToString(sum[:])
	logCtx := s.logger.With("key", key, "fileHash", fileHash, "sizeBytes", len(data))

	uploadCtx, cancel := context.WithTimeout(ctx, s.config.BlobTimeout)
	defer cancel()
	metadata := map[string]string{"file_hash": fileHash}
	if err := s.store.Upload(uploadCtx, key, data, ContentType(filename), metadata); err != nil {
		logCtx.Error("Upload failed", "error", err)
		return UploadResult{}, blobError("upload "+key, err)
	}

	s.lifecycle.Track(ctx, key)
	logCtx.Info("Upload stored.")
	return UploadResult{SessionID: sessionID, Key: key, FileHash: fileHash}, nil
}

// IngestResult is the outcome of reading a stored upload into an index.
type IngestResult struct {
	Index      *Index
	PageCount  int
	ChunkCount int
}

// Ingest fetches key and builds its index. Nothing is kept if any step fails.
func (s *DocumentService) Ingest(ctx context.Context, key string) (IngestResult, error) {
	logCtx := s.logger.With("key", key)

	fetchCtx, cancel := context.WithTimeout(ctx, s.config.BlobTimeout)
	data, err := s.store.Fetch(fetchCtx, key)
	cancel()
	if err != nil {
		logCtx.Error("Fetch failed", "error", err)
		return IngestResult{}, blobError("fetch "+key, err)
	}

	doc, err := s.extractor.Extract(ctx, data, key)
	if err != nil {
		return IngestResult{}, fmt.Errorf("extract %s: %w", key, err)
	}
	chunks, err := s.chunker.SplitDocument(doc)
	if err != nil {
		return IngestResult{}, err
	}
	if len(chunks) == 0 || strings.TrimSpace(doc.Content) == "" {
		logCtx.Warn("Document has no extractable text")
		return IngestResult{}, fmt.Errorf("%w: %s", models.ErrEmptyDocument, key)
	}

	opts := append([]IndexOption{WithIndexLogger(logCtx)}, s.config.IndexOptions...)
	index, err := BuildIndex(ctx, chunks, s.embedder, opts...)
	if err != nil {
		return IngestResult{}, err
	}

	pages, _ := strconv.Atoi(doc.Metadata["pages"])
	logCtx.Info("Document ingested.", "pages", pages, "chunks", len(chunks))
	return IngestResult{Index: index, PageCount: pages, ChunkCount: len(chunks)}, nil
}

// Open uploads and ingests a file and registers the resulting session.
func (s *DocumentService) Open(ctx context.Context, filename string, data []byte) (*Session, int, error) {
	upload, err := s.Upload(ctx, filename, data)
	if err != nil {
		return nil, 0, err
	}
	ingest, err := s.Ingest(ctx, upload.Key)
	if err != nil {
		return nil, 0, err
	}
	session := &Session{
		ID:        upload.SessionID,
		Key:       upload.Key,
		FileHash:  upload.FileHash,
		PageCount: ingest.PageCount,
		Index:     ingest.Index,
		CreatedAt: s.now(),
	}
	s.sessions.Put(session)
	return session, ingest.ChunkCount, nil
}

// Ask answers question against an open session.
func (s *DocumentService) Ask(ctx context.Context, sessionID, question string) (string, []models.ScoredChunk, error) {
	session, err := s.sessions.Get(sessionID)
	if err != nil {
		return "", nil, err
	}
	return s.answerer.AnswerWithSources(ctx, question, session.Index)
}

// Tracked exposes the lifecycle snapshot.
func (s *DocumentService) Tracked() []models.TrackedUpload {
	return s.lifecycle.Tracked()
}

// ContentType maps a file name to the MIME type stored with the blob.
func ContentType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".doc":
		return "application/msword"
	default:
		return "application/octet-stream"
	}
}

func cleanFileName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		return "upload"
	}
	return base
}

func blobError(op string, err error) error {
	if errors.Is(err, models.ErrBlobStore) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %w", models.ErrBlobStore, op, err)
}
