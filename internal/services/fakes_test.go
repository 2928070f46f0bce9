package services

import (
	"context"
	"crypto/sha256"
	"errors"
	"sync"
	"time"

	"github.com/Lllllllleong/pdfchatgenie/internal/models"
)

var errProvider = errors.New("provider unavailable")

// hashEmbedder derives a deterministic vector from the sha256 of the text, so
// identical texts score 1.0 and distinct texts almost never tie.
type hashEmbedder struct {
	mu         sync.Mutex
	dim        int
	embedCalls int
	batchCalls int
	batchErr   error
	failBatch  int // 1-based batch call that fails, 0 = never
	short      bool
	override   map[string][]float32
}

func newHashEmbedder() *hashEmbedder {
	return &hashEmbedder{dim: 8, override: map[string][]float32{}}
}

func (h *hashEmbedder) vector(text string) []float32 {
	if v, ok := h.override[text]; ok {
		return v
	}
	sum := sha256.Sum256([]byte(text))
	v := make([]float32, h.dim)
	for i := range v {
		v[i] = float32(int(sum[i])-128) / 128
	}
	return v
}

func (h *hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.embedCalls++
	return h.vector(text), nil
}

func (h *hashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.batchCalls++
	if h.failBatch > 0 && h.batchCalls == h.failBatch {
		return nil, h.batchErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		out = append(out, h.vector(t))
	}
	if h.short {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (h *hashEmbedder) ModelName() string { return "hash-embedder" }

func (h *hashEmbedder) calls() (embed, batch int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.embedCalls, h.batchCalls
}

// stubCompleter records prompts and replies with a fixed answer.
type stubCompleter struct {
	mu          sync.Mutex
	reply       string
	err         error
	delay       time.Duration
	prompts     []string
	temperature float32
}

func (s *stubCompleter) Complete(ctx context.Context, prompt string, temperature float32) (string, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.temperature = temperature
	s.mu.Unlock()
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

type storedBlob struct {
	data        []byte
	contentType string
	metadata    map[string]string
}

// memBlobStore is an in-memory BlobStore with per-key delete failures.
type memBlobStore struct {
	mu          sync.Mutex
	blobs       map[string]storedBlob
	failDelete  map[string]error
	uploadCalls int
	deleted     []string
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{blobs: map[string]storedBlob{}, failDelete: map[string]error{}}
}

func (m *memBlobStore) Upload(_ context.Context, key string, data []byte, contentType string, metadata map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadCalls++
	if _, exists := m.blobs[key]; exists {
		return models.ErrBlobStore
	}
	m.blobs[key] = storedBlob{data: append([]byte(nil), data...), contentType: contentType, metadata: metadata}
	return nil
}

func (m *memBlobStore) Fetch(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[key]
	if !ok {
		return nil, models.ErrBlobStore
	}
	return b.data, nil
}

func (m *memBlobStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failDelete[key]; err != nil {
		return err
	}
	delete(m.blobs, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func (m *memBlobStore) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blobs[key]
	return ok
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// chunksOf builds chunks with the given texts in order.
func chunksOf(texts ...string) []models.Chunk {
	out := make([]models.Chunk, len(texts))
	for i, t := range texts {
		out[i] = models.Chunk{Document: models.Document{Content: t}, Index: i}
	}
	return out
}
