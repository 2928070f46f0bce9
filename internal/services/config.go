package services

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Lllllllleong/pdfchatgenie/internal/gcp"
)

const (
	ProviderVertex = "vertex"
	ProviderOpenAI = "openai"
)

// Config holds all configuration for the chat service.
type Config struct {
	ProjectID      string
	VertexAIRegion string
	UploadBucket   string

	Provider        string
	OpenAIBaseURL   string
	OpenAIAPIKey    string
	EmbeddingModel  string
	CompletionModel string

	ChunkSize     int
	ChunkOverlap  int
	RetrievalTopK int

	FileTTL        time.Duration
	SweepInterval  time.Duration
	MaxUploadBytes int64
	BlobTimeout    time.Duration
	EmbedTimeout   time.Duration
	AnswerTimeout  time.Duration

	FirestoreCollection string
	SessionCacheSize    int
	Port                string
}

// LoadConfig loads and validates all environment variables for the service.
func LoadConfig() (*Config, error) {
	uploadBucket := gcp.GetEnv("UPLOAD_BUCKET", "")
	if uploadBucket == "" {
		return nil, fmt.Errorf("UPLOAD_BUCKET environment variable must be set")
	}

	provider := gcp.GetEnv("PROVIDER", "")
	if provider == "" {
		provider = ProviderVertex
	}
	projectID := gcp.GetEnv("PROJECT_ID", "")
	firestoreCollection := gcp.GetEnv("FIRESTORE_COLLECTION", "")
	switch provider {
	case ProviderVertex:
		if projectID == "" {
			return nil, fmt.Errorf("PROJECT_ID environment variable must be set for the vertex provider")
		}
	case ProviderOpenAI:
	default:
		return nil, fmt.Errorf("PROVIDER must be %q or %q, got %q", ProviderVertex, ProviderOpenAI, provider)
	}
	if firestoreCollection != "" && projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set when FIRESTORE_COLLECTION is set")
	}

	cfg := &Config{
		ProjectID:           projectID,
		VertexAIRegion:      gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		UploadBucket:        uploadBucket,
		Provider:            provider,
		OpenAIBaseURL:       gcp.GetEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIAPIKey:        gcp.GetEnv("OPENAI_API_KEY", ""),
		FirestoreCollection: firestoreCollection,
		Port:                gcp.GetEnv("PORT", "8080"),
	}
	if provider == ProviderOpenAI {
		cfg.EmbeddingModel = gcp.GetEnv("EMBEDDING_MODEL", "text-embedding-ada-002")
		cfg.CompletionModel = gcp.GetEnv("COMPLETION_MODEL", "gpt-3.5-turbo")
	} else {
		cfg.EmbeddingModel = gcp.GetEnv("EMBEDDING_MODEL", "text-embedding-004")
		cfg.CompletionModel = gcp.GetEnv("COMPLETION_MODEL", "gemini-1.5-pro")
	}

	var err error
	ints := []struct {
		key      string
		fallback int
		min      int
		dst      *int
	}{
		{"CHUNK_SIZE", DefaultChunkSize, 1, &cfg.ChunkSize},
		{"CHUNK_OVERLAP", DefaultChunkOverlap, 0, &cfg.ChunkOverlap},
		{"RETRIEVAL_TOP_K", DefaultTopK, 1, &cfg.RetrievalTopK},
		{"SESSION_CACHE_SIZE", DefaultSessionCacheSize, 1, &cfg.SessionCacheSize},
	}
	for _, v := range ints {
		if *v.dst, err = envInt(v.key, v.fallback, v.min); err != nil {
			return nil, err
		}
	}
	durations := []struct {
		key      string
		fallback time.Duration
		dst      *time.Duration
	}{
		{"FILE_TTL", DefaultFileTTL, &cfg.FileTTL},
		{"SWEEP_INTERVAL", DefaultSweepInterval, &cfg.SweepInterval},
		{"BLOB_TIMEOUT", DefaultBlobTimeout, &cfg.BlobTimeout},
		{"EMBED_TIMEOUT", DefaultEmbedTimeout, &cfg.EmbedTimeout},
		{"ANSWER_TIMEOUT", DefaultAnswerTimeout, &cfg.AnswerTimeout},
	}
	for _, v := range durations {
		if *v.dst, err = envDuration(v.key, v.fallback); err != nil {
			return nil, err
		}
	}
	maxUpload, err := envInt("MAX_UPLOAD_BYTES", DefaultMaxUploadBytes, 1)
	if err != nil {
		return nil, err
	}
	cfg.MaxUploadBytes = int64(maxUpload)

	if err := validateChunkConfig(cfg.ChunkSize, cfg.ChunkOverlap); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envInt(key string, fallback, minValue int) (int, error) {
	raw := gcp.GetEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < minValue {
		return 0, fmt.Errorf("%s must be an integer of at least %d, got %q", key, minValue, raw)
	}
	return v, nil
}

// envDuration accepts Go durations ("90s", "1h") or a bare number of seconds.
func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := gcp.GetEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, raw)
	}
	return d, nil
}
