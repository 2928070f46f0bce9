package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Lllllllleong/pdfchatgenie/internal/models"
)

const (
	DefaultTopK          = 4
	DefaultAnswerTimeout = 60 * time.Second

	stuffPrompt = "Use the following pieces of context to answer the question at the end. " +
		"If you don't know the answer, just say that you don't know, don't try to make up an answer.\n\n" +
		"%s\n\nQuestion: %s\nHelpful Answer:"
)

// Completer generates text for a fully rendered prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string, temperature float32) (string, error)
}

// AnswererConfig holds the retrieval and generation settings.
type AnswererConfig struct {
	TopK    int
	Timeout time.Duration
}

// Answerer answers questions against a built Index with one completion call.
type Answerer struct {
	completer Completer
	config    AnswererConfig
	logger    *slog.Logger
}

func NewAnswerer(completer Completer, config AnswererConfig, logger *slog.Logger) *Answerer {
	if config.TopK <= 0 {
		config.TopK = DefaultTopK
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultAnswerTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Answerer{completer: completer, config: config, logger: logger}
}

// Answer returns the model's answer text.
func (a *Answerer) Answer(ctx context.Context, question string, index *Index) (string, error) {
	answer, _, err := a.AnswerWithSources(ctx, question, index)
	return answer, err
}

// AnswerWithSources also returns the retrieved chunks that were placed in the prompt.
func (a *Answerer) AnswerWithSources(ctx context.Context, question string, index *Index) (string, []models.ScoredChunk, error) {
	if strings.TrimSpace(question) == "" {
		return "", nil, models.ErrEmptyQuestion
	}
	logCtx := a.logger.With("topK", a.config.TopK)

	hits, err := index.Search(ctx, question, a.config.TopK)
	if err != nil {
		logCtx.Error("Retrieval failed", "error", err)
		return "", nil, err
	}

	prompt := BuildPrompt(question, hits)
	callCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	answer, err := a.completer.Complete(callCtx, prompt, 0)
	if err != nil {
		logCtx.Error("Completion failed", "error", err)
		return "", nil, fmt.Errorf("%w: %w", models.ErrAnswerGeneration, err)
	}
	logCtx.Info("Question answered.", "retrieved", len(hits), "answerLength", len(answer))
	return answer, hits, nil
}

// BuildPrompt joins the retrieved chunks with blank lines, in retrieved order, and
// fills the prompt template.
func BuildPrompt(question string, hits []models.ScoredChunk) string {
	parts := make([]string, len(hits))
	for i, h := range hits {
		parts[i] = h.Chunk.Content
	}
	return fmt.Sprintf(stuffPrompt, strings.Join(parts, "\n\n"), question)
}
