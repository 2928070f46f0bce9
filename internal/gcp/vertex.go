package gcp

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

// AnswerSystemPrompt frames every completion as a document question.
const AnswerSystemPrompt = "You answer questions about a single uploaded document using only the context you are given."

// VertexCompleter generates answers with a Gemini model.
type VertexCompleter struct {
	client    *genai.Client
	modelName string
}

// NewVertexCompleter creates a completer for the given project, region and model.
func NewVertexCompleter(ctx context.Context, projectID, region, modelName string) (*VertexCompleter, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexCompleter: projectID and region cannot be empty")
	}
	client, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	return &VertexCompleter{client: client, modelName: modelName}, nil
}

// Complete sends prompt once. The model handle is built per call so concurrent
// requests never share a mutable GenerationConfig.
func (c *VertexCompleter) Complete(ctx context.Context, prompt string, temperature float32) (string, error) {
	model := c.client.GenerativeModel(c.modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(AnswerSystemPrompt)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr(temperature),
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content from gemini: %w", err)
	}
	text := ResponseText(resp)
	if text == "" {
		return "", fmt.Errorf("gemini returned no text")
	}
	return text, nil
}

func (c *VertexCompleter) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// ResponseText concatenates the text parts of the first candidate.
func ResponseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(b.String())
}
