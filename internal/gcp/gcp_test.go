package gcp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"cloud.google.com/go/vertexai/genai"
	"github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Lllllllleong/pdfchatgenie/internal/models"
)

type fakePredictor struct {
	req  *aiplatformpb.PredictRequest
	resp *aiplatformpb.PredictResponse
	err  error
}

func (f *fakePredictor) Predict(_ context.Context, req *aiplatformpb.PredictRequest, _ ...gax.CallOption) (*aiplatformpb.PredictResponse, error) {
	f.req = req
	return f.resp, f.err
}

func embeddingPrediction(t *testing.T, values ...float64) *structpb.Value {
	t.Helper()
	list := make([]any, len(values))
	for i, v := range values {
		list[i] = v
	}
	v, err := structpb.NewValue(map[string]any{
		"embeddings": map[string]any{"values": list},
	})
	require.NoError(t, err)
	return v
}

func TestVertexEmbedder_EmbedBatch(t *testing.T) {
	fake := &fakePredictor{resp: &aiplatformpb.PredictResponse{
		Predictions: []*structpb.Value{
			embeddingPrediction(t, 0.5, -0.25),
			embeddingPrediction(t, 1, 0),
		},
	}}
	e := newVertexEmbedder(fake, "demo", "us-central1", "text-embedding-004")

	vectors, err := e.EmbedBatch(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.5, -0.25}, {1, 0}}, vectors)

	assert.Equal(t, "projects/demo/locations/us-central1/publishers/google/models/text-embedding-004", fake.req.Endpoint)
	require.Len(t, fake.req.Instances, 2)
	fields := fake.req.Instances[0].GetStructValue().GetFields()
	assert.Equal(t, "first", fields["content"].GetStringValue())
	assert.Equal(t, "RETRIEVAL_DOCUMENT", fields["task_type"].GetStringValue())
}

func TestVertexEmbedder_EmbedUsesQueryTask(t *testing.T) {
	fake := &fakePredictor{resp: &aiplatformpb.PredictResponse{
		Predictions: []*structpb.Value{embeddingPrediction(t, 0.1, 0.2, 0.3)},
	}}
	e := newVertexEmbedder(fake, "demo", "europe-west1", "text-embedding-004")

	vec, err := e.Embed(context.Background(), "question")
	require.NoError(t, err)
	assert.Len(t, vec, 3)
	assert.Equal(t, "RETRIEVAL_QUERY", fake.req.Instances[0].GetStructValue().GetFields()["task_type"].GetStringValue())
	assert.Equal(t, "text-embedding-004", e.ModelName())
}

func TestVertexEmbedder_Errors(t *testing.T) {
	tests := []struct {
		name string
		fake *fakePredictor
	}{
		{"predict error", &fakePredictor{err: errors.New("quota exceeded")}},
		{"count mismatch", &fakePredictor{resp: &aiplatformpb.PredictResponse{}}},
		{"missing values", &fakePredictor{resp: &aiplatformpb.PredictResponse{
			Predictions: []*structpb.Value{structpb.NewStringValue("oops")},
		}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := newVertexEmbedder(tc.fake, "demo", "us-central1", "m")
			_, err := e.EmbedBatch(context.Background(), []string{"x"})
			assert.Error(t, err)
		})
	}
}

func TestResponseText(t *testing.T) {
	assert.Empty(t, ResponseText(nil))
	assert.Empty(t, ResponseText(&genai.GenerateContentResponse{}))

	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text(" Two "), genai.Text("years. ")}},
		}},
	}
	assert.Equal(t, "Two years.", ResponseText(resp))
}

func TestUploadError(t *testing.T) {
	exists := uploadError("b", "k", &googleapi.Error{Code: 412})
	assert.ErrorIs(t, exists, models.ErrBlobStore)
	assert.Contains(t, exists.Error(), "already exists")

	wrapped := fmt.Errorf("close: %w", &googleapi.Error{Code: 412})
	assert.True(t, isPreconditionFailed(wrapped))

	other := uploadError("b", "k", &googleapi.Error{Code: 503})
	assert.ErrorIs(t, other, models.ErrBlobStore)
	assert.False(t, isPreconditionFailed(&googleapi.Error{Code: 503}))
}

func TestUploadDocID(t *testing.T) {
	id := UploadDocID("session/manual.pdf")
	assert.Len(t, id, 64)
	assert.NotContains(t, id, "/")
	assert.Equal(t, id, UploadDocID("session/manual.pdf"))
	assert.NotEqual(t, id, UploadDocID("session/other.pdf"))
}

func TestGetEnv(t *testing.T) {
	t.Setenv("PDFCHAT_TEST_VALUE", "set")
	assert.Equal(t, "set", GetEnv("PDFCHAT_TEST_VALUE", "fallback"))
	assert.Equal(t, "fallback", GetEnv("PDFCHAT_TEST_UNSET_VALUE", "fallback"))
}
