package gcp

import (
	"context"
	"fmt"

	aiplatform "cloud.google.com/go/aiplatform/apiv1"
	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	taskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	taskRetrievalQuery    = "RETRIEVAL_QUERY"
)

type predictor interface {
	Predict(ctx context.Context, req *aiplatformpb.PredictRequest, opts ...gax.CallOption) (*aiplatformpb.PredictResponse, error)
}

// VertexEmbedder calls a Vertex AI text embedding model.
type VertexEmbedder struct {
	client    predictor
	closer    func() error
	endpoint  string
	modelName string
}

func NewVertexEmbedder(ctx context.Context, projectID, region, modelName string) (*VertexEmbedder, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexEmbedder: projectID and region cannot be empty")
	}
	apiEndpoint := fmt.Sprintf("%s-aiplatform.googleapis.com:443", region)
	client, err := aiplatform.NewPredictionClient(ctx, option.WithEndpoint(apiEndpoint))
	if err != nil {
		return nil, fmt.Errorf("aiplatform.NewPredictionClient: %w", err)
	}
	e := newVertexEmbedder(client, projectID, region, modelName)
	e.closer = client.Close
	return e, nil
}

func newVertexEmbedder(client predictor, projectID, region, modelName string) *VertexEmbedder {
	return &VertexEmbedder{
		client:    client,
		endpoint:  fmt.Sprintf("projects/%s/locations/%s/publishers/google/models/%s", projectID, region, modelName),
		modelName: modelName,
	}
}

func (e *VertexEmbedder) ModelName() string { return e.modelName }

func (e *VertexEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.predict(ctx, []string{text}, taskRetrievalQuery)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *VertexEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return e.predict(ctx, texts, taskRetrievalDocument)
}

func (e *VertexEmbedder) predict(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	instances := make([]*structpb.Value, 0, len(texts))
	for _, text := range texts {
		instance, err := structpb.NewValue(map[string]any{
			"content":   text,
			"task_type": taskType,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build embedding instance: %w", err)
		}
		instances = append(instances, instance)
	}

	resp, err := e.client.Predict(ctx, &aiplatformpb.PredictRequest{
		Endpoint:  e.endpoint,
		Instances: instances,
	})
	if err != nil {
		return nil, fmt.Errorf("vertex predict: %w", err)
	}
	if len(resp.GetPredictions()) != len(texts) {
		return nil, fmt.Errorf("vertex returned %d embeddings for %d texts", len(resp.GetPredictions()), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for i, prediction := range resp.GetPredictions() {
		values := prediction.GetStructValue().GetFields()["embeddings"].GetStructValue().GetFields()["values"].GetListValue().GetValues()
		if len(values) == 0 {
			return nil, fmt.Errorf("vertex prediction %d has no embedding values", i)
		}
		vec := make([]float32, len(values))
		for j, v := range values {
			vec[j] = float32(v.GetNumberValue())
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func (e *VertexEmbedder) Close() error {
	if e.closer != nil {
		return e.closer()
	}
	return nil
}
