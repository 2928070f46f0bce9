package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/Lllllllleong/pdfchatgenie/internal/models"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// BlobStore stores uploads in a single GCS bucket.
type BlobStore struct {
	bucket *storage.BucketHandle
	name   string
}

func NewBlobStore(client *storage.Client, bucketName string) (*BlobStore, error) {
	if bucketName == "" {
		return nil, fmt.Errorf("bucket name must be provided to create a blob store")
	}
	return &BlobStore{bucket: client.Bucket(bucketName), name: bucketName}, nil
}

// Upload writes data only if the object does not exist yet. An existing object is
// reported as ErrBlobStore; keys are unique per upload so it never overwrites.
func (s *BlobStore) Upload(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error {
	writer := s.bucket.Object(key).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = contentType
	writer.Metadata = metadata

	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		_ = writer.Close()
		return uploadError(s.name, key, err)
	}
	if err := writer.Close(); err != nil {
		return uploadError(s.name, key, err)
	}
	return nil
}

func uploadError(bucket, key string, err error) error {
	if isPreconditionFailed(err) {
		slog.Warn("Object already exists.", "gcsBucket", bucket, "gcsObject", key)
		return fmt.Errorf("%w: gs://%s/%s already exists", models.ErrBlobStore, bucket, key)
	}
	return fmt.Errorf("%w: failed to write gs://%s/%s: %w", models.ErrBlobStore, bucket, key, err)
}

func (s *BlobStore) Fetch(ctx context.Context, key string) ([]byte, error) {
	reader, err := s.bucket.Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open gs://%s/%s: %w", models.ErrBlobStore, s.name, key, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read gs://%s/%s: %w", models.ErrBlobStore, s.name, key, err)
	}
	return data, nil
}

// Delete removes the object. A missing object counts as deleted so a retried
// sweep converges.
func (s *BlobStore) Delete(ctx context.Context, key string) error {
	err := s.bucket.Object(key).Delete(ctx)
	if err == nil || errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return fmt.Errorf("%w: failed to delete gs://%s/%s: %w", models.ErrBlobStore, s.name, key, err)
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

// GCSEvent is the payload of a storage object finalize CloudEvent.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}
