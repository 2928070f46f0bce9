package gcp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/Lllllllleong/pdfchatgenie/internal/models"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// FirestoreJournal keeps one document per tracked upload with its latest state.
type FirestoreJournal struct {
	collection *firestore.CollectionRef
	now        func() time.Time
}

func NewFirestoreJournal(client *firestore.Client, collectionName string) *FirestoreJournal {
	return &FirestoreJournal{collection: client.Collection(collectionName), now: time.Now}
}

// Record creates the document when an upload is first tracked and updates its
// status on every later transition.
func (j *FirestoreJournal) Record(ctx context.Context, upload models.TrackedUpload, cause error) error {
	docRef := j.collection.Doc(UploadDocID(upload.Key))
	now := j.now()

	if upload.State == models.StateUploaded && cause == nil {
		record := models.UploadRecord{
			Key:        upload.Key,
			Status:     string(upload.State),
			UploadedAt: upload.UploadedAt,
			UpdatedAt:  now,
		}
		if _, err := docRef.Set(ctx, record); err != nil {
			return fmt.Errorf("failed to create upload record for %s: %w", upload.Key, err)
		}
		return nil
	}

	updates := []firestore.Update{
		{Path: "status", Value: string(upload.State)},
		{Path: "updatedAt", Value: now},
	}
	if cause != nil {
		updates = append(updates, firestore.Update{Path: "errorDetails", Value: cause.Error()})
	}
	if _, err := docRef.Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to update upload record for %s to %s: %w", upload.Key, upload.State, err)
	}
	return nil
}

// UploadDocID maps a blob key to a Firestore document ID. Keys contain '/', which
// Firestore treats as a path separator.
func UploadDocID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
