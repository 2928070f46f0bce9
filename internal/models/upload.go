package models

import "time"

// UploadState is the lifecycle state of a tracked blob.
type UploadState string

const (
	StateUploaded      UploadState = "UPLOADED"
	StatePendingDelete UploadState = "PENDING_DELETE"
	StateDeleted       UploadState = "DELETED"
)

// TrackedUpload is an uploaded blob the lifecycle manager will reclaim after its TTL.
type TrackedUpload struct {
	Key        string      `json:"key"`
	UploadedAt time.Time   `json:"uploadedAt"`
	State      UploadState `json:"state"`
}

// UploadRecord is the Firestore document journalling one tracked upload.
type UploadRecord struct {
	Key          string    `firestore:"key,omitempty"`
	Status       string    `firestore:"status,omitempty"`
	ErrorDetails string    `firestore:"errorDetails,omitempty"`
	UploadedAt   time.Time `firestore:"uploadedAt,omitempty"`
	UpdatedAt    time.Time `firestore:"updatedAt,omitempty"`
}
