package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/Lllllllleong/pdfchatgenie/internal/gcp"
	"github.com/Lllllllleong/pdfchatgenie/internal/models"
	"github.com/Lllllllleong/pdfchatgenie/internal/services"
)

const multipartMemory = 32 << 20

// app holds the wired services behind the functions.
type app struct {
	docs           *services.DocumentService
	lifecycle      *services.LifecycleManager
	uploadBucket   string
	maxUploadBytes int64
	closers        []func() error
}

func (a *app) close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			slog.Warn("Failed to close client", "error", err)
		}
	}
}

// handleUpload stores the multipart "file" field, indexes it and opens a session.
func (a *app) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "use POST")
		return
	}
	// Headroom for the multipart envelope; the size guard itself runs on the file bytes.
	r.Body = http.MaxBytesReader(w, r.Body, a.maxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, slog.Default(), fmt.Errorf("%w: request body over %d bytes", models.ErrFileTooLarge, tooLarge.Limit))
			return
		}
		writeJSONError(w, http.StatusBadRequest, "could not parse multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, `multipart field "file" is required`)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, a.maxUploadBytes+1))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "could not read uploaded file")
		return
	}

	logCtx := slog.With("filename", header.Filename, "sizeBytes", len(data))
	logCtx.Info("Received upload.")
	session, chunkCount, err := a.docs.Open(r.Context(), header.Filename, data)
	if err != nil {
		writeError(w, logCtx, err)
		return
	}
	writeJSON(w, http.StatusOK, models.UploadResponse{
		SessionID:  session.ID,
		Key:        session.Key,
		FileHash:   session.FileHash,
		PageCount:  session.PageCount,
		ChunkCount: chunkCount,
	})
}

// handleAsk answers one question against an open session.
func (a *app) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "use POST")
		return
	}
	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "could not parse JSON")
		return
	}

	logCtx := slog.With("sessionId", req.SessionID)
	answer, hits, err := a.docs.Ask(r.Context(), req.SessionID, req.Question)
	if err != nil {
		writeError(w, logCtx, err)
		return
	}
	sources := make([]models.Source, len(hits))
	for i, h := range hits {
		sources[i] = models.Source{Index: h.Chunk.Index, Score: h.Score}
	}
	writeJSON(w, http.StatusOK, models.AskResponse{Answer: answer, Sources: sources})
}

// handleTrackedUploads lists the blobs awaiting expiry.
func (a *app) handleTrackedUploads(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "use GET")
		return
	}
	writeJSON(w, http.StatusOK, a.docs.Tracked())
}

// trackObject starts tracking objects written to the upload bucket by other clients.
// Keys this service uploaded, or already swept, are left as they are.
func (a *app) trackObject(ctx context.Context, e cloudevents.Event) error {
	var gcsEvent gcp.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}
	logCtx := slog.With("gcsBucket", gcsEvent.Bucket, "gcsObject", gcsEvent.Name)
	if gcsEvent.Bucket != a.uploadBucket || gcsEvent.Name == "" {
		logCtx.Info("Ignoring object outside the upload bucket.")
		return nil
	}
	if !a.lifecycle.TrackIfAbsent(ctx, gcsEvent.Name) {
		logCtx.Info("Object already tracked or deleted.")
	}
	return nil
}

// statusFor maps an error category to an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, models.ErrCorruptDocument),
		errors.Is(err, models.ErrUnsupportedEncoding),
		errors.Is(err, models.ErrEmptyDocument),
		errors.Is(err, models.ErrEmptyQuestion):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrEmbeddingProvider),
		errors.Is(err, models.ErrAnswerGeneration),
		errors.Is(err, models.ErrBlobStore):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// messageFor returns the user-facing text for err. Client errors carry their
// detail; upstream failures only name the failing dependency.
func messageFor(err error) string {
	switch {
	case errors.Is(err, models.ErrFileTooLarge):
		return "File size exceeds the upload limit."
	case errors.Is(err, models.ErrCorruptDocument):
		return "The file could not be read as a PDF."
	case errors.Is(err, models.ErrUnsupportedEncoding):
		return "The file is not UTF-8 text."
	case errors.Is(err, models.ErrEmptyDocument):
		return "No text could be extracted from the file."
	case errors.Is(err, models.ErrEmptyQuestion):
		return "Please enter a question."
	case errors.Is(err, models.ErrSessionNotFound):
		return "Session not found or expired. Upload the file again."
	case errors.Is(err, models.ErrEmbeddingProvider):
		return "The embedding provider failed. Try again later."
	case errors.Is(err, models.ErrAnswerGeneration):
		return "The answer could not be generated. Try again later."
	case errors.Is(err, models.ErrBlobStore):
		return "File storage is unavailable. Try again later."
	default:
		return "Internal Server Error"
	}
}

func writeError(w http.ResponseWriter, logCtx *slog.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logCtx.Error("Request failed", "status", status, "error", err)
	} else {
		logCtx.Warn("Request rejected", "status", status, "error", err)
	}
	writeJSONError(w, status, messageFor(err))
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.ErrorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
