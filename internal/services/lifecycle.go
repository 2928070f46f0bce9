package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/lifecycle"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Lllllllleong/pdfchatgenie/internal/models"
)

const (
	DefaultFileTTL       = time.Hour
	DefaultSweepInterval = time.Minute
	DefaultBlobTimeout   = 30 * time.Second

	// deletedKeyMemory bounds how many swept keys are remembered to refuse re-tracking.
	deletedKeyMemory = 4096
)

// BlobStore is the object storage holding uploaded files.
type BlobStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error
	Fetch(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Journal persists upload state transitions. Failures are logged and ignored.
type Journal interface {
	Record(ctx context.Context, upload models.TrackedUpload, cause error) error
}

// LifecycleConfig configures a LifecycleManager. Zero values take the defaults.
type LifecycleConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
	DeleteTimeout time.Duration
	Journal       Journal
	Logger        *slog.Logger
	Now           func() time.Time
}

// SweepReport lists the keys a sweep deleted and the keys whose deletion failed.
type SweepReport struct {
	Deleted []string
	Failed  map[string]error
}

type trackedEntry struct {
	uploadedAt time.Time
	state      models.UploadState
}

// LifecycleManager deletes uploaded blobs once they are older than the TTL.
type LifecycleManager struct {
	store  BlobStore
	config LifecycleConfig
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*trackedEntry
	deleted *lru.Cache[string, time.Time]

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewLifecycleManager(store BlobStore, config LifecycleConfig) *LifecycleManager {
	if config.TTL <= 0 {
		config.TTL = DefaultFileTTL
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultSweepInterval
	}
	if config.DeleteTimeout <= 0 {
		config.DeleteTimeout = DefaultBlobTimeout
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	deleted, _ := lru.New[string, time.Time](deletedKeyMemory)
	return &LifecycleManager{
		store:   store,
		config:  config,
		logger:  logger.With("component", "lifecycle"),
		entries: make(map[string]*trackedEntry),
		deleted: deleted,
	}
}

// TTL returns the configured time-to-live.
func (m *LifecycleManager) TTL() time.Duration { return m.config.TTL }

// Track records key as uploaded now. An existing Uploaded entry is refreshed. A key
// pending deletion or already deleted is left alone and false is returned.
func (m *LifecycleManager) Track(ctx context.Context, key string) bool {
	return m.track(ctx, key, true)
}

// TrackIfAbsent tracks key only if it is not tracked and was never deleted.
// Replayed storage events go through here so they cannot extend a key's life.
func (m *LifecycleManager) TrackIfAbsent(ctx context.Context, key string) bool {
	return m.track(ctx, key, false)
}

func (m *LifecycleManager) track(ctx context.Context, key string, refresh bool) bool {
	m.mu.Lock()
	entry, ok := m.entries[key]
	switch {
	case ok && entry.state == models.StatePendingDelete:
		m.mu.Unlock()
		m.logger.Warn("Ignoring track of key pending deletion", "key", key)
		return false
	case !ok && m.deleted.Contains(key):
		m.mu.Unlock()
		m.logger.Warn("Ignoring track of deleted key", "key", key)
		return false
	case ok && !refresh:
		m.mu.Unlock()
		return false
	}
	now := m.config.Now()
	if !ok {
		entry = &trackedEntry{}
		m.entries[key] = entry
	}
	entry.uploadedAt = now
	entry.state = models.StateUploaded
	m.mu.Unlock()

	m.logger.Info("Tracking upload.", "key", key, "uploadedAt", now)
	m.journal(ctx, models.TrackedUpload{Key: key, UploadedAt: now, State: models.StateUploaded}, nil)
	return true
}

// Tracked returns a snapshot of all tracked keys, oldest first.
func (m *LifecycleManager) Tracked() []models.TrackedUpload {
	m.mu.Lock()
	out := make([]models.TrackedUpload, 0, len(m.entries))
	for key, e := range m.entries {
		out = append(out, models.TrackedUpload{Key: key, UploadedAt: e.uploadedAt, State: e.state})
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UploadedAt.Equal(out[j].UploadedAt) {
			return out[i].Key < out[j].Key
		}
		return out[i].UploadedAt.Before(out[j].UploadedAt)
	})
	return out
}

// Sweep deletes every key older than the TTL. The lock is only held while
// selecting and settling entries, never across BlobStore calls. A failed delete
// returns the key to Uploaded so the next sweep retries it.
func (m *LifecycleManager) Sweep(ctx context.Context) SweepReport {
	now := m.config.Now()

	m.mu.Lock()
	var expired []models.TrackedUpload
	for key, e := range m.entries {
		if e.state == models.StateUploaded && now.Sub(e.uploadedAt) > m.config.TTL {
			e.state = models.StatePendingDelete
			expired = append(expired, models.TrackedUpload{Key: key, UploadedAt: e.uploadedAt, State: e.state})
		}
	}
	m.mu.Unlock()

	report := SweepReport{Failed: map[string]error{}}
	if len(expired) == 0 {
		return report
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].Key < expired[j].Key })

	for _, upload := range expired {
		m.journal(ctx, upload, nil)
		if err := m.deleteOne(ctx, upload.Key); err != nil {
			report.Failed[upload.Key] = err
			continue
		}
		report.Deleted = append(report.Deleted, upload.Key)
	}

	m.mu.Lock()
	for _, key := range report.Deleted {
		delete(m.entries, key)
		m.deleted.Add(key, now)
	}
	for key := range report.Failed {
		if e, ok := m.entries[key]; ok {
			e.state = models.StateUploaded
		}
	}
	m.mu.Unlock()

	for _, upload := range expired {
		if err, failed := report.Failed[upload.Key]; failed {
			m.logger.Error("Failed to delete expired upload", "key", upload.Key, "error", err)
			upload.State = models.StateUploaded
			m.journal(ctx, upload, err)
			continue
		}
		upload.State = models.StateDeleted
		m.journal(ctx, upload, nil)
	}
	m.logger.Info("Sweep finished.", "deleted", len(report.Deleted), "failed", len(report.Failed))
	return report
}

func (m *LifecycleManager) deleteOne(ctx context.Context, key string) error {
	callCtx, cancel := context.WithTimeout(ctx, m.config.DeleteTimeout)
	defer cancel()
	if err := recovered(func() error { return m.store.Delete(callCtx, key) }); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (m *LifecycleManager) journal(ctx context.Context, upload models.TrackedUpload, cause error) {
	if m.config.Journal == nil {
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, m.config.DeleteTimeout)
	defer cancel()
	err := recovered(func() error { return m.config.Journal.Record(callCtx, upload, cause) })
	if err != nil {
		m.logger.Warn("Failed to journal upload state", "key", upload.Key, "state", upload.State, "error", err)
	}
}

// recovered runs fn and reports a panic as an error, so one bad key fails alone
// and goes back to Uploaded.
func recovered(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// Start runs Sweep every SweepInterval until ctx is cancelled or Stop is called.
// Calling Start on a running manager does nothing.
func (m *LifecycleManager) Start(ctx context.Context) {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel, m.done = cancel, done

	lifecycle.Go(runCtx, func(ctx context.Context) error {
		defer close(done)
		return m.run(ctx)
	}, lifecycle.WithErrorHandler(func(err error) {
		m.logger.Error("Sweep loop panic", "error", err)
	}))
}

func (m *LifecycleManager) run(ctx context.Context) error {
	ticker := time.NewTicker(m.config.SweepInterval)
	defer ticker.Stop()
	m.logger.Info("Sweep loop started.", "interval", m.config.SweepInterval, "ttl", m.config.TTL)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Sweep loop stopped.")
			return nil
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Stop cancels the sweep loop and waits for it to exit. It is safe to call more
// than once.
func (m *LifecycleManager) Stop() {
	m.runMu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
