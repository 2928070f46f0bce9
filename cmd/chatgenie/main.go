package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"cloud.google.com/go/storage"
	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/joho/godotenv"

	"github.com/Lllllllleong/pdfchatgenie/internal/gcp"
	"github.com/Lllllllleong/pdfchatgenie/internal/openai"
	"github.com/Lllllllleong/pdfchatgenie/internal/services"
)

var (
	appInstance *app
	once        sync.Once
	initErr     error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandleUpload", withApp((*app).handleUpload))
	functions.HTTP("HandleAsk", withApp((*app).handleAsk))
	functions.HTTP("HandleTrackedUploads", withApp((*app).handleTrackedUploads))
	functions.CloudEvent("TrackObject", trackObject)
}

// getApp initializes clients once and starts the sweep loop.
func getApp() (*app, error) {
	once.Do(func() {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("Failed to load .env file", "error", err)
		}
		appInstance, initErr = newApp(context.Background())
		if initErr == nil {
			appInstance.lifecycle.Start(context.Background())
		}
	})
	return appInstance, initErr
}

func withApp(handler func(*app, http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := getApp()
		if err != nil {
			slog.Error("Critical error during function initialization", "error", err)
			writeJSONError(w, http.StatusInternalServerError, "failed to initialize service")
			return
		}
		handler(a, w, r)
	}
}

func trackObject(ctx context.Context, e cloudevents.Event) error {
	a, err := getApp()
	if err != nil {
		slog.Error("Critical error during function initialization", "error", err)
		return err
	}
	return a.trackObject(ctx, e)
}

// main serves the functions locally and stops the sweep loop on SIGINT/SIGTERM.
func main() {
	a, err := getApp()
	if err != nil {
		slog.Error("Failed to initialize service", "error", err)
		os.Exit(1)
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	port := gcp.GetEnv("PORT", "8080")
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Serving functions.", "port", port)
		serveErr <- funcframework.Start(port)
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutting down.")
	case err := <-serveErr:
		slog.Error("Function server exited", "error", err)
	}
	a.lifecycle.Stop()
}

func newApp(ctx context.Context) (*app, error) {
	config, err := services.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	a := &app{uploadBucket: config.UploadBucket, maxUploadBytes: config.MaxUploadBytes}

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	a.closers = append(a.closers, storageClient.Close)
	store, err := gcp.NewBlobStore(storageClient, config.UploadBucket)
	if err != nil {
		a.close()
		return nil, err
	}

	embedder, completer, err := newProviders(ctx, config, a)
	if err != nil {
		a.close()
		return nil, err
	}

	lifecycleConfig := services.LifecycleConfig{
		TTL:           config.FileTTL,
		SweepInterval: config.SweepInterval,
		DeleteTimeout: config.BlobTimeout,
	}
	if config.FirestoreCollection != "" {
		firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, firestoreClient.Close)
		lifecycleConfig.Journal = gcp.NewFirestoreJournal(firestoreClient, config.FirestoreCollection)
	}
	a.lifecycle = services.NewLifecycleManager(store, lifecycleConfig)

	chunker, err := services.NewChunker(config.ChunkSize, config.ChunkOverlap)
	if err != nil {
		a.close()
		return nil, err
	}
	a.docs = services.NewDocumentService(services.DocumentDeps{
		Store:     store,
		Lifecycle: a.lifecycle,
		Chunker:   chunker,
		Embedder:  services.NewCachedEmbedder(embedder, 0),
		Answerer: services.NewAnswerer(completer, services.AnswererConfig{
			TopK:    config.RetrievalTopK,
			Timeout: config.AnswerTimeout,
		}, nil),
		Sessions: services.NewSessionStore(config.SessionCacheSize, config.FileTTL),
	}, services.DocumentConfig{
		MaxUploadBytes: config.MaxUploadBytes,
		BlobTimeout:    config.BlobTimeout,
		IndexOptions:   []services.IndexOption{services.WithCallTimeout(config.EmbedTimeout)},
	})

	slog.Info("PDF chat service initialized.", "provider", config.Provider, "bucket", config.UploadBucket, "ttl", config.FileTTL)
	return a, nil
}

func newProviders(ctx context.Context, config *services.Config, a *app) (services.Embedder, services.Completer, error) {
	if config.Provider == services.ProviderOpenAI {
		client, err := openai.NewClient(openai.Config{
			BaseURL:         config.OpenAIBaseURL,
			APIKey:          config.OpenAIAPIKey,
			EmbeddingModel:  config.EmbeddingModel,
			CompletionModel: config.CompletionModel,
			Timeout:         max(config.EmbedTimeout, config.AnswerTimeout),
		})
		if err != nil {
			return nil, nil, err
		}
		return client, client, nil
	}

	embedder, err := gcp.NewVertexEmbedder(ctx, config.ProjectID, config.VertexAIRegion, config.EmbeddingModel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create vertex embedder: %w", err)
	}
	a.closers = append(a.closers, embedder.Close)
	completer, err := gcp.NewVertexCompleter(ctx, config.ProjectID, config.VertexAIRegion, config.CompletionModel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create vertex completer: %w", err)
	}
	a.closers = append(a.closers, completer.Close)
	return embedder, completer, nil
}
