package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/nsqio/go-nsq"

	"qaforge/features/job"
	"qaforge/features/knowledge"
	"qaforge/features/mcp"
	"qaforge/features/script"
	"qaforge/features/stats"
	"qaforge/features/testcase"
	"qaforge/features/upload"
	"qaforge/internal/adapter/gemini"
	"qaforge/internal/config"
	"qaforge/internal/index"
	"qaforge/internal/middleware"
	"qaforge/internal/retrieval"
	"qaforge/internal/settings"
	"qaforge/internal/text"
	"qaforge/internal/worker"
)

type App struct {
	Handler       http.Handler
	Knowledge     *knowledge.Service
	TestCases     *testcase.Generator
	Scripts       *script.Generator
	Stats         *stats.Service
	Jobs          *job.Service
	Settings      *settings.Service
	BuildConsumer *worker.BuildConsumer

	cfg         *config.Config
	backend     index.Backend
	queryLogger *retrieval.QueryLogger
}

// New wires every feature onto one mux. pub may be nil, which disables
// async builds and job retries.
func New(cfg *config.Config, db *sql.DB, backend index.Backend, pub Publisher) (*App, error) {
	splitter, err := text.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	// Settings
	defaults := settings.Settings{
		GeminiAPIKey: cfg.GeminiAPIKey,
		ChatModel:    cfg.ChatModel,
		TopK:         cfg.TopK,
		Temperature:  cfg.Temperature,
		MaxTokens:    cfg.MaxTokens,
	}
	settingsRepo := settings.NewPostgresRepo(db)
	if err := settingsRepo.Seed(context.Background(), defaults); err != nil {
		slog.Warn("failed to seed settings from environment", "error", err)
	}
	settingsService := settings.NewService(settingsRepo, defaults)
	settingsHandler := settings.NewHandler(settingsService)

	// Provider
	handle := gemini.NewClientHandle(settingsService, gemini.NewLimiter(cfg.ProviderRPS, cfg.ProviderBurst))
	embedder := gemini.NewEmbedder(handle, cfg.EmbeddingModel, cfg.EmbedBatchSize)
	completer := gemini.NewCompleter(handle, cfg.ChatModel)

	// Retrieval
	idx := index.New(embedder, backend)
	queryLogger := newQueryLogger(cfg.QueryLogPath)
	rag := retrieval.NewService(idx, completer, settingsService, queryLogger)

	// Feature: Knowledge base
	kbService := knowledge.NewService(idx, rag, splitter, cfg.UploadDir, nil)
	kbHandler := knowledge.NewHandler(kbService, pub)

	// Feature: Upload
	uploadHandler := upload.NewHandler(upload.NewService(cfg.UploadDir), cfg.MaxUploadSizeMB)

	// Feature: Test cases
	testCaseRepo := testcase.NewPostgresRepo(db)
	testCases := testcase.NewGenerator(rag, testCaseRepo, cfg.TestCaseTopK)
	testCaseHandler := testcase.NewHandler(testCases)

	// Feature: Scripts
	scriptRepo := script.NewPostgresRepo(db)
	scripts := script.NewGenerator(rag, scriptRepo, cfg.ScriptsDir,
		filepath.Join(cfg.UploadDir, upload.MarkupFilename),
		script.NewModelStrategy(rag), script.NewTemplateStrategy())
	scriptHandler := script.NewHandler(scripts, testCases)

	// Feature: Job
	jobRepo := job.NewPostgresRepo(db)
	jobService := job.NewService(jobRepo, pub)
	jobHandler := job.NewHandler(jobService)

	// Feature: Stats
	statsService := stats.NewService(kbService, testCaseRepo, scriptRepo, jobRepo)
	statsHandler := stats.NewHandler(statsService)

	// Feature: MCP
	mcpServer, err := mcp.NewServer(mcp.Ports{Search: kbService, Generator: testCases, Stats: statsService})
	if err != nil {
		return nil, err
	}

	a := &App{
		Knowledge:     kbService,
		TestCases:     testCases,
		Scripts:       scripts,
		Stats:         statsService,
		Jobs:          jobService,
		Settings:      settingsService,
		BuildConsumer: worker.NewBuildConsumer(kbService, jobService, worker.DefaultMaxAttempts),
		cfg:           cfg,
		backend:       backend,
		queryLogger:   queryLogger,
	}

	route := func(h http.HandlerFunc) http.Handler {
		return middleware.CorrelationID(middleware.CORS(h))
	}

	mux := http.NewServeMux()

	mux.Handle("POST /api/knowledge-base/build", route(kbHandler.Build))
	mux.Handle("POST /api/knowledge-base/build/async", route(kbHandler.BuildAsync))
	mux.Handle("GET /api/knowledge-base/stats", route(kbHandler.Stats))
	mux.Handle("DELETE /api/knowledge-base", route(kbHandler.Clear))
	mux.Handle("POST /api/knowledge-base/search", route(kbHandler.Search))

	mux.Handle("POST /api/upload/documents", route(uploadHandler.UploadDocuments))
	mux.Handle("POST /api/upload/html", route(uploadHandler.UploadMarkup))
	mux.Handle("GET /api/uploads/list", route(uploadHandler.List))
	mux.Handle("DELETE /api/uploads/clear", route(uploadHandler.Clear))

	mux.Handle("POST /api/test-cases/generate", route(testCaseHandler.Generate))
	mux.Handle("GET /api/test-cases", route(testCaseHandler.List))
	mux.Handle("GET /api/test-cases/{id}", route(testCaseHandler.Get))

	mux.Handle("POST /api/scripts/generate", route(scriptHandler.Generate))
	mux.Handle("GET /api/scripts/list", route(scriptHandler.List))
	mux.Handle("GET /api/scripts/download/{filename}", route(scriptHandler.Download))

	mux.Handle("GET /settings", route(settingsHandler.GetSettings))
	mux.Handle("PUT /settings", route(settingsHandler.UpdateSettings))

	mux.Handle("GET /jobs/failed", route(jobHandler.List))
	mux.Handle("POST /jobs/{id}/retry", route(jobHandler.Retry))

	mux.Handle("GET /stats", route(statsHandler.GetStats))

	mux.Handle("/mcp", middleware.CorrelationID(middleware.CORS(mcpServer.Handler())))

	mux.HandleFunc("GET /health", a.health)

	a.Handler = mux
	return a, nil
}

func newQueryLogger(path string) *retrieval.QueryLogger {
	if path != "" {
		l, err := retrieval.NewFileQueryLogger(path)
		if err == nil {
			return l
		}
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
	}
	return retrieval.NewQueryLogger(os.Stdout)
}

func (a *App) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	key, _ := a.Settings.APIKey(ctx)
	_, statsErr := a.backend.Stats(ctx)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":                "ok",
		"api_configured":        key != "",
		"vector_db_initialized": statsErr == nil,
	})
}

// Run serves HTTP and, when enabled, consumes build tasks until ctx ends.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.EnableBuildWorker {
		consumer, err := worker.NewConsumer(a.cfg, a.BuildConsumer)
		if err != nil {
			return fmt.Errorf("build consumer error: %w", err)
		}
		slog.Info("build worker started", "topic", config.TopicBuild, "channel", config.ChannelBuild)
		defer stopConsumer(consumer)
	}
	defer func() {
		if err := a.queryLogger.Close(); err != nil {
			slog.Warn("failed to close query log", "error", err)
		}
	}()

	if !a.cfg.EnableAPI {
		<-ctx.Done()
		return nil
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.ServerPort),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.cfg.ServerPort)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func stopConsumer(c *nsq.Consumer) {
	c.Stop()
	<-c.StopChan
}
