package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"gorm.io/gorm"

	"github.com/mbu-rpa/journalize/internal/archive"
	"github.com/mbu-rpa/journalize/internal/config"
	"github.com/mbu-rpa/journalize/internal/database"
	"github.com/mbu-rpa/journalize/internal/getorganized"
	"github.com/mbu-rpa/journalize/internal/journalize"
	"github.com/mbu-rpa/journalize/internal/metadata"
	"github.com/mbu-rpa/journalize/internal/notify"
	"github.com/mbu-rpa/journalize/internal/os2forms"
	"github.com/mbu-rpa/journalize/internal/tracking"
)

func main() {
	// Load configuration from environment variables
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	slog.Info("configuration loaded successfully",
		"db_host", cfg.Database.Host,
		"db_port", cfg.Database.Port,
		"db_name", cfg.Database.Name,
		"db_sslmode", cfg.Database.SSLMode,
	)

	slog.Info("worker configuration",
		"metadata_path", cfg.Worker.MetadataPath,
		"max_attempts", cfg.Worker.MaxAttempts,
		"upload_retries", cfg.Worker.UploadRetries,
		"status_port", cfg.Worker.StatusPort,
	)

	meta, err := metadata.Load(cfg.Worker.MetadataPath)
	if err != nil {
		log.Fatalf("failed to load case metadata: %v", err)
	}
	slog.Info("case metadata loaded",
		"form_type", meta.FormTypeID,
		"table", meta.TableName,
		"case_type", meta.CaseType,
	)

	// Initialize database connection
	db, err := database.New(&cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer func() {
		if err := database.Close(db); err != nil {
			slog.Error("failed to close database", "error", err)
		}
	}()

	// Perform health check
	if err := database.HealthCheck(db); err != nil {
		log.Fatalf("database health check failed: %v", err)
	}

	// The run context ends on SIGINT/SIGTERM so a mid-run shutdown stops
	// between forms, never inside one.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := tracking.NewStore(db, cfg.Worker.MaxAttempts)
	goClient := getorganized.NewClient(cfg.GetOrganized.Endpoint, cfg.GetOrganized.Username, cfg.GetOrganized.Password)
	formsClient := os2forms.NewClient(cfg.OS2Forms.APIKey)

	driver, err := archive.NewStorageFromConfig(ctx, cfg.Archive)
	if err != nil {
		log.Fatalf("failed to initialize attachment archive: %v", err)
	}
	archiver := archive.NewArchiver(driver)

	dispatcher := notify.NewDispatcher(notify.NewMailer(cfg.SMTP), cfg.Notify)

	orch, err := journalize.NewOrchestrator(journalize.Deps{
		Source:    store,
		Tracker:   store,
		Identity:  journalize.NewIdentityResolver(goClient, store),
		Folders:   journalize.NewCaseFolderResolver(goClient, store),
		Cases:     journalize.NewCaseCreator(goClient, store),
		Documents: journalize.NewDocumentJournalizer(goClient, formsClient, archiver, store, cfg.Worker),
		Notifier:  dispatcher,
		Meta:      meta,
	})
	if err != nil {
		log.Fatalf("failed to build pipeline: %v", err)
	}

	status := newStatusServer(db)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Worker.StatusPort),
		Handler: status.mux(),
	}
	go func() {
		slog.Info("starting status server", "port", cfg.Worker.StatusPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("status server failed", "error", err)
		}
	}()

	summary, runErr := orch.Run(ctx)
	status.setSummary(summary)

	slog.Info("run summary",
		"run_id", summary.RunID,
		"form_type", summary.FormType,
		"processed", summary.Processed,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"duration", summary.FinishedAt.Sub(summary.StartedAt).String(),
	)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("status server forced to shutdown", "error", err)
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			slog.Info("run interrupted by shutdown signal")
			return
		}
		log.Fatalf("run failed: %v", runErr)
	}
}

// statusServer exposes liveness and the latest run summary while the worker
// is up, for the scheduler that supervises the run.
type statusServer struct {
	db *gorm.DB

	mu      sync.Mutex
	summary *journalize.Summary
}

func newStatusServer(db *gorm.DB) *statusServer {
	return &statusServer{db: db}
}

func (s *statusServer) setSummary(summary journalize.Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary = &summary
}

func (s *statusServer) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		if err := database.HealthCheck(s.db); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintln(w, "database unavailable")
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("GET /status", func(w http.ResponseWriter, _ *http.Request) {
		s.mu.Lock()
		summary := s.summary
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if summary == nil {
			w.WriteHeader(http.StatusAccepted)
			fmt.Fprintln(w, `{"state":"running"}`)
			return
		}
		if err := json.NewEncoder(w).Encode(summary); err != nil {
			slog.Error("failed to encode run summary", "error", err)
		}
	})
	return mux
}
