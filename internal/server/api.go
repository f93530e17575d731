// Package server exposes the catalog over HTTP under /ehp.
package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/nsyy/eye-pacs/internal/common"
	"github.com/nsyy/eye-pacs/internal/entity"
	"github.com/nsyy/eye-pacs/internal/repository"
)

// BasePath prefixes every route.
const BasePath = "/ehp"

// Task names the HTTP triggers run through TaskRunner.
const (
	TaskIngest  = "ingest"
	TaskExtract = "extract"
)

// TaskRunner runs a named job and waits for it.
type TaskRunner interface {
	Run(ctx context.Context, name string) error
}

// Exporter renders parsed reports in [from, to] as an XLSX workbook.
type Exporter interface {
	ExportReportsXLSX(ctx context.Context, from, to *time.Time) ([]byte, error)
}

// UploadStore writes manual uploads into the archive.
type UploadStore interface {
	Save(name string, r io.Reader) (entity.Report, error)
	DestRoot() string
}

// API holds the handlers' collaborators.
type API struct {
	tasks    TaskRunner
	repo     repository.ReportRepository
	exporter Exporter
	uploads  UploadStore
	logger   *slog.Logger
}

func NewAPI(tasks TaskRunner, repo repository.ReportRepository, exporter Exporter, uploads UploadStore, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		tasks:    tasks,
		repo:     repo,
		exporter: exporter,
		uploads:  uploads,
		logger:   logger,
	}
}

// Router builds the mux router. Encoded paths are kept so report tokens
// carrying %26 or %2F reach the handler intact.
func (a *API) Router() *mux.Router {
	router := mux.NewRouter()
	router.UseEncodedPath()
	router.Use(a.requestLogger)

	api := router.PathPrefix(BasePath).Subrouter()
	api.HandleFunc("/health", a.health).Methods(http.MethodGet)
	api.HandleFunc("/monitor_task", a.runTask(TaskIngest)).Methods(http.MethodGet, http.MethodPost)
	api.HandleFunc("/analysis_task", a.runTask(TaskExtract)).Methods(http.MethodGet, http.MethodPost)
	api.HandleFunc("/report/{token}", a.serveReport).Methods(http.MethodGet, http.MethodPost)
	api.HandleFunc("/bind_report", a.bindReport).Methods(http.MethodGet, http.MethodPost)
	api.HandleFunc("/upload", a.upload).Methods(http.MethodPost)
	api.HandleFunc("/query_reports", a.queryReports).Methods(http.MethodGet, http.MethodPost)
	api.HandleFunc("/export", a.export).Methods(http.MethodGet)

	return router
}

// requestLogger tags each request with an id and logs it once served.
func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := common.WithRequestID(r.Context(), id)

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r.WithContext(ctx))

		common.LoggerFrom(ctx, a.logger).Info("request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	writeOK(w, "ok", nil)
}

func (a *API) runTask(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := a.tasks.Run(r.Context(), name); err != nil {
			common.LoggerFrom(r.Context(), a.logger).Warn("task trigger failed", "task", name, "error", err)
			writeError(w, err)
			return
		}
		writeOK(w, "success", nil)
	}
}
