// Package api wires the storage facade, pub/sub fabric, backup orchestrator,
// and bulk importer behind an HTTP surface: one mux.Router with the
// namespace Resolver and AuthGate mounted on every /api/* route.
package api

import (
	"net/http"
	"strconv"

	"github.com/cuemby/kvdoc/pkg/backup"
	"github.com/cuemby/kvdoc/pkg/importer"
	"github.com/cuemby/kvdoc/pkg/metrics"
	"github.com/cuemby/kvdoc/pkg/namespace"
	"github.com/cuemby/kvdoc/pkg/pubsub"
	"github.com/cuemby/kvdoc/pkg/storage"
	"github.com/gorilla/mux"
)

// maxBodyBytes is the request/JSON body limit.
const maxBodyBytes = 50 << 20 // 50 MiB

// Server holds every collaborator a handler needs and builds the mux.Router
// exposing them over HTTP.
type Server struct {
	engine       storage.Engine
	registry     *pubsub.Registry
	orchestrator *backup.Orchestrator
	importer     *importer.Importer
	resolver     *namespace.Resolver
	authGate     *namespace.AuthGate
	adminToken   string
	backupDir    string
}

// New builds a Server. adminToken gates the benchmark endpoint directly
// (it never passes through AuthGate, since /benchmark isn't under /api);
// backupDir is also the root static-served for /backups/*.
func New(engine storage.Engine, registry *pubsub.Registry, orchestrator *backup.Orchestrator, imp *importer.Importer, adminToken, backupDir string) *Server {
	return &Server{
		engine:       engine,
		registry:     registry,
		orchestrator: orchestrator,
		importer:     imp,
		resolver:     namespace.NewResolver(engine),
		authGate:     namespace.NewAuthGate(engine, adminToken),
		adminToken:   adminToken,
		backupDir:    backupDir,
	}
}

// Router builds the full route table and returns it ready to serve.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.Handle("/healthz", metrics.HealthHandler())
	r.Handle("/readyz", metrics.ReadyHandler())
	r.Handle("/livez", metrics.LivenessHandler())
	r.Handle("/metrics", metrics.Handler())
	r.HandleFunc("/benchmark", s.handleBenchmark).Methods(http.MethodGet)

	r.PathPrefix("/backups/").Handler(http.StripPrefix("/backups/", http.FileServer(http.Dir(s.backupDir))))

	api := r.PathPrefix("/api").Subrouter()
	api.Use(metricsMiddleware, s.resolver.Middleware, s.authGate.Middleware, bodyLimitMiddleware)

	// Literal underscore sub-routes must be registered before the generic
	// /{collection}/{key} pattern or the catch-all matches first.
	api.HandleFunc("/{collection}/_batch", s.handleBatchInsert).Methods(http.MethodPut)
	api.HandleFunc("/{collection}/_subscribe", s.handleSubscribe).Methods(http.MethodGet)
	api.HandleFunc("/{collection}/_backup/upload", s.handleBackupUpload).Methods(http.MethodPost)
	api.HandleFunc("/{collection}/_backup/status", s.handleBackupStatus).Methods(http.MethodGet)
	api.HandleFunc("/{collection}/_backup", s.handleStartBackup).Methods(http.MethodPost)
	api.HandleFunc("/{collection}/_backup", s.handleListBackups).Methods(http.MethodGet)
	api.HandleFunc("/{collection}/_restore", s.handleStartRestore).Methods(http.MethodPost)
	api.HandleFunc("/{collection}/_restore", s.handleRestoreStatusOrList).Methods(http.MethodGet)
	api.HandleFunc("/{collection}/_import", s.handleImport).Methods(http.MethodPost)

	api.HandleFunc("/{collection}", s.handleCollectionHead).Methods(http.MethodHead)
	api.HandleFunc("/{collection}", s.handleCollectionCreate).Methods(http.MethodPut)
	api.HandleFunc("/{collection}", s.handleCollectionDelete).Methods(http.MethodDelete)
	api.HandleFunc("/{collection}", s.handleCollectionRange).Methods(http.MethodGet)
	api.HandleFunc("/{collection}", s.handleCollectionQuery).Methods(http.MethodPost)

	api.HandleFunc("/{collection}/{key}", s.handleKeyHead).Methods(http.MethodHead)
	api.HandleFunc("/{collection}/{key}", s.handleKeyGet).Methods(http.MethodGet)
	api.HandleFunc("/{collection}/{key}", s.handleKeyPut).Methods(http.MethodPut)
	api.HandleFunc("/{collection}/{key}", s.handleKeyDelete).Methods(http.MethodDelete)

	return r
}

func bodyLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

// statusRecorder wraps a ResponseWriter to capture the status code written,
// so metricsMiddleware can label a request after the handler has run.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

// Flush lets the SSE handler's http.Flusher type assertion keep working
// through the wrapper.
func (rec *statusRecorder) Flush() {
	if f, ok := rec.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		timer := metrics.NewTimer()
		next.ServeHTTP(rec, r)
		metrics.APIRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
		timer.ObserveDurationVec(metrics.APIRequestDuration, r.Method)
	})
}
