package api

import (
	"encoding/json"
	"net/http"

	"github.com/ephemera-box/catalog/internal/images"
	"github.com/ephemera-box/catalog/internal/process"
	"github.com/ephemera-box/catalog/internal/store"
)

// maxUploadBody is the maximum allowed request body size (10 MB); item
// uploads carry full-resolution photos.
const maxUploadBody int64 = 10 << 20

// Enqueuer schedules background item jobs.
type Enqueuer interface {
	Enqueue(job process.Job)
}

// Server holds the HTTP handlers and dependencies.
type Server struct {
	store store.Repository
	files *images.Store
	jobs  Enqueuer
	cors  string
	mux   *http.ServeMux
}

// New creates a new API server.
func New(s store.Repository, files *images.Store, jobs Enqueuer, corsOrigin string) *Server {
	srv := &Server{store: s, files: files, jobs: jobs, cors: corsOrigin, mux: http.NewServeMux()}
	srv.routes()
	return srv
}

// Handler returns the root http.Handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.corsMiddleware(limitBody(jsonContent(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/batches", s.handleCreateBatch)
	s.mux.HandleFunc("GET /api/batches/{batch}", s.handleGetBatch)
	s.mux.HandleFunc("POST /api/batches/{batch}/items", s.handleProcessItem)
	s.mux.HandleFunc("GET /api/batches/{batch}/items/{id}", s.handleGetItem)
	s.mux.HandleFunc("POST /api/batches/{batch}/items/{id}/retry", s.handleRetryItem)
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	origin := s.cors
	if origin == "" {
		origin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// limitBody restricts the request body to maxUploadBody bytes.
func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
		next.ServeHTTP(w, r)
	})
}

func jsonContent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// ---------------------------------------------------------------------------
// Response helpers
// ---------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
