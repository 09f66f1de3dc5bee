package directory

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"sigbridge/internal/domain"
	"sigbridge/internal/logging"
)

// Backend is what the server exposes: a directory that can also forget.
type Backend interface {
	domain.Directory
	Delete(ctx context.Context, owner domain.Address) error
}

// maxBody caps uploads; a bundle with a few hundred one-time keys is far
// below it.
const maxBody = 1 << 20

// Server serves the directory HTTP API.
type Server struct {
	backend Backend
	log     *slog.Logger
	router  *mux.Router
}

// NewServer returns a Server over b.
func NewServer(b Backend, log *slog.Logger) *Server {
	s := &Server{backend: b, log: logging.OrDiscard(log)}
	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.HandleFunc("/v1/keys/{name}/{device}", s.handlePublish).Methods(http.MethodPut)
	r.HandleFunc("/v1/keys/{name}/{device}", s.handleFetch).Methods(http.MethodGet)
	r.HandleFunc("/v1/keys/{name}/{device}", s.handleDelete).Methods(http.MethodDelete)
	r.HandleFunc("/v1/keys/{name}/{device}/count", s.handleCount).Methods(http.MethodGet)
	r.Use(s.accessLog)
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	var keys domain.PublishedKeys
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&keys); err != nil {
		httpError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.backend.Publish(r.Context(), owner, keys); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	b, err := s.backend.FetchBundle(r.Context(), owner)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	n, err := s.backend.PreKeyCount(r.Context(), owner)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: n})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	owner, ok := ownerFrom(w, r)
	if !ok {
		return
	}
	if err := s.backend.Delete(r.Context(), owner); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type countResponse struct {
	Count int `json:"count"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func ownerFrom(w http.ResponseWriter, r *http.Request) (domain.Address, bool) {
	vars := mux.Vars(r)
	dev, err := strconv.ParseUint(vars["device"], 10, 32)
	if err != nil || vars["name"] == "" {
		httpError(w, http.StatusBadRequest, errors.New("bad address"))
		return domain.Address{}, false
	}
	return domain.NewAddress(vars["name"], uint32(dev)), true
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpError(w, http.StatusNotFound, err)
	case errors.Is(err, ErrInvalidBundle):
		httpError(w, http.StatusBadRequest, err)
	default:
		s.log.Error("directory backend failed", "err", err)
		httpError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}

func httpError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"status", rec.status,
			"bytes", rec.bytes,
			"duration", time.Since(start),
		)
	})
}
