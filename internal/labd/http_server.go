// Package labd exposes the lab orchestrator over HTTP/JSON and gRPC.
package labd

import (
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/GoSim-25-26J-441/medvision-sim/internal/lab"
	"github.com/GoSim-25-26J-441/medvision-sim/internal/metrics"
	"github.com/GoSim-25-26J-441/medvision-sim/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPOptions configure an HTTPServer. The zero value allows every origin and serves
// the default prometheus registry.
type HTTPOptions struct {
	CORSOrigins []string
	Recorder    *metrics.Recorder
	Gatherer    prometheus.Gatherer
}

type HTTPServer struct {
	mux     *http.ServeMux
	lab     *lab.Lab
	rec     *metrics.Recorder
	origins []string
}

func NewHTTPServer(l *lab.Lab, opts HTTPOptions) *HTTPServer {
	s := &HTTPServer{
		mux:     http.NewServeMux(),
		lab:     l,
		rec:     opts.Recorder,
		origins: opts.CORSOrigins,
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	s.handle("/api/", "index", s.handleIndex)
	s.handle("/api/datasets", "datasets", s.handleDatasets)
	s.handle("/api/datasets/", "dataset", s.handleDatasetByID)
	s.handle("/api/models", "models", s.handleModels)
	s.handle("/api/models/", "model", s.handleModelByID)
	s.handle("/api/experiments", "experiments", s.handleExperiments)
	s.handle("/api/experiments/", "experiment", s.handleExperimentByID)
	s.handle("/api/evaluations", "evaluations", s.handleEvaluations)
	s.handle("/api/evaluations/", "evaluation", s.handleEvaluationByID)
	s.handle("/api/finetune", "finetunes", s.handleFinetunes)
	s.handle("/api/finetune/", "finetune", s.handleFinetuneByID)
	s.handle("/api/visualization/embeddings", "embeddings", s.handleEmbeddings)
	s.handle("/api/visualization/slice/", "slice", s.handleSlice)
	s.handle("/api/dashboard/stats", "dashboard", s.handleDashboardStats)
	s.handle("/api/seed", "seed", s.handleSeed)

	return s
}

// Handler returns the root handler with CORS applied.
func (s *HTTPServer) Handler() http.Handler {
	return s.cors(s.mux)
}

// handle registers h under pattern, counting responses per route name.
func (s *HTTPServer) handle(pattern, route string, h http.HandlerFunc) {
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		h(sw, r)
		s.rec.HTTPRequest(route, sw.code)
	})
}

func (s *HTTPServer) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowed := s.allowedOrigin(origin); allowed != "" {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allowed)
			h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if allowed != "*" {
				h.Add("Vary", "Origin")
			}
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) allowedOrigin(origin string) string {
	if len(s.origins) == 0 || slices.Contains(s.origins, "*") {
		return "*"
	}
	if origin != "" && slices.Contains(s.origins, origin) {
		return origin
	}
	return ""
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleIndex handles GET /api/
func (s *HTTPServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/" {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}
	if !s.allow(w, r, http.MethodGet) {
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"name":    "medvision-sim",
		"message": "MedVision SSL simulation API",
		"endpoints": []string{
			"/api/datasets",
			"/api/models",
			"/api/experiments",
			"/api/evaluations",
			"/api/evaluations/compare",
			"/api/finetune",
			"/api/visualization/embeddings",
			"/api/visualization/slice/{index}",
			"/api/dashboard/stats",
			"/api/seed",
		},
	})
}

// allow writes 405 and returns false unless r uses one of methods.
func (s *HTTPServer) allow(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	if slices.Contains(methods, r.Method) {
		return true
	}
	s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

// Helper functions

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"error": message,
	})
}

// writeErr maps a domain error to its status code.
func (s *HTTPServer) writeErr(w http.ResponseWriter, err error) {
	code := httpStatus(err)
	if code == http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
	}
	s.writeError(w, code, err.Error())
}

// statusWriter remembers the response code and keeps streaming handlers flushable.
type statusWriter struct {
	http.ResponseWriter
	code    int
	written bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.written {
		w.code = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.written = true
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
