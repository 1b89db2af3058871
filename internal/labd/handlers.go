package labd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/GoSim-25-26J-441/medvision-sim/pkg/logger"
	"github.com/GoSim-25-26J-441/medvision-sim/pkg/models"
)

const (
	defaultEmbeddingSamples = 100
	defaultTotalSlices      = 128
)

// decodeBody decodes a JSON request body on top of dst, which carries the defaults.
func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", errBadRequest, err)
	}
	return nil
}

// splitPath returns the non-empty segments of path after prefix.
func splitPath(path, prefix string) []string {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errBadRequest, key)
	}
	return v, nil
}

// handleDatasets handles /api/datasets
func (s *HTTPServer) handleDatasets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := s.lab.ListDatasets(r.Context())
		if err != nil {
			s.writeErr(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, list)
	case http.MethodPost:
		d := models.DefaultDataset()
		if err := decodeBody(r, &d); err != nil {
			s.writeErr(w, err)
			return
		}
		created, err := s.lab.CreateDataset(r.Context(), d)
		if err != nil {
			s.writeErr(w, err)
			return
		}
		logger.Info("dataset created", "dataset_id", created.ID)
		s.writeJSON(w, http.StatusCreated, created)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleDatasetByID handles /api/datasets/{id}
func (s *HTTPServer) handleDatasetByID(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/api/datasets/")
	if len(parts) != 1 {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}
	id := parts[0]
	switch r.Method {
	case http.MethodGet:
		d, err := s.lab.GetDataset(r.Context(), id)
		if err != nil {
			s.writeErr(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, d)
	case http.MethodDelete:
		if err := s.lab.DeleteDataset(r.Context(), id); err != nil {
			s.writeErr(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleModels handles /api/models
func (s *HTTPServer) handleModels(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := s.lab.ListModels(r.Context())
		if err != nil {
			s.writeErr(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, list)
	case http.MethodPost:
		m := models.DefaultModelConfig()
		if err := decodeBody(r, &m); err != nil {
			s.writeErr(w, err)
			return
		}
		created, err := s.lab.CreateModel(r.Context(), m)
		if err != nil {
			s.writeErr(w, err)
			return
		}
		logger.Info("model config created", "model_config_id", created.ID)
		s.writeJSON(w, http.StatusCreated, created)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleModelByID handles /api/models/{id}
func (s *HTTPServer) handleModelByID(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/api/models/")
	if len(parts) != 1 {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}
	id := parts[0]
	switch r.Method {
	case http.MethodGet:
		m, err := s.lab.GetModel(r.Context(), id)
		if err != nil {
			s.writeErr(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, m)
	case http.MethodDelete:
		if err := s.lab.DeleteModel(r.Context(), id); err != nil {
			s.writeErr(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleExperiments handles /api/experiments
func (s *HTTPServer) handleExperiments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := s.lab.ListExperiments(r.Context())
		if err != nil {
			s.writeErr(w, err)
			return
		}
		if raw := r.URL.Query().Get("status"); raw != "" {
			st, ok := models.ParseStatus(raw)
			if !ok {
				s.writeError(w, http.StatusBadRequest, "unknown status "+raw)
				return
			}
			filtered := list[:0]
			for _, e := range list {
				if e.Status == st {
					filtered = append(filtered, e)
				}
			}
			list = filtered
		}
		s.writeJSON(w, http.StatusOK, list)
	case http.MethodPost:
		e := models.DefaultExperiment()
		if err := decodeBody(r, &e); err != nil {
			s.writeErr(w, err)
			return
		}
		created, err := s.lab.CreateExperiment(r.Context(), e)
		if err != nil {
			s.writeErr(w, err)
			return
		}
		logger.Info("experiment created", "experiment_id", created.ID, "method", created.PretrainingMethod)
		s.writeJSON(w, http.StatusCreated, created)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleExperimentByID handles /api/experiments/{id} and its sub-resources:
// POST .../start|begin|pause|resume|step, GET .../metrics, GET .../metrics/stream,
// GET .../evaluation.
func (s *HTTPServer) handleExperimentByID(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/api/experiments/")
	if len(parts) == 0 {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}
	id := parts[0]
	switch {
	case len(parts) == 1:
		s.handleExperiment(w, r, id)
	case len(parts) == 2 && parts[1] == "metrics":
		if s.allow(w, r, http.MethodGet) {
			s.handleExperimentMetrics(w, r, id)
		}
	case len(parts) == 3 && parts[1] == "metrics" && parts[2] == "stream":
		if s.allow(w, r, http.MethodGet) {
			s.handleMetricsStream(w, r, id)
		}
	case len(parts) == 2 && parts[1] == "evaluation":
		if s.allow(w, r, http.MethodGet) {
			s.handleExperimentEvaluation(w, r, id)
		}
	case len(parts) == 2:
		if s.allow(w, r, http.MethodPost) {
			s.handleExperimentAction(w, r, id, parts[1])
		}
	default:
		s.writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *HTTPServer) handleExperiment(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		e, err := s.lab.GetExperiment(r.Context(), id)
		if err != nil {
			s.writeErr(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, e)
	case http.MethodDelete:
		if err := s.lab.DeleteExperiment(r.Context(), id); err != nil {
			s.writeErr(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleExperimentAction handles POST /api/experiments/{id}/{action}. start and resume
// block until the run loop stops unless ?async=true is given.
func (s *HTTPServer) handleExperimentAction(w http.ResponseWriter, r *http.Request, id, action string) {
	async := r.URL.Query().Get("async") == "true"
	var (
		exp *models.Experiment
		err error
	)
	switch action {
	case "start":
		run := s.lab.Start
		if async {
			run = s.lab.StartAsync
		}
		exp, err = run(r.Context(), id)
	case "resume":
		run := s.lab.Resume
		if async {
			run = s.lab.ResumeAsync
		}
		exp, err = run(r.Context(), id)
	case "begin":
		exp, err = s.lab.Begin(r.Context(), id)
	case "pause":
		exp, err = s.lab.Pause(r.Context(), id)
	case "step":
		exp, err = s.lab.Step(r.Context(), id)
	default:
		s.writeError(w, http.StatusNotFound, "unknown action "+action)
		return
	}
	if err != nil {
		s.writeErr(w, err)
		return
	}
	logger.Info("experiment action", "experiment_id", id, "action", action, "status", exp.Status, "epoch", exp.CurrentEpoch)
	s.writeJSON(w, http.StatusOK, exp)
}

func (s *HTTPServer) handleExperimentMetrics(w http.ResponseWriter, r *http.Request, id string) {
	m, err := s.lab.Metrics(r.Context(), id)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, m)
}

func (s *HTTPServer) handleExperimentEvaluation(w http.ResponseWriter, r *http.Request, id string) {
	ev, err := s.lab.Evaluation(r.Context(), id)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ev)
}

// handleEvaluations handles GET /api/evaluations
func (s *HTTPServer) handleEvaluations(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodGet) {
		return
	}
	list, err := s.lab.ListEvaluations(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

// handleEvaluationByID handles GET /api/evaluations/compare and
// GET /api/evaluations/{experiment_id}
func (s *HTTPServer) handleEvaluationByID(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/api/evaluations/")
	if len(parts) != 1 {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}
	if !s.allow(w, r, http.MethodGet) {
		return
	}
	if parts[0] == "compare" {
		cmp, err := s.lab.CompareEvaluations(r.Context())
		if err != nil {
			s.writeErr(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, cmp)
		return
	}
	s.handleExperimentEvaluation(w, r, parts[0])
}

// handleFinetunes handles /api/finetune
func (s *HTTPServer) handleFinetunes(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := s.lab.ListFinetunes(r.Context())
		if err != nil {
			s.writeErr(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, list)
	case http.MethodPost:
		f := models.DefaultFinetuneConfig()
		if err := decodeBody(r, &f); err != nil {
			s.writeErr(w, err)
			return
		}
		created, err := s.lab.CreateFinetune(r.Context(), f)
		if err != nil {
			s.writeErr(w, err)
			return
		}
		logger.Info("fine-tune created", "finetune_id", created.ID, "experiment_id", created.ExperimentID)
		s.writeJSON(w, http.StatusCreated, created)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleFinetuneByID handles GET /api/finetune/{id} and POST /api/finetune/{id}/start
func (s *HTTPServer) handleFinetuneByID(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/api/finetune/")
	switch {
	case len(parts) == 1:
		if !s.allow(w, r, http.MethodGet) {
			return
		}
		f, err := s.lab.GetFinetune(r.Context(), parts[0])
		if err != nil {
			s.writeErr(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, f)
	case len(parts) == 2 && parts[1] == "start":
		if !s.allow(w, r, http.MethodPost) {
			return
		}
		f, err := s.lab.StartFinetune(r.Context(), parts[0])
		if err != nil {
			s.writeErr(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, f)
	default:
		s.writeError(w, http.StatusNotFound, "not found")
	}
}

// handleEmbeddings handles GET /api/visualization/embeddings?num_samples=100&seed=
func (s *HTTPServer) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodGet) {
		return
	}
	n, err := queryInt(r, "num_samples", defaultEmbeddingSamples)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	var seed int64
	if raw := r.URL.Query().Get("seed"); raw != "" {
		seed, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "seed must be an integer")
			return
		}
	}
	pts, err := s.lab.Embeddings(n, seed)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"embeddings": pts})
}

// handleSlice handles GET /api/visualization/slice/{index}?total_slices=128
func (s *HTTPServer) handleSlice(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodGet) {
		return
	}
	parts := splitPath(r.URL.Path, "/api/visualization/slice/")
	if len(parts) != 1 {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}
	index, err := strconv.Atoi(parts[0])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "slice index must be an integer")
		return
	}
	total, err := queryInt(r, "total_slices", defaultTotalSlices)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	sample, err := s.lab.Slice(index, total)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sample)
}

// handleDashboardStats handles GET /api/dashboard/stats
func (s *HTTPServer) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodGet) {
		return
	}
	stats, err := s.lab.DashboardStats(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// handleSeed handles POST /api/seed
func (s *HTTPServer) handleSeed(w http.ResponseWriter, r *http.Request) {
	if !s.allow(w, r, http.MethodPost) {
		return
	}
	sum, err := s.lab.Seed(r.Context())
	if err != nil {
		s.writeErr(w, err)
		return
	}
	logger.Info("demo data seeded", "experiments", sum.Experiments, "evaluations", sum.Evaluations)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"message": "demo data seeded",
		"created": sum,
	})
}
