package labd

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/GoSim-25-26J-441/medvision-sim/pkg/logger"
	"github.com/GoSim-25-26J-441/medvision-sim/pkg/models"
)

const (
	defaultStreamInterval = 500 * time.Millisecond
	minStreamInterval     = 10 * time.Millisecond
)

// handleMetricsStream handles GET /api/experiments/{id}/metrics/stream.
// Events: status_change when the status differs from the last one sent, epoch for every
// metrics record not sent yet, and complete once the experiment is completed or failed.
func (s *HTTPServer) handleMetricsStream(w http.ResponseWriter, r *http.Request, id string) {
	exp, err := s.lab.GetExperiment(r.Context(), id)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	interval := defaultStreamInterval
	if raw := r.URL.Query().Get("interval_ms"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms <= 0 {
			s.writeError(w, http.StatusBadRequest, "interval_ms must be a positive integer")
			return
		}
		interval = max(time.Duration(ms)*time.Millisecond, minStreamInterval)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	var (
		lastStatus models.ExperimentStatus
		lastEpoch  int
	)
	// emit sends everything new about exp and reports whether the stream is done.
	emit := func(exp *models.Experiment) bool {
		if exp.Status != lastStatus {
			s.sendSSEEvent(w, "status_change", map[string]any{
				"status":        exp.Status,
				"current_epoch": exp.CurrentEpoch,
			})
			lastStatus = exp.Status
		}
		for _, rec := range exp.MetricsHistory {
			if rec.Epoch <= lastEpoch {
				continue
			}
			s.sendSSEEvent(w, "epoch", map[string]any{
				"epoch":               rec.Epoch,
				"num_epochs":          exp.TrainingConfig.NumEpochs,
				"loss":                rec.Loss,
				"contrastive_loss":    rec.ContrastiveLoss,
				"reconstruction_loss": rec.ReconstructionLoss,
				"learning_rate":       rec.LearningRate,
			})
			lastEpoch = rec.Epoch
		}
		done := exp.Status.Terminal()
		if done {
			s.sendSSEEvent(w, "complete", map[string]any{
				"status":    exp.Status,
				"best_loss": exp.BestLoss,
				"error":     exp.Error,
			})
		}
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
		return done
	}

	if emit(exp) {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			exp, err := s.lab.GetExperiment(ctx, id)
			if err != nil {
				s.sendSSEEvent(w, "error", map[string]any{
					"error": err.Error(),
				})
				return
			}
			if emit(exp) {
				return
			}
		}
	}
}

// sendSSEEvent writes one Server-Sent Event. Write errors are logged only.
func (s *HTTPServer) sendSSEEvent(w http.ResponseWriter, eventType string, data map[string]any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		logger.Error("failed to marshal SSE event data", "error", err)
		return
	}
	if _, err := w.Write([]byte("event: " + eventType + "\n")); err != nil {
		logger.Error("failed to write SSE event header", "error", err)
		return
	}
	if _, err := w.Write([]byte("data: " + string(jsonData) + "\n\n")); err != nil {
		logger.Error("failed to write SSE event data", "error", err)
	}
}
