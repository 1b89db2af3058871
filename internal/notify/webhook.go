// Package notify delivers experiment lifecycle notifications to an external backend.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/medvision-sim/pkg/config"
	"github.com/GoSim-25-26J-441/medvision-sim/pkg/logger"
	"github.com/GoSim-25-26J-441/medvision-sim/pkg/models"
	"github.com/GoSim-25-26J-441/medvision-sim/pkg/utils"
)

const (
	// SecretHeader carries the configured shared secret.
	SecretHeader = "X-MedVision-Webhook-Secret"

	defaultTimeout   = 10 * time.Second
	defaultBaseDelay = time.Second
	maxLoggedBody    = 200
)

// Payload is the JSON body posted when an experiment finishes.
type Payload struct {
	ExperimentID      string                   `json:"experiment_id"`
	Name              string                   `json:"name"`
	PretrainingMethod models.PretrainingMethod `json:"pretraining_method"`
	Status            models.ExperimentStatus  `json:"status"`
	CurrentEpoch      int                      `json:"current_epoch"`
	NumEpochs         int                      `json:"num_epochs"`
	BestLoss          *float64                 `json:"best_loss"`
	Error             string                   `json:"error,omitempty"`
	Evaluation        *models.EvaluationResult `json:"evaluation,omitempty"`
	StartedAt         *time.Time               `json:"started_at,omitempty"`
	EndedAt           *time.Time               `json:"ended_at,omitempty"`
	Timestamp         time.Time                `json:"timestamp"`
}

// Webhook posts a Payload to a callback URL whenever an experiment completes or fails.
// Deliveries run in the background and are retried with backoff on transport errors
// and non-2xx responses.
type Webhook struct {
	url        string
	secret     string
	maxRetries int
	backoff    utils.BackoffStrategy
	client     *http.Client

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWebhook builds a Webhook from validated configuration.
func NewWebhook(cfg config.NotifyConfig) *Webhook {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	baseMs := cfg.BaseDelayMs
	if baseMs == 0 {
		baseMs = int(defaultBaseDelay / time.Millisecond)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Webhook{
		url:        cfg.URL,
		secret:     cfg.Secret,
		maxRetries: cfg.MaxRetries,
		backoff:    utils.BackoffFromConfig(cfg.Backoff, baseMs, cfg.MaxDelayMs),
		client:     &http.Client{Timeout: timeout},
		ctx:        ctx,
		cancel:     cancel,
	}
}

// ExperimentFinished schedules a notification for exp. ev is nil for failed experiments.
// It returns immediately.
func (w *Webhook) ExperimentFinished(exp *models.Experiment, ev *models.EvaluationResult) {
	if w == nil || exp == nil {
		return
	}
	payload := Payload{
		ExperimentID:      exp.ID,
		Name:              exp.Name,
		PretrainingMethod: exp.PretrainingMethod,
		Status:            exp.Status,
		CurrentEpoch:      exp.CurrentEpoch,
		NumEpochs:         exp.TrainingConfig.NumEpochs,
		BestLoss:          exp.BestLoss,
		Error:             exp.Error,
		Evaluation:        ev,
		StartedAt:         exp.StartedAt,
		EndedAt:           exp.EndedAt,
		Timestamp:         time.Now().UTC(),
	}
	target := strings.ReplaceAll(w.url, "{experiment_id}", exp.ID)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.Deliver(w.ctx, target, payload); err != nil {
			logger.Error("experiment notification failed",
				"experiment_id", payload.ExperimentID,
				"callback_url", target,
				"max_retries", w.maxRetries,
				"error", err)
		}
	}()
}

// Deliver posts payload to target, retrying up to maxRetries times. It stops early when
// ctx is cancelled.
func (w *Webhook) Deliver(ctx context.Context, target string, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= w.maxRetries; attempt++ {
		if attempt > 0 {
			delay := w.backoff.NextDelay(attempt - 1)
			logger.Debug("retrying notification", "experiment_id", payload.ExperimentID, "attempt", attempt, "delay", delay)
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return fmt.Errorf("notification cancelled after %d attempts: %w", attempt, lastErr)
			case <-t.C:
			}
		}

		lastErr = w.post(ctx, target, body)
		if lastErr == nil {
			logger.Info("notification sent", "experiment_id", payload.ExperimentID, "status", payload.Status)
			return nil
		}
		logger.Warn("notification attempt failed",
			"experiment_id", payload.ExperimentID,
			"attempt", attempt+1,
			"error", lastErr)
	}
	return lastErr
}

func (w *Webhook) post(ctx context.Context, target string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "medvision-sim/1.0")
	if w.secret != "" {
		req.Header.Set(SecretHeader, w.secret)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxLoggedBody))
	return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, snippet)
}

// Close cancels pending retries and waits for in-flight deliveries.
func (w *Webhook) Close() {
	if w == nil {
		return
	}
	w.cancel()
	w.wg.Wait()
}
