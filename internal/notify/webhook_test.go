package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoSim-25-26J-441/medvision-sim/pkg/config"
	"github.com/GoSim-25-26J-441/medvision-sim/pkg/models"
)

func completedExperiment() *models.Experiment {
	best := 0.42
	return &models.Experiment{
		ID:                "exp-1",
		Name:              "contrastive baseline",
		PretrainingMethod: models.MethodContrastive,
		TrainingConfig:    models.TrainingConfig{NumEpochs: 10},
		Status:            models.StatusCompleted,
		CurrentEpoch:      10,
		BestLoss:          &best,
	}
}

func TestWebhookDeliversPayload(t *testing.T) {
	received := make(chan Payload, 1)
	var gotPath, gotSecret string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotSecret = r.Header.Get(SecretHeader)
		var p Payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		received <- p
	}))
	defer srv.Close()

	wh := NewWebhook(config.NotifyConfig{URL: srv.URL + "/hooks/{experiment_id}", Secret: "s3cret"})
	defer wh.Close()

	ev := &models.EvaluationResult{ExperimentID: "exp-1", DiceScore: 0.81}
	wh.ExperimentFinished(completedExperiment(), ev)

	select {
	case p := <-received:
		assert.Equal(t, "exp-1", p.ExperimentID)
		assert.Equal(t, models.StatusCompleted, p.Status)
		assert.Equal(t, 10, p.NumEpochs)
		require.NotNil(t, p.BestLoss)
		assert.InDelta(t, 0.42, *p.BestLoss, 1e-12)
		require.NotNil(t, p.Evaluation)
		assert.InDelta(t, 0.81, p.Evaluation.DiceScore, 1e-12)
	case <-time.After(5 * time.Second):
		t.Fatal("notification not received")
	}
	wh.Close()
	assert.Equal(t, "/hooks/exp-1", gotPath)
	assert.Equal(t, "s3cret", gotSecret)
}

func TestWebhookRetriesUntilSuccess(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := NewWebhook(config.NotifyConfig{URL: srv.URL, MaxRetries: 3, Backoff: "constant", BaseDelayMs: 1})
	defer wh.Close()

	err := wh.Deliver(context.Background(), srv.URL, Payload{ExperimentID: "exp-1"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestWebhookGivesUp(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	wh := NewWebhook(config.NotifyConfig{URL: srv.URL, MaxRetries: 2, Backoff: "constant", BaseDelayMs: 1})
	defer wh.Close()

	err := wh.Deliver(context.Background(), srv.URL, Payload{ExperimentID: "exp-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Equal(t, int32(3), attempts.Load())
}

func TestWebhookCancelledRetry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	wh := NewWebhook(config.NotifyConfig{URL: srv.URL, MaxRetries: 5, Backoff: "constant", BaseDelayMs: 60_000})
	defer wh.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- wh.Deliver(ctx, srv.URL, Payload{ExperimentID: "exp-1"}) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorContains(t, err, "cancelled")
	case <-time.After(5 * time.Second):
		t.Fatal("Deliver did not stop after cancel")
	}
}

func TestNilWebhookIsNoop(t *testing.T) {
	var wh *Webhook
	wh.ExperimentFinished(completedExperiment(), nil)
	wh.Close()
}
