package labd

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoSim-25-26J-441/medvision-sim/pkg/models"
)

type sseEvent struct {
	name string
	data map[string]any
}

func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var (
		events []sseEvent
		name   string
	)
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			var data map[string]any
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &data))
			events = append(events, sseEvent{name: name, data: data})
		}
	}
	require.NoError(t, sc.Err())
	return events
}

func TestMetricsStreamCompletedExperiment(t *testing.T) {
	ts := newTestServer(t)
	exp := ts.createExperiment(t, models.MethodContrastive, 4)
	_, err := ts.lab.Start(context.Background(), exp.ID)
	require.NoError(t, err)

	rr := ts.do(t, http.MethodGet, "/api/experiments/"+exp.ID+"/metrics/stream", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))

	events := parseSSE(t, rr.Body.String())
	require.Len(t, events, 6)
	assert.Equal(t, "status_change", events[0].name)
	assert.Equal(t, "completed", events[0].data["status"])
	for i := 1; i <= 4; i++ {
		assert.Equal(t, "epoch", events[i].name)
		assert.Equal(t, float64(i), events[i].data["epoch"])
		assert.Equal(t, float64(4), events[i].data["num_epochs"])
	}
	assert.Equal(t, "complete", events[5].name)
	assert.NotNil(t, events[5].data["best_loss"])
}

func TestMetricsStreamFollowsSteps(t *testing.T) {
	ts := newTestServer(t)
	exp := ts.createExperiment(t, models.MethodMAE, 3)
	ctx := context.Background()
	_, err := ts.lab.Begin(ctx, exp.ID)
	require.NoError(t, err)

	srv := httptest.NewServer(ts.srv.Handler())
	t.Cleanup(srv.Close)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/experiments/"+exp.ID+"/metrics/stream?interval_ms=10", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	go func() {
		for i := 0; i < 3; i++ {
			time.Sleep(20 * time.Millisecond)
			if _, err := ts.lab.Step(ctx, exp.ID); err != nil {
				return
			}
		}
	}()

	var names []string
	var epochs []float64
	sc := bufio.NewScanner(resp.Body)
	var current string
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "event: ") {
			current = strings.TrimPrefix(line, "event: ")
			names = append(names, current)
			continue
		}
		if current == "epoch" && strings.HasPrefix(line, "data: ") {
			var data map[string]any
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &data))
			epochs = append(epochs, data["epoch"].(float64))
		}
	}

	assert.Equal(t, []float64{1, 2, 3}, epochs)
	require.NotEmpty(t, names)
	assert.Equal(t, "status_change", names[0])
	assert.Equal(t, "complete", names[len(names)-1])
}

func TestMetricsStreamErrors(t *testing.T) {
	ts := newTestServer(t)
	rr := ts.do(t, http.MethodGet, "/api/experiments/missing/metrics/stream", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	exp := ts.createExperiment(t, models.MethodMAE, 3)
	rr = ts.do(t, http.MethodGet, "/api/experiments/"+exp.ID+"/metrics/stream?interval_ms=0", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
