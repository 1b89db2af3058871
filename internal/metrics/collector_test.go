package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderRunLifecycle(t *testing.T) {
	r := NewRecorder(nil)

	r.RunStarted("mae")
	assert.Equal(t, 1.0, testutil.ToFloat64(r.activeRuns))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.experimentsStarted.WithLabelValues("mae")))

	for i := 0; i < 10; i++ {
		r.EpochGenerated("mae")
	}
	assert.Equal(t, 10.0, testutil.ToFloat64(r.epochsGenerated.WithLabelValues("mae")))

	r.RunStopped("mae", "completed", 25*time.Millisecond)
	assert.Equal(t, 0.0, testutil.ToFloat64(r.activeRuns))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.experimentsFinished.WithLabelValues("mae", "completed")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.runDuration))
}

func TestRecorderGeneratorAndHTTP(t *testing.T) {
	r := NewRecorder(nil)
	r.GeneratorRequest(KindSlice, nil)
	r.GeneratorRequest(KindSlice, errors.New("out of range"))
	r.GeneratorRequest(KindSlice, nil)
	assert.Equal(t, 2.0, testutil.ToFloat64(r.generatorRequests.WithLabelValues(KindSlice, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.generatorRequests.WithLabelValues(KindSlice, "error")))

	r.HTTPRequest("/api/datasets", 201)
	r.HTTPRequest("/api/datasets", 404)
	r.HTTPRequest("/api/datasets", 503)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.httpRequests.WithLabelValues("/api/datasets", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.httpRequests.WithLabelValues("/api/datasets", "4xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.httpRequests.WithLabelValues("/api/datasets", "5xx")))

	r.TransitionRejected("start")
	assert.Equal(t, 1.0, testutil.ToFloat64(r.rejectedTransitions.WithLabelValues("start")))
}

func TestRecorderRegistersWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)
	r.TransitionRejected("pause")

	expected := `
# HELP medvision_lab_rejected_transitions_total Lifecycle operations rejected because of the experiment status
# TYPE medvision_lab_rejected_transitions_total counter
medvision_lab_rejected_transitions_total{operation="pause"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "medvision_lab_rejected_transitions_total"))
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.RunStarted("mae")
	r.RunStopped("mae", "completed", time.Second)
	r.EpochGenerated("mae")
	r.TransitionRejected("start")
	r.GeneratorRequest(KindEmbeddings, nil)
	r.HTTPRequest("/", 200)
}
