package lab

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoSim-25-26J-441/medvision-sim/internal/metrics"
	"github.com/GoSim-25-26J-441/medvision-sim/internal/store"
	"github.com/GoSim-25-26J-441/medvision-sim/internal/synth"
	"github.com/GoSim-25-26J-441/medvision-sim/pkg/models"
)

func newTestLab(t *testing.T, st store.Store, interval time.Duration) *Lab {
	t.Helper()
	if st == nil {
		st = store.NewMemoryStore()
	}
	l := New(st, synth.MustNew(synth.DefaultCatalogue()), Options{
		EpochInterval: interval,
		Recorder:      metrics.NewRecorder(nil),
	})
	t.Cleanup(l.Close)
	return l
}

func createExperiment(t *testing.T, l *Lab, method models.PretrainingMethod, epochs int) *models.Experiment {
	t.Helper()
	ctx := context.Background()
	ds, err := l.CreateDataset(ctx, models.Dataset{Name: "BTCV", Modality: models.ModalityCT, NumSamples: 800, NumLabeled: 80})
	require.NoError(t, err)
	mc, err := l.CreateModel(ctx, models.ModelConfig{Name: "unet", Architecture: models.ArchitectureUNet3D, EncoderDepth: 5, NumChannels: 1, FeatureDim: 512, ProjectionDim: 128})
	require.NoError(t, err)

	exp := models.DefaultExperiment()
	exp.Name = "test " + string(method)
	exp.DatasetID = ds.ID
	exp.ModelConfigID = mc.ID
	exp.PretrainingMethod = method
	exp.TrainingConfig.NumEpochs = epochs
	created, err := l.CreateExperiment(ctx, exp)
	require.NoError(t, err)
	return created
}

func TestStartRunsToCompletion(t *testing.T) {
	l := newTestLab(t, nil, 0)
	ctx := context.Background()
	exp := createExperiment(t, l, models.MethodMAE, 10)
	assert.Equal(t, models.StatusPending, exp.Status)

	done, err := l.Start(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)
	assert.Equal(t, 10, done.CurrentEpoch)
	require.Len(t, done.MetricsHistory, 10)
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.EndedAt)

	best := done.MetricsHistory[0].Loss
	for i, r := range done.MetricsHistory {
		assert.Equal(t, i+1, r.Epoch)
		best = min(best, r.Loss)
	}
	require.NotNil(t, done.BestLoss)
	assert.Equal(t, best, *done.BestLoss)

	ev, err := l.Evaluation(ctx, exp.ID)
	require.NoError(t, err)
	assert.Greater(t, ev.DiceScore, 0.0)
	assert.Less(t, ev.DiceScore, 1.0)
	assert.NotEmpty(t, ev.ID)

	m, err := l.Metrics(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, m.NumEpochs)
	assert.Equal(t, models.StatusCompleted, m.Status)
}

func TestStartRejectsNonPending(t *testing.T) {
	l := newTestLab(t, nil, 0)
	ctx := context.Background()
	exp := createExperiment(t, l, models.MethodContrastive, 5)
	_, err := l.Start(ctx, exp.ID)
	require.NoError(t, err)

	_, err = l.Start(ctx, exp.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = l.Resume(ctx, exp.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = l.Pause(ctx, exp.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = l.Start(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestConcurrentStartRejected(t *testing.T) {
	l := newTestLab(t, nil, time.Millisecond)
	exp := createExperiment(t, l, models.MethodCrossModality, 5)

	const callers = 6
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		rejected int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Start(context.Background(), exp.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrInvalidTransition):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, ok)
	assert.Equal(t, callers-1, rejected)

	got, err := l.GetExperiment(context.Background(), exp.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Len(t, got.MetricsHistory, 5)
}

func TestStartWhileBackgroundRunActive(t *testing.T) {
	l := newTestLab(t, nil, 5*time.Millisecond)
	ctx := context.Background()
	exp := createExperiment(t, l, models.MethodMAE, 40)

	running, err := l.StartAsync(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, running.Status)

	_, err = l.Start(ctx, exp.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = l.Step(ctx, exp.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorIs(t, l.DeleteExperiment(ctx, exp.ID), ErrInvalidTransition)
}

func TestPauseAndResume(t *testing.T) {
	l := newTestLab(t, nil, 2*time.Millisecond)
	ctx := context.Background()
	exp := createExperiment(t, l, models.MethodContrastive, 40)

	_, err := l.StartAsync(ctx, exp.ID)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		cur, err := l.GetExperiment(ctx, exp.ID)
		return err == nil && cur.CurrentEpoch >= 3
	}, 5*time.Second, time.Millisecond)

	paused, err := l.Pause(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaused, paused.Status)

	require.Eventually(t, func() bool { return !l.busy(exp.ID) }, 5*time.Second, time.Millisecond)
	stopped, err := l.GetExperiment(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaused, stopped.Status)
	assert.Less(t, stopped.CurrentEpoch, 40)

	_, err = l.Step(ctx, exp.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	done, err := l.Resume(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)
	require.Len(t, done.MetricsHistory, 40)
	for i, r := range done.MetricsHistory {
		assert.Equal(t, i+1, r.Epoch)
	}
}

func TestCloseInterruptsBackgroundRun(t *testing.T) {
	l := New(store.NewMemoryStore(), synth.MustNew(synth.DefaultCatalogue()), Options{EpochInterval: 20 * time.Millisecond})
	ctx := context.Background()
	exp := createExperiment(t, l, models.MethodMAE, 100)

	_, err := l.StartAsync(ctx, exp.ID)
	require.NoError(t, err)
	l.Close()

	got, err := l.GetExperiment(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPaused, got.Status)
	assert.Less(t, got.CurrentEpoch, 100)
	assert.Len(t, got.MetricsHistory, got.CurrentEpoch)
}

func TestStep(t *testing.T) {
	l := newTestLab(t, nil, 0)
	ctx := context.Background()
	exp := createExperiment(t, l, models.MethodMAE, 3)

	_, err := l.Step(ctx, exp.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition, "pending experiments cannot be stepped")

	_, err = l.Begin(ctx, exp.ID)
	require.NoError(t, err)

	for want := 1; want <= 2; want++ {
		got, err := l.Step(ctx, exp.ID)
		require.NoError(t, err)
		assert.Equal(t, want, got.CurrentEpoch)
		assert.Equal(t, models.StatusRunning, got.Status)
	}

	last, err := l.Step(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, last.Status)
	assert.Equal(t, 3, last.CurrentEpoch)

	_, err = l.Evaluation(ctx, exp.ID)
	require.NoError(t, err)

	_, err = l.Step(ctx, exp.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

// failingStore rejects appends past a given epoch.
type failingStore struct {
	store.Store
	failAt int
}

func (f *failingStore) AppendMetrics(ctx context.Context, id string, rec models.MetricsRecord) (*models.Experiment, error) {
	if rec.Epoch >= f.failAt {
		return nil, errors.New("disk full")
	}
	return f.Store.AppendMetrics(ctx, id, rec)
}

func TestStartMarksFailedOnStoreError(t *testing.T) {
	l := newTestLab(t, &failingStore{Store: store.NewMemoryStore(), failAt: 3}, 0)
	ctx := context.Background()
	exp := createExperiment(t, l, models.MethodContrastive, 10)

	got, err := l.Start(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, "disk full", got.Error)
	assert.Equal(t, 2, got.CurrentEpoch)

	_, err = l.Resume(ctx, exp.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCreateExperimentValidation(t *testing.T) {
	l := newTestLab(t, nil, 0)
	ctx := context.Background()
	base := createExperiment(t, l, models.MethodMAE, 5)

	exp := models.DefaultExperiment()
	exp.Name = "bad"
	exp.DatasetID = base.DatasetID
	exp.ModelConfigID = base.ModelConfigID
	exp.PretrainingMethod = "jigsaw"
	_, err := l.CreateExperiment(ctx, exp)
	assert.ErrorIs(t, err, models.ErrValidation)

	exp.PretrainingMethod = models.MethodMAE
	exp.DatasetID = "missing"
	_, err = l.CreateExperiment(ctx, exp)
	assert.ErrorIs(t, err, store.ErrNotFound)

	exp.DatasetID = base.DatasetID
	exp.ModelConfigID = "missing"
	_, err = l.CreateExperiment(ctx, exp)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = l.CreateDataset(ctx, models.Dataset{Name: "x", Modality: models.ModalityCT, NumSamples: 1, NumLabeled: 5})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestCreateModelEstimatesParameters(t *testing.T) {
	l := newTestLab(t, nil, 0)
	m := models.DefaultModelConfig()
	m.Name = "vit"
	m.Architecture = models.ArchitectureViT
	created, err := l.CreateModel(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, int64(86_000_000), created.ParametersCount)
}

func TestDeleteExperimentRemovesEvaluation(t *testing.T) {
	l := newTestLab(t, nil, 0)
	ctx := context.Background()
	exp := createExperiment(t, l, models.MethodMAE, 4)
	_, err := l.Start(ctx, exp.ID)
	require.NoError(t, err)

	require.NoError(t, l.DeleteExperiment(ctx, exp.ID))
	_, err = l.Evaluation(ctx, exp.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	evals, err := l.ListEvaluations(ctx)
	require.NoError(t, err)
	assert.Empty(t, evals)
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []models.ExperimentStatus
	evals int
}

func (n *recordingNotifier) ExperimentFinished(exp *models.Experiment, ev *models.EvaluationResult) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, exp.Status)
	if ev != nil {
		n.evals++
	}
}

func TestNotifierCalledOnFinish(t *testing.T) {
	n := &recordingNotifier{}
	st := &failingStore{Store: store.NewMemoryStore(), failAt: 4}
	l := New(st, synth.MustNew(synth.DefaultCatalogue()), Options{Notifier: n})
	t.Cleanup(l.Close)
	ctx := context.Background()

	ok := createExperiment(t, l, models.MethodMAE, 3)
	_, err := l.Start(ctx, ok.ID)
	require.NoError(t, err)

	bad := createExperiment(t, l, models.MethodMAE, 10)
	_, err = l.Start(ctx, bad.ID)
	require.NoError(t, err)

	n.mu.Lock()
	defer n.mu.Unlock()
	assert.Equal(t, []models.ExperimentStatus{models.StatusCompleted, models.StatusFailed}, n.calls)
	assert.Equal(t, 1, n.evals)
}
