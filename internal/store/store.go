// Package store persists datasets, model configs, experiments, evaluations and fine-tunes.
//
// Two backends implement Store: MemoryStore for demos and tests, and SQLiteStore for
// a daemon that survives restarts. Both return deep copies, so callers never alias
// stored state, and both enforce the experiment history invariants on append.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/GoSim-25-26J-441/medvision-sim/pkg/config"
	"github.com/GoSim-25-26J-441/medvision-sim/pkg/models"
	"github.com/GoSim-25-26J-441/medvision-sim/pkg/utils"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrStatusConflict = errors.New("status conflict")
)

// Counts summarizes stored entities for the dashboard.
type Counts struct {
	Datasets    int
	Models      int
	Experiments int
	Completed   int
	Running     int
	Evaluations int
}

// Store is the persistence collaborator of the lab.
type Store interface {
	CreateDataset(ctx context.Context, d *models.Dataset) error
	GetDataset(ctx context.Context, id string) (*models.Dataset, error)
	ListDatasets(ctx context.Context) ([]*models.Dataset, error)
	DeleteDataset(ctx context.Context, id string) error

	CreateModel(ctx context.Context, m *models.ModelConfig) error
	GetModel(ctx context.Context, id string) (*models.ModelConfig, error)
	ListModels(ctx context.Context) ([]*models.ModelConfig, error)
	DeleteModel(ctx context.Context, id string) error

	CreateExperiment(ctx context.Context, e *models.Experiment) error
	GetExperiment(ctx context.Context, id string) (*models.Experiment, error)
	ListExperiments(ctx context.Context) ([]*models.Experiment, error)
	// DeleteExperiment removes the experiment, its history, its evaluation and its
	// fine-tunes.
	DeleteExperiment(ctx context.Context, id string) error

	// AppendMetrics appends rec to a running experiment. rec.Epoch must be
	// current_epoch+1 and must not exceed num_epochs.
	AppendMetrics(ctx context.Context, id string, rec models.MetricsRecord) (*models.Experiment, error)
	// TransitionStatus moves the experiment to "to" only if its current status is one
	// of "from" (compare-and-set). errMsg is recorded when non-empty.
	TransitionStatus(ctx context.Context, id string, from []models.ExperimentStatus, to models.ExperimentStatus, errMsg string) (*models.Experiment, error)

	// CreateEvaluation stores the single evaluation of an experiment.
	CreateEvaluation(ctx context.Context, ev *models.EvaluationResult) error
	GetEvaluation(ctx context.Context, experimentID string) (*models.EvaluationResult, error)
	ListEvaluations(ctx context.Context) ([]*models.EvaluationResult, error)

	// CreateFinetune stores a fine-tune config of an existing experiment.
	CreateFinetune(ctx context.Context, f *models.FinetuneConfig) error
	GetFinetune(ctx context.Context, id string) (*models.FinetuneConfig, error)
	ListFinetunes(ctx context.Context) ([]*models.FinetuneConfig, error)
	// CompleteFinetune records the outcome of a pending fine-tune and marks it completed.
	// A fine-tune that is not pending yields ErrStatusConflict.
	CompleteFinetune(ctx context.Context, id string, labelPercent float64, ev *models.EvaluationResult) (*models.FinetuneConfig, error)

	Counts(ctx context.Context) (Counts, error)
	// Reset removes every stored entity.
	Reset(ctx context.Context) error
	Close() error
}

// Open returns the backend selected by cfg.
func Open(cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case config.DriverMemory, "":
		return NewMemoryStore(), nil
	case config.DriverSQLite:
		return NewSQLiteStore(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Driver)
	}
}

func now() time.Time {
	return time.Now().UTC()
}

// assignIdentity fills an empty id and zero timestamp before insertion.
func assignIdentity(id *string, created *time.Time) {
	if *id == "" {
		*id = utils.GenerateID()
	}
	if created.IsZero() {
		*created = now()
	}
}

func checkTransition(id string, current models.ExperimentStatus, from []models.ExperimentStatus, to models.ExperimentStatus) error {
	if !slices.Contains(from, current) {
		return fmt.Errorf("%w: experiment %s is %s, cannot move to %s", ErrStatusConflict, id, current, to)
	}
	return nil
}

// applyTransition updates status-derived fields the same way in every backend.
func applyTransition(e *models.Experiment, to models.ExperimentStatus, errMsg string) {
	e.Status = to
	if errMsg != "" {
		e.Error = errMsg
	}
	switch {
	case to == models.StatusRunning && e.StartedAt == nil:
		t := now()
		e.StartedAt = &t
	case to.Terminal():
		t := now()
		e.EndedAt = &t
	}
}

// applyFinetuneCompletion fills the completion fields of a pending fine-tune.
func applyFinetuneCompletion(f *models.FinetuneConfig, labelPercent float64, ev *models.EvaluationResult) error {
	if f.Status != models.StatusPending {
		return fmt.Errorf("%w: fine-tune %s is %s, cannot move to %s", ErrStatusConflict, f.ID, f.Status, models.StatusCompleted)
	}
	t := now()
	res := *ev
	res.FinetuneID = f.ID
	assignIdentity(&res.ID, &res.EvaluatedAt)
	f.Status = models.StatusCompleted
	f.CurrentEpoch = f.NumEpochs
	f.LabelPercent = &labelPercent
	f.Evaluation = &res
	f.CompletedAt = &t
	return nil
}

// before orders entities by creation time, then id.
func before(ta time.Time, ida string, tb time.Time, idb string) bool {
	if !ta.Equal(tb) {
		return ta.Before(tb)
	}
	return ida < idb
}
