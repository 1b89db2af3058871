package lab

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/GoSim-25-26J-441/medvision-sim/internal/store"
	"github.com/GoSim-25-26J-441/medvision-sim/pkg/models"
	"github.com/GoSim-25-26J-441/medvision-sim/pkg/utils"
)

func stamp() time.Time {
	return time.Now().UTC()
}

// CreateDataset validates d, assigns its identity and stores it.
func (l *Lab) CreateDataset(ctx context.Context, d models.Dataset) (*models.Dataset, error) {
	if d.Resolution == "" {
		d.Resolution = models.DefaultDataset().Resolution
	}
	if err := models.Validate(&d); err != nil {
		return nil, err
	}
	d.ID = utils.GenerateID()
	d.CreatedAt = stamp()
	if err := l.store.CreateDataset(ctx, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (l *Lab) GetDataset(ctx context.Context, id string) (*models.Dataset, error) {
	return l.store.GetDataset(ctx, id)
}

func (l *Lab) ListDatasets(ctx context.Context) ([]*models.Dataset, error) {
	return l.store.ListDatasets(ctx)
}

func (l *Lab) DeleteDataset(ctx context.Context, id string) error {
	return l.store.DeleteDataset(ctx, id)
}

// CreateModel validates m, derives its parameter count when absent and stores it.
func (l *Lab) CreateModel(ctx context.Context, m models.ModelConfig) (*models.ModelConfig, error) {
	if err := models.Validate(&m); err != nil {
		return nil, err
	}
	m.EstimateParameters()
	m.ID = utils.GenerateID()
	m.CreatedAt = stamp()
	if err := l.store.CreateModel(ctx, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (l *Lab) GetModel(ctx context.Context, id string) (*models.ModelConfig, error) {
	return l.store.GetModel(ctx, id)
}

func (l *Lab) ListModels(ctx context.Context) ([]*models.ModelConfig, error) {
	return l.store.ListModels(ctx)
}

func (l *Lab) DeleteModel(ctx context.Context, id string) error {
	return l.store.DeleteModel(ctx, id)
}

// CreateExperiment validates e and stores it as a pending experiment with an empty
// history. Its dataset and model config must exist.
func (l *Lab) CreateExperiment(ctx context.Context, e models.Experiment) (*models.Experiment, error) {
	if err := models.Validate(&e); err != nil {
		return nil, err
	}
	if _, err := l.store.GetDataset(ctx, e.DatasetID); err != nil {
		return nil, fmt.Errorf("experiment dataset: %w", err)
	}
	if _, err := l.store.GetModel(ctx, e.ModelConfigID); err != nil {
		return nil, fmt.Errorf("experiment model config: %w", err)
	}

	e.ID = utils.GenerateID()
	e.Status = models.StatusPending
	e.CurrentEpoch = 0
	e.BestLoss = nil
	e.MetricsHistory = nil
	e.Error = ""
	e.CreatedAt = stamp()
	e.StartedAt = nil
	e.EndedAt = nil
	if err := l.store.CreateExperiment(ctx, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (l *Lab) GetExperiment(ctx context.Context, id string) (*models.Experiment, error) {
	return l.store.GetExperiment(ctx, id)
}

func (l *Lab) ListExperiments(ctx context.Context) ([]*models.Experiment, error) {
	return l.store.ListExperiments(ctx)
}

// DeleteExperiment removes an experiment and its evaluation. An experiment that a run
// loop is currently driving cannot be deleted.
func (l *Lab) DeleteExperiment(ctx context.Context, id string) error {
	if l.busy(id) {
		l.rec.TransitionRejected("delete")
		return fmt.Errorf("%w: experiment %s is running", ErrInvalidTransition, id)
	}
	return l.store.DeleteExperiment(ctx, id)
}

// Metrics returns the training progress view of an experiment.
func (l *Lab) Metrics(ctx context.Context, id string) (*models.ExperimentMetrics, error) {
	e, err := l.store.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.ExperimentMetrics{
		ExperimentID:   e.ID,
		Status:         e.Status,
		CurrentEpoch:   e.CurrentEpoch,
		NumEpochs:      e.TrainingConfig.NumEpochs,
		BestLoss:       e.BestLoss,
		MetricsHistory: e.MetricsHistory,
	}, nil
}

// Evaluation returns the stored evaluation of an experiment.
func (l *Lab) Evaluation(ctx context.Context, experimentID string) (*models.EvaluationResult, error) {
	ev, err := l.store.GetEvaluation(ctx, experimentID)
	if errors.Is(err, store.ErrNotFound) {
		if _, expErr := l.store.GetExperiment(ctx, experimentID); expErr != nil {
			return nil, expErr
		}
	}
	return ev, err
}

func (l *Lab) ListEvaluations(ctx context.Context) ([]*models.EvaluationResult, error) {
	return l.store.ListEvaluations(ctx)
}
