package lab

import (
	"context"
	"errors"
	"fmt"

	"github.com/GoSim-25-26J-441/medvision-sim/internal/metrics"
	"github.com/GoSim-25-26J-441/medvision-sim/internal/store"
	"github.com/GoSim-25-26J-441/medvision-sim/pkg/logger"
	"github.com/GoSim-25-26J-441/medvision-sim/pkg/models"
	"github.com/GoSim-25-26J-441/medvision-sim/pkg/utils"
)

// defaultLabelPercent stands in for a labeled dataset that is gone or empty.
const defaultLabelPercent = 10.0

// CreateFinetune validates f and stores it as a pending fine-tune. Its experiment and
// labeled dataset must exist.
func (l *Lab) CreateFinetune(ctx context.Context, f models.FinetuneConfig) (*models.FinetuneConfig, error) {
	if err := models.Validate(&f); err != nil {
		return nil, err
	}
	if _, err := l.store.GetExperiment(ctx, f.ExperimentID); err != nil {
		return nil, fmt.Errorf("fine-tune experiment: %w", err)
	}
	if _, err := l.store.GetDataset(ctx, f.LabeledDatasetID); err != nil {
		return nil, fmt.Errorf("fine-tune labeled dataset: %w", err)
	}

	f.ID = utils.GenerateID()
	f.Status = models.StatusPending
	f.CurrentEpoch = 0
	f.LabelPercent = nil
	f.Evaluation = nil
	f.CreatedAt = stamp()
	f.CompletedAt = nil
	if err := l.store.CreateFinetune(ctx, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (l *Lab) GetFinetune(ctx context.Context, id string) (*models.FinetuneConfig, error) {
	return l.store.GetFinetune(ctx, id)
}

func (l *Lab) ListFinetunes(ctx context.Context) ([]*models.FinetuneConfig, error) {
	return l.store.ListFinetunes(ctx)
}

// StartFinetune runs a pending fine-tune to completion in one step. The score depends
// on the labeled share of its dataset and on how far its experiment pretrained.
func (l *Lab) StartFinetune(ctx context.Context, id string) (*models.FinetuneConfig, error) {
	ft, err := l.store.GetFinetune(ctx, id)
	if err != nil {
		return nil, err
	}
	if ft.Status != models.StatusPending {
		l.rec.TransitionRejected("finetune")
		return nil, fmt.Errorf("%w: fine-tune %s is %s", ErrInvalidTransition, id, ft.Status)
	}
	exp, err := l.store.GetExperiment(ctx, ft.ExperimentID)
	if err != nil {
		return nil, fmt.Errorf("fine-tune experiment: %w", err)
	}

	pct := defaultLabelPercent
	ds, err := l.store.GetDataset(ctx, ft.LabeledDatasetID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		logger.Warn("labeled dataset missing, using default label share",
			"finetune_id", id, "dataset_id", ft.LabeledDatasetID, "label_percent", pct)
	case err != nil:
		return nil, err
	case ds.NumSamples > 0:
		pct = ds.LabelPercent()
	}

	ev := l.gen.Finetune(exp, ft, pct)
	l.rec.GeneratorRequest(metrics.KindFinetune, nil)
	ev.EvaluatedAt = stamp()

	done, err := l.store.CompleteFinetune(ctx, id, utils.Round(pct, 2), &ev)
	if errors.Is(err, store.ErrStatusConflict) {
		l.rec.TransitionRejected("finetune")
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("fine-tune completed", "finetune_id", id, "experiment_id", exp.ID,
		"label_percent", *done.LabelPercent, "dice", done.Evaluation.DiceScore)
	return done, nil
}
