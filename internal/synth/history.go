package synth

import (
	"errors"
	"fmt"

	"github.com/GoSim-25-26J-441/medvision-sim/pkg/models"
)

// Record generates the metrics record of exp at a 1-based epoch. The result depends only
// on the experiment identity, its method and training config, and the epoch, so
// regenerating an already written epoch reproduces it exactly.
func (g *Generator) Record(exp *models.Experiment, epoch int) (models.MetricsRecord, error) {
	p, c, r, err := g.terms(exp.PretrainingMethod, epoch, exp.TrainingConfig)
	if err != nil {
		return models.MetricsRecord{}, err
	}

	contrastive := Jitter(c.value, c.floor, g.cat.NoiseFraction, epochSeed(exp.ID, epoch, streamContrastive))
	reconstruction := Jitter(r.value, r.floor, g.cat.NoiseFraction, epochSeed(exp.ID, epoch, streamReconstruction))

	return models.MetricsRecord{
		Epoch:              epoch,
		Loss:               p.ContrastiveWeight*contrastive + p.ReconstructionWeight*reconstruction,
		ContrastiveLoss:    contrastive,
		ReconstructionLoss: reconstruction,
		LearningRate:       LearningRate(epoch, exp.TrainingConfig),
	}, nil
}

// Next generates the record for the first epoch exp has not reached yet, without
// modifying exp. It returns ErrExperimentComplete once current_epoch == num_epochs.
func (g *Generator) Next(exp *models.Experiment) (models.MetricsRecord, error) {
	if exp.CurrentEpoch >= exp.TrainingConfig.NumEpochs {
		return models.MetricsRecord{}, fmt.Errorf("%w: %s at epoch %d", ErrExperimentComplete, exp.ID, exp.CurrentEpoch)
	}
	return g.Record(exp, exp.CurrentEpoch+1)
}

// Extend appends exactly one new record to exp's history and advances its epoch.
func (g *Generator) Extend(exp *models.Experiment) (models.MetricsRecord, error) {
	rec, err := g.Next(exp)
	if err != nil {
		return models.MetricsRecord{}, err
	}
	if err := exp.Append(rec); err != nil {
		return models.MetricsRecord{}, err
	}
	return rec, nil
}

// BuildFull extends exp until current_epoch == num_epochs and returns the appended records.
// It does not change exp.Status; completing the experiment is the orchestrator's job.
func (g *Generator) BuildFull(exp *models.Experiment) ([]models.MetricsRecord, error) {
	out := make([]models.MetricsRecord, 0, exp.Remaining())
	for {
		rec, err := g.Extend(exp)
		if errors.Is(err, ErrExperimentComplete) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}
