package lab

import (
	"context"
	"errors"
	"sort"

	"github.com/GoSim-25-26J-441/medvision-sim/internal/metrics"
	"github.com/GoSim-25-26J-441/medvision-sim/internal/store"
	"github.com/GoSim-25-26J-441/medvision-sim/pkg/models"
	"github.com/GoSim-25-26J-441/medvision-sim/pkg/utils"
)

// CompareEvaluations returns the SSL vs supervised label-efficiency curve together with
// stored evaluations, best dice first.
func (l *Lab) CompareEvaluations(ctx context.Context) (*models.EvaluationComparison, error) {
	evals, err := l.store.ListEvaluations(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(evals, func(i, j int) bool { return evals[i].DiceScore > evals[j].DiceScore })
	curve := l.gen.LabelEfficiency()
	l.rec.GeneratorRequest(metrics.KindLabelEfficiency, nil)
	return &models.EvaluationComparison{
		LabelEfficiency: curve,
		Evaluations:     evals,
	}, nil
}

// Embeddings returns n embedding points. A zero seed draws fresh points on every call.
func (l *Lab) Embeddings(n int, seed int64) ([]models.EmbeddingPoint, error) {
	pts, err := l.gen.Embeddings(n, utils.NewRandSource(seed))
	l.rec.GeneratorRequest(metrics.KindEmbeddings, err)
	return pts, err
}

// Slice returns the statistics of one slice of a simulated volume.
func (l *Lab) Slice(index, total int) (*models.SliceSample, error) {
	s, err := l.gen.Slice(index, total)
	l.rec.GeneratorRequest(metrics.KindSlice, err)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// DashboardStats aggregates entity counts, the mean dice over all evaluations and the
// name of the experiment with the best dice.
func (l *Lab) DashboardStats(ctx context.Context) (*models.DashboardStats, error) {
	c, err := l.store.Counts(ctx)
	if err != nil {
		return nil, err
	}
	stats := &models.DashboardStats{
		TotalDatasets:        c.Datasets,
		TotalModels:          c.Models,
		TotalExperiments:     c.Experiments,
		CompletedExperiments: c.Completed,
		RunningExperiments:   c.Running,
	}

	evals, err := l.store.ListEvaluations(ctx)
	if err != nil {
		return nil, err
	}
	if len(evals) == 0 {
		return stats, nil
	}

	dice := make([]float64, len(evals))
	best := evals[0]
	for i, ev := range evals {
		dice[i] = ev.DiceScore
		if ev.DiceScore > best.DiceScore {
			best = ev
		}
	}
	avg := utils.Round(utils.Mean(dice), 4)
	stats.AvgDiceScore = &avg

	exp, err := l.store.GetExperiment(ctx, best.ExperimentID)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return nil, err
	default:
		name := exp.Name
		stats.BestModelName = &name
	}
	return stats, nil
}
