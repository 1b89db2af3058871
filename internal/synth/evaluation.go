package synth

import (
	"fmt"
	"math"

	"github.com/GoSim-25-26J-441/medvision-sim/pkg/models"
	"github.com/GoSim-25-26J-441/medvision-sim/pkg/utils"
)

// nearFloorFraction defines "near floor": within this share of the total loss drop above best.
const nearFloorFraction = 0.1

// Derive computes the evaluation bundle of a completed experiment. It is deterministic:
// the result depends only on the history, best loss, method and num_epochs.
// ID and EvaluatedAt are left for the caller to assign.
func (g *Generator) Derive(exp *models.Experiment) (models.EvaluationResult, error) {
	if exp.Status != models.StatusCompleted {
		return models.EvaluationResult{}, fmt.Errorf("%w: %s is %s", ErrNotCompleted, exp.ID, exp.Status)
	}
	if exp.BestLoss == nil || len(exp.MetricsHistory) == 0 {
		return models.EvaluationResult{}, fmt.Errorf("%w: %s has no metrics history", ErrNotCompleted, exp.ID)
	}

	res := g.Score(exp.PretrainingMethod, *exp.BestLoss, ReachEpoch(exp.MetricsHistory), exp.TrainingConfig.NumEpochs)
	res.ExperimentID = exp.ID
	return res, nil
}

// Score maps a best loss onto segmentation metrics. Lower loss gives weakly higher
// dice, precision, recall and IoU and a lower Hausdorff distance. reachEpoch is the
// epoch at which the loss got near its floor; earlier means higher label efficiency.
func (g *Generator) Score(method models.PretrainingMethod, bestLoss float64, reachEpoch, numEpochs int) models.EvaluationResult {
	ev := g.cat.Evaluation
	q := math.Exp(-math.Max(bestLoss, 0) / ev.LossScale)

	dice := ev.DiceFloor + (ev.DiceCeiling-ev.DiceFloor)*q + ev.MethodBonus[method]

	efficiency := 1.0
	if numEpochs > 0 {
		speed := 1 - utils.ClampFloat64(float64(reachEpoch)/float64(numEpochs), 0, 1)
		efficiency = 1 + (ev.MaxLabelEfficiency-1)*speed
	}

	res := g.segmentation(dice)
	res.LabelEfficiency = utils.Round(efficiency, 2)
	return res
}

// segmentation expands a dice score into the rest of the metric bundle. Every metric is
// monotone in dice: IoU uses the exact Dice/Jaccard identity and the Hausdorff distance
// shrinks linearly across the catalogue's dice span.
func (g *Generator) segmentation(dice float64) models.EvaluationResult {
	ev := g.cat.Evaluation
	dice = utils.ClampFloat64(dice, 0, 1)
	q := utils.ClampFloat64((dice-ev.DiceFloor)/(ev.DiceCeiling-ev.DiceFloor), 0, 1)
	return models.EvaluationResult{
		DiceScore:         utils.Round(dice, 4),
		HausdorffDistance: utils.Round(ev.HausdorffMin+ev.HausdorffSpan*(1-q), 2),
		Precision:         utils.Round(utils.ClampFloat64(dice+ev.PrecisionOffset, 0, 1), 4),
		Recall:            utils.Round(utils.ClampFloat64(dice+ev.RecallOffset, 0, 1), 4),
		IoU:               utils.Round(dice/(2-dice), 4),
	}
}

// ReachEpoch returns the first epoch whose loss is within nearFloorFraction of the total
// drop from the first record to the best one. An empty history reaches at epoch 0.
func ReachEpoch(history []models.MetricsRecord) int {
	if len(history) == 0 {
		return 0
	}
	best := history[0].Loss
	for _, r := range history {
		best = math.Min(best, r.Loss)
	}
	threshold := best + nearFloorFraction*(history[0].Loss-best)
	for _, r := range history {
		if r.Loss <= threshold {
			return r.Epoch
		}
	}
	return history[len(history)-1].Epoch
}
