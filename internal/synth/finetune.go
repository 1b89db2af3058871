package synth

import (
	"math"

	"github.com/GoSim-25-26J-441/medvision-sim/pkg/models"
	"github.com/GoSim-25-26J-441/medvision-sim/pkg/utils"
)

const (
	// untrainedEncoderFactor scales fine-tune dice when the encoder has no pretraining loss.
	untrainedEncoderFactor = 0.9
	frozenEncoderPenalty   = 0.02
)

// Finetune scores a fine-tuning run of exp's encoder with labelPercent of the labeled
// dataset annotated. Dice follows the SSL label-efficiency curve at labelPercent, scaled
// by how well the encoder pretrained (exp's best loss) and lowered when the encoder is
// frozen. Label efficiency is dice per labeled fraction; it is 0 without labels.
// ID, FinetuneID and EvaluatedAt are left for the caller.
func (g *Generator) Finetune(exp *models.Experiment, ft *models.FinetuneConfig, labelPercent float64) models.EvaluationResult {
	ev := g.cat.Evaluation
	q := 0.0
	if exp.BestLoss != nil {
		q = math.Exp(-math.Max(*exp.BestLoss, 0) / ev.LossScale)
	}
	dice := g.sslDiceAt(labelPercent)*(untrainedEncoderFactor+(1-untrainedEncoderFactor)*q) + ev.MethodBonus[exp.PretrainingMethod]
	if ft.FreezeEncoder {
		dice -= frozenEncoderPenalty
	}

	res := g.segmentation(dice)
	res.ExperimentID = exp.ID
	if labelPercent > 0 {
		res.LabelEfficiency = utils.Round(res.DiceScore/(math.Min(labelPercent, 100)/100), 4)
	}
	return res
}
