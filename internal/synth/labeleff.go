package synth

import (
	"math"

	"github.com/GoSim-25-26J-441/medvision-sim/pkg/models"
	"github.com/GoSim-25-26J-441/medvision-sim/pkg/utils"
)

// LabelEfficiency evaluates the SSL and supervised dice curves at every checkpoint.
// The SSL series starts at least as high and saturates at least as fast as the
// supervised one, so it dominates at every checkpoint and the gap shrinks as labels grow.
func (g *Generator) LabelEfficiency() []models.LabelEfficiencyPoint {
	le := g.cat.LabelEfficiency
	out := make([]models.LabelEfficiencyPoint, 0, len(g.cat.Checkpoints))
	for _, p := range g.cat.Checkpoints {
		ssl := g.segmentation(saturate(p, le.Ceiling, le.SSLStart, le.SSLTau))
		sup := g.segmentation(saturate(p, le.Ceiling, le.SupervisedStart, le.SupervisedTau))
		out = append(out, models.LabelEfficiencyPoint{
			LabelPercent:   p,
			SSLDice:        ssl.DiceScore,
			SupervisedDice: sup.DiceScore,
			SSL:            ssl.Segmentation(),
			Supervised:     sup.Segmentation(),
		})
	}
	return out
}

// sslDiceAt is the SSL curve's dice with labelPercent of the data labeled.
func (g *Generator) sslDiceAt(labelPercent float64) float64 {
	le := g.cat.LabelEfficiency
	return saturate(utils.ClampFloat64(labelPercent, 0, 100), le.Ceiling, le.SSLStart, le.SSLTau)
}

func saturate(p, ceiling, start, tau float64) float64 {
	return ceiling - (ceiling-start)*math.Exp(-p/tau)
}
