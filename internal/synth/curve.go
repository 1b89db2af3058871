package synth

import (
	"fmt"
	"math"

	"github.com/GoSim-25-26J-441/medvision-sim/pkg/models"
	"github.com/GoSim-25-26J-441/medvision-sim/pkg/utils"
)

const (
	referenceLearningRate = 1e-4
	referenceTemperature  = 0.07
	referenceBatchSize    = 4

	minRateScale = 0.5
	maxRateScale = 2.0

	// Warmup never slows progress below half an effective epoch per epoch.
	minWarmupSpeed = 0.5
)

// Losses is the noise-free output of the curve model at one epoch.
type Losses struct {
	Loss           float64
	Contrastive    float64
	Reconstruction float64
}

// term is one evaluated loss component together with the floor it decays toward.
type term struct {
	value float64
	floor float64
}

// Curve evaluates the noise-free loss components of method at a 1-based epoch.
func (g *Generator) Curve(method models.PretrainingMethod, epoch int, cfg models.TrainingConfig) (Losses, error) {
	p, c, r, err := g.terms(method, epoch, cfg)
	if err != nil {
		return Losses{}, err
	}
	return Losses{
		Loss:           p.ContrastiveWeight*c.value + p.ReconstructionWeight*r.value,
		Contrastive:    c.value,
		Reconstruction: r.value,
	}, nil
}

func (g *Generator) terms(method models.PretrainingMethod, epoch int, cfg models.TrainingConfig) (CurveProfile, term, term, error) {
	if epoch < 1 {
		return CurveProfile{}, term{}, term{}, fmt.Errorf("%w: got %d", ErrInvalidEpoch, epoch)
	}
	p, ok := g.cat.Curves[method]
	if !ok {
		return CurveProfile{}, term{}, term{}, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}

	t := EffectiveEpoch(epoch, cfg.WarmupEpochs)
	scale := rateScale(cfg.LearningRate)

	c := decay(p.Contrastive, t, scale, contrastiveFloorScale(cfg))
	r := decay(p.Reconstruction, t, scale, 1)
	return p, c, r, nil
}

func decay(comp Component, t, rateScale, floorScale float64) term {
	floor := comp.Floor * floorScale
	return term{
		value: comp.Amplitude*math.Exp(-comp.DecayRate*rateScale*t) + floor,
		floor: floor,
	}
}

// EffectiveEpoch maps a 1-based epoch onto curve time. During warmup progress ramps
// linearly from minWarmupSpeed to full speed; afterwards it advances one unit per epoch.
// The mapping is continuous, strictly increasing and differentiable at the warmup boundary.
func EffectiveEpoch(epoch, warmup int) float64 {
	e := float64(epoch)
	if warmup <= 0 {
		return e
	}
	w := float64(warmup)
	if e <= w {
		return minWarmupSpeed*e + (1-minWarmupSpeed)*e*e/(2*w)
	}
	return e - (1-minWarmupSpeed)*w/2
}

// rateScale speeds up decay for larger learning rates (fourth-root response, clamped).
func rateScale(lr float64) float64 {
	if lr <= 0 {
		return minRateScale
	}
	return utils.ClampFloat64(math.Pow(lr/referenceLearningRate, 0.25), minRateScale, maxRateScale)
}

// contrastiveFloorScale raises the contrastive floor for temperatures away from the
// reference and lowers it slightly for larger batches (more negatives per step).
func contrastiveFloorScale(cfg models.TrainingConfig) float64 {
	tempScale := 1.0
	if cfg.Temperature > 0 {
		tempScale = 1 + 0.1*math.Abs(math.Log(cfg.Temperature/referenceTemperature))
	}
	batchScale := 1.0
	if cfg.BatchSize > 0 {
		batchScale = utils.ClampFloat64(1-0.02*math.Log2(float64(cfg.BatchSize)/referenceBatchSize), 0.92, 1.04)
	}
	return tempScale * batchScale
}

// LearningRate returns the scheduled learning rate at a 1-based epoch: linear warmup
// followed by cosine annealing to zero at num_epochs.
func LearningRate(epoch int, cfg models.TrainingConfig) float64 {
	base := cfg.LearningRate
	w := cfg.WarmupEpochs
	n := cfg.NumEpochs
	if w > 0 && epoch <= w {
		return base * float64(epoch) / float64(w)
	}
	if n <= w {
		return base
	}
	progress := float64(epoch-w) / float64(n-w)
	return base * (1 + math.Cos(math.Pi*progress)) / 2
}
