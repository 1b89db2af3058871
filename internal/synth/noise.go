package synth

import (
	"github.com/GoSim-25-26J-441/medvision-sim/pkg/utils"
)

// Noise streams keep component draws for the same epoch independent of each other.
const (
	streamContrastive = iota
	streamReconstruction
)

// Jitter perturbs the part of value above floor by a factor drawn uniformly from
// [1-fraction/2, 1+fraction]. The perturbation is positive-biased, proportional to the
// remaining decay, and never takes the result below floor. The same seed always yields
// the same result.
func Jitter(value, floor, fraction float64, seed int64) float64 {
	if value < floor {
		value = floor
	}
	excess := value - floor
	if excess == 0 || fraction <= 0 {
		return value
	}
	rng := utils.NewRandSource(seed)
	return floor + excess*rng.UniformFloat64(1-fraction/2, 1+fraction)
}

// epochSeed derives the noise seed of one component of one experiment epoch.
func epochSeed(experimentID string, epoch, stream int) int64 {
	return utils.SeedFor(experimentID, epoch, stream)
}
