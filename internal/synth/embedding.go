package synth

import (
	"fmt"
	"math"

	"github.com/GoSim-25-26J-441/medvision-sim/pkg/models"
	"github.com/GoSim-25-26J-441/medvision-sim/pkg/utils"
)

// MaxEmbeddingSamples caps a single embeddings request.
const MaxEmbeddingSamples = 5000

const (
	minConfidence = 0.7
	maxConfidence = 1.0
)

// Embeddings generates n labeled 2-D points spread round-robin across the catalogue
// clusters. Each point stays within ClusterSpread of its center, and confidence falls
// off with that distance. rng supplies all randomness; pass a seeded source for
// reproducible output.
func (g *Generator) Embeddings(n int, rng *utils.RandSource) ([]models.EmbeddingPoint, error) {
	if n <= 0 || n > MaxEmbeddingSamples {
		return nil, fmt.Errorf("%w: %d (must be 1..%d)", ErrInvalidSampleCount, n, MaxEmbeddingSamples)
	}
	spread := g.cat.ClusterSpread
	points := make([]models.EmbeddingPoint, 0, n)
	for i := 0; i < n; i++ {
		idx := i % len(g.cat.Clusters)
		c := g.cat.Clusters[idx]

		dx := rng.NormFloat64(0, spread/2)
		dy := rng.NormFloat64(0, spread/2)
		r := math.Hypot(dx, dy)
		if r > spread {
			dx, dy = dx*spread/r, dy*spread/r
			r = spread
		}

		falloff := (r / spread) * (0.6 + 0.4*rng.Float64())
		points = append(points, models.EmbeddingPoint{
			ID:         i,
			X:          utils.Round(utils.ClampFloat64(c.CenterX+dx, -EmbeddingBound, EmbeddingBound), 2),
			Y:          utils.Round(utils.ClampFloat64(c.CenterY+dy, -EmbeddingBound, EmbeddingBound), 2),
			Cluster:    idx,
			Label:      c.Label,
			Confidence: utils.Round(utils.ClampFloat64(maxConfidence-0.3*falloff, minConfidence, maxConfidence), 2),
		})
	}
	return points, nil
}
