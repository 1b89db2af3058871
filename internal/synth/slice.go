package synth

import (
	"fmt"
	"math"

	"github.com/GoSim-25-26J-441/medvision-sim/pkg/models"
	"github.com/GoSim-25-26J-441/medvision-sim/pkg/utils"
)

const (
	maxIntensity       = 256
	maxRegions         = 3
	tumorCutoff        = 0.05
	histogramJitter    = 6
	organCoverageBase  = 40.0
	organCoverageRange = 45.0
)

// Slice returns the statistics of slice index (1-based) of a volume with total slices.
// Intensity and tumor burden follow smooth profiles of index/total; the small noise on
// top is seeded by (index, total), so repeated requests return the same sample.
func (g *Generator) Slice(index, total int) (models.SliceSample, error) {
	if total <= 0 || index < 1 || index > total {
		return models.SliceSample{}, fmt.Errorf("%w: index %d of %d", ErrOutOfRange, index, total)
	}
	s := g.cat.Slice
	rng := utils.NewRandSource(utils.SeedFor("slice", index, total))

	p := float64(index) / float64(total)
	bell := utils.Gaussian(p, 0.5, s.ProfileWidth)

	mean := s.BaseIntensity + s.IntensityRange*bell + rng.UniformFloat64(-s.NoiseAmplitude, s.NoiseAmplitude)
	std := s.BaseStd + s.StdRange*bell + rng.UniformFloat64(-s.NoiseAmplitude, s.NoiseAmplitude)

	tumor := s.TumorPeak * utils.Gaussian(p, s.TumorCenter, s.TumorWidth)
	if tumor < tumorCutoff {
		tumor = 0
	}
	regions := 0
	if tumor > 0 {
		regions = min(maxRegions, 1+int(tumor/2))
	}

	binWidth := maxIntensity / s.HistogramBins
	hist := make([]models.HistogramBin, s.HistogramBins)
	for i := range hist {
		center := float64(i*binWidth) + float64(binWidth)/2
		count := int(math.Round(s.HistogramScale*utils.Gaussian(center, mean, std))) + rng.Intn(histogramJitter)
		hist[i] = models.HistogramBin{Bin: i * binWidth, Count: count}
	}

	return models.SliceSample{
		SliceIndex:         index,
		TotalSlices:        total,
		Dimensions:         models.SliceDimensions{Width: s.Width, Height: s.Height},
		MeanIntensity:      utils.Round(mean, 2),
		StdIntensity:       utils.Round(std, 2),
		IntensityHistogram: hist,
		Segmentation: models.SegmentationSummary{
			TumorVolumePercent:   utils.Round(tumor, 2),
			NumRegions:           regions,
			OrganCoveragePercent: utils.Round(organCoverageBase+organCoverageRange*bell, 2),
		},
	}, nil
}
