package synth

import (
	"fmt"
	"math"
	"sort"

	"github.com/GoSim-25-26J-441/medvision-sim/pkg/models"
)

// TrendWindow is the epoch window over which the loss moving average must never rise.
const TrendWindow = 10

// EmbeddingBound is the absolute coordinate limit of embedding points.
const EmbeddingBound = 12.0

// Component describes one exponential-decay-toward-floor loss term.
type Component struct {
	Amplitude float64 `yaml:"amplitude"`
	DecayRate float64 `yaml:"decay_rate"`
	Floor     float64 `yaml:"floor"`
}

// CurveProfile holds the loss terms of one pretraining method and how they combine.
type CurveProfile struct {
	Contrastive          Component `yaml:"contrastive"`
	Reconstruction       Component `yaml:"reconstruction"`
	ContrastiveWeight    float64   `yaml:"contrastive_weight"`
	ReconstructionWeight float64   `yaml:"reconstruction_weight"`
}

// Cluster is a named embedding cluster center.
type Cluster struct {
	Label   string  `yaml:"label"`
	CenterX float64 `yaml:"center_x"`
	CenterY float64 `yaml:"center_y"`
}

// EvaluationProfile maps a best loss onto segmentation metrics.
type EvaluationProfile struct {
	LossScale          float64                              `yaml:"loss_scale"`
	DiceFloor          float64                              `yaml:"dice_floor"`
	DiceCeiling        float64                              `yaml:"dice_ceiling"`
	PrecisionOffset    float64                              `yaml:"precision_offset"`
	RecallOffset       float64                              `yaml:"recall_offset"`
	HausdorffMin       float64                              `yaml:"hausdorff_min"`
	HausdorffSpan      float64                              `yaml:"hausdorff_span"`
	MaxLabelEfficiency float64                              `yaml:"max_label_efficiency"`
	MethodBonus        map[models.PretrainingMethod]float64 `yaml:"method_bonus"`
}

// LabelEfficiencyProfile parameterizes the saturating SSL and supervised dice curves.
type LabelEfficiencyProfile struct {
	Ceiling         float64 `yaml:"ceiling"`
	SSLStart        float64 `yaml:"ssl_start"`
	SSLTau          float64 `yaml:"ssl_tau"`
	SupervisedStart float64 `yaml:"supervised_start"`
	SupervisedTau   float64 `yaml:"supervised_tau"`
}

// SliceProfile parameterizes the per-slice intensity and segmentation profiles.
type SliceProfile struct {
	Width          int     `yaml:"width"`
	Height         int     `yaml:"height"`
	BaseIntensity  float64 `yaml:"base_intensity"`
	IntensityRange float64 `yaml:"intensity_range"`
	BaseStd        float64 `yaml:"base_std"`
	StdRange       float64 `yaml:"std_range"`
	ProfileWidth   float64 `yaml:"profile_width"`
	TumorCenter    float64 `yaml:"tumor_center"`
	TumorWidth     float64 `yaml:"tumor_width"`
	TumorPeak      float64 `yaml:"tumor_peak"`
	NoiseAmplitude float64 `yaml:"noise_amplitude"`
	HistogramBins  int     `yaml:"histogram_bins"`
	HistogramScale float64 `yaml:"histogram_scale"`
}

// Catalogue is the immutable configuration injected into a Generator.
type Catalogue struct {
	Curves          map[models.PretrainingMethod]CurveProfile `yaml:"curves"`
	NoiseFraction   float64                                   `yaml:"noise_fraction"`
	Clusters        []Cluster                                 `yaml:"clusters"`
	ClusterSpread   float64                                   `yaml:"cluster_spread"`
	Checkpoints     []float64                                 `yaml:"checkpoints"`
	LabelEfficiency LabelEfficiencyProfile                    `yaml:"label_efficiency"`
	Evaluation      EvaluationProfile                         `yaml:"evaluation"`
	Slice           SliceProfile                              `yaml:"slice"`
}

// DefaultCatalogue returns the demo catalogue. Each call returns a fresh copy.
func DefaultCatalogue() Catalogue {
	return Catalogue{
		Curves: map[models.PretrainingMethod]CurveProfile{
			models.MethodContrastive: {
				Contrastive:          Component{Amplitude: 1.8, DecayRate: 0.06, Floor: 0.16},
				Reconstruction:       Component{Amplitude: 0.5, DecayRate: 0.05, Floor: 0.05},
				ContrastiveWeight:    1.0,
				ReconstructionWeight: 0.5,
			},
			models.MethodMAE: {
				Contrastive:          Component{Amplitude: 0.5, DecayRate: 0.05, Floor: 0.05},
				Reconstruction:       Component{Amplitude: 1.9, DecayRate: 0.065, Floor: 0.12},
				ContrastiveWeight:    0.5,
				ReconstructionWeight: 1.0,
			},
			models.MethodCrossModality: {
				Contrastive:          Component{Amplitude: 1.2, DecayRate: 0.055, Floor: 0.11},
				Reconstruction:       Component{Amplitude: 1.1, DecayRate: 0.055, Floor: 0.10},
				ContrastiveWeight:    0.8,
				ReconstructionWeight: 0.8,
			},
		},
		NoiseFraction: 0.06,
		Clusters: []Cluster{
			{Label: "liver", CenterX: -6.5, CenterY: 4.5},
			{Label: "kidney", CenterX: 6.0, CenterY: 6.0},
			{Label: "spleen", CenterX: -5.0, CenterY: -6.0},
			{Label: "lung", CenterX: 6.5, CenterY: -4.5},
			{Label: "heart", CenterX: 0.5, CenterY: 0.5},
		},
		ClusterSpread: 2.6,
		Checkpoints:   []float64{1, 5, 10, 25, 50, 100},
		LabelEfficiency: LabelEfficiencyProfile{
			Ceiling:         0.92,
			SSLStart:        0.62,
			SSLTau:          15,
			SupervisedStart: 0.30,
			SupervisedTau:   30,
		},
		Evaluation: EvaluationProfile{
			LossScale:          0.6,
			DiceFloor:          0.58,
			DiceCeiling:        0.90,
			PrecisionOffset:    0.025,
			RecallOffset:       -0.02,
			HausdorffMin:       2.4,
			HausdorffSpan:      11.0,
			MaxLabelEfficiency: 6.0,
			MethodBonus: map[models.PretrainingMethod]float64{
				models.MethodContrastive:   0.01,
				models.MethodMAE:           0,
				models.MethodCrossModality: 0.02,
			},
		},
		Slice: SliceProfile{
			Width:          256,
			Height:         256,
			BaseIntensity:  62,
			IntensityRange: 78,
			BaseStd:        18,
			StdRange:       30,
			ProfileWidth:   0.22,
			TumorCenter:    0.55,
			TumorWidth:     0.07,
			TumorPeak:      4.8,
			NoiseAmplitude: 1.2,
			HistogramBins:  32,
			HistogramScale: 420,
		},
	}
}

// Clone returns a deep copy of c.
func (c Catalogue) Clone() Catalogue {
	out := c
	out.Curves = make(map[models.PretrainingMethod]CurveProfile, len(c.Curves))
	for k, v := range c.Curves {
		out.Curves[k] = v
	}
	out.Clusters = append([]Cluster(nil), c.Clusters...)
	out.Checkpoints = append([]float64(nil), c.Checkpoints...)
	out.Evaluation.MethodBonus = make(map[models.PretrainingMethod]float64, len(c.Evaluation.MethodBonus))
	for k, v := range c.Evaluation.MethodBonus {
		out.Evaluation.MethodBonus[k] = v
	}
	return out
}

// Validate rejects catalogues whose parameters would break the generator invariants.
func (c Catalogue) Validate() error {
	if c.NoiseFraction < 0 || c.NoiseFraction >= 1 {
		return fmt.Errorf("%w: noise_fraction must be in [0, 1), got %f", ErrInvalidCatalogue, c.NoiseFraction)
	}
	for _, m := range models.Methods() {
		p, ok := c.Curves[m]
		if !ok {
			return fmt.Errorf("%w: missing curve profile for %s", ErrInvalidCatalogue, m)
		}
		if p.ContrastiveWeight < 0 || p.ReconstructionWeight < 0 || p.ContrastiveWeight+p.ReconstructionWeight == 0 {
			return fmt.Errorf("%w: %s weights must be non-negative and not both zero", ErrInvalidCatalogue, m)
		}
		for name, comp := range map[string]Component{"contrastive": p.Contrastive, "reconstruction": p.Reconstruction} {
			if err := c.validateComponent(comp); err != nil {
				return fmt.Errorf("%w: %s %s: %v", ErrInvalidCatalogue, m, name, err)
			}
		}
	}

	if len(c.Clusters) == 0 {
		return fmt.Errorf("%w: at least one cluster is required", ErrInvalidCatalogue)
	}
	if c.ClusterSpread <= 0 {
		return fmt.Errorf("%w: cluster_spread must be positive", ErrInvalidCatalogue)
	}
	labels := make(map[string]bool, len(c.Clusters))
	for i, a := range c.Clusters {
		if a.Label == "" {
			return fmt.Errorf("%w: cluster %d has no label", ErrInvalidCatalogue, i)
		}
		if labels[a.Label] {
			return fmt.Errorf("%w: duplicate cluster label %s", ErrInvalidCatalogue, a.Label)
		}
		labels[a.Label] = true
		if math.Abs(a.CenterX) > EmbeddingBound || math.Abs(a.CenterY) > EmbeddingBound {
			return fmt.Errorf("%w: cluster %s center outside [-%g, %g]", ErrInvalidCatalogue, a.Label, EmbeddingBound, EmbeddingBound)
		}
		for _, b := range c.Clusters[i+1:] {
			if d := math.Hypot(a.CenterX-b.CenterX, a.CenterY-b.CenterY); d <= 2*c.ClusterSpread {
				return fmt.Errorf("%w: clusters %s and %s overlap (distance %.2f, spread %.2f)", ErrInvalidCatalogue, a.Label, b.Label, d, c.ClusterSpread)
			}
		}
	}

	if len(c.Checkpoints) == 0 || !sort.Float64sAreSorted(c.Checkpoints) {
		return fmt.Errorf("%w: checkpoints must be non-empty and ascending", ErrInvalidCatalogue)
	}
	for i, p := range c.Checkpoints {
		if p <= 0 || p > 100 || (i > 0 && p == c.Checkpoints[i-1]) {
			return fmt.Errorf("%w: checkpoint %g must be unique and in (0, 100]", ErrInvalidCatalogue, p)
		}
	}

	le := c.LabelEfficiency
	if le.Ceiling <= 0 || le.Ceiling > 1 {
		return fmt.Errorf("%w: label_efficiency ceiling must be in (0, 1]", ErrInvalidCatalogue)
	}
	if le.SupervisedStart < 0 || le.SSLStart < le.SupervisedStart || le.SSLStart > le.Ceiling {
		return fmt.Errorf("%w: label_efficiency starts must satisfy 0 <= supervised <= ssl <= ceiling", ErrInvalidCatalogue)
	}
	if le.SSLTau <= 0 || le.SupervisedTau < le.SSLTau {
		return fmt.Errorf("%w: label_efficiency taus must satisfy 0 < ssl_tau <= supervised_tau", ErrInvalidCatalogue)
	}

	ev := c.Evaluation
	if ev.LossScale <= 0 {
		return fmt.Errorf("%w: evaluation loss_scale must be positive", ErrInvalidCatalogue)
	}
	if ev.DiceFloor <= 0 || ev.DiceCeiling >= 1 || ev.DiceFloor > ev.DiceCeiling {
		return fmt.Errorf("%w: evaluation dice range must satisfy 0 < floor <= ceiling < 1", ErrInvalidCatalogue)
	}
	if ev.HausdorffMin < 0 || ev.HausdorffSpan < 0 {
		return fmt.Errorf("%w: evaluation hausdorff parameters must be non-negative", ErrInvalidCatalogue)
	}
	if ev.MaxLabelEfficiency < 1 {
		return fmt.Errorf("%w: max_label_efficiency must be >= 1", ErrInvalidCatalogue)
	}

	s := c.Slice
	if s.Width <= 0 || s.Height <= 0 || s.HistogramBins <= 0 {
		return fmt.Errorf("%w: slice dimensions and histogram_bins must be positive", ErrInvalidCatalogue)
	}
	if s.HistogramBins > maxIntensity {
		return fmt.Errorf("%w: histogram_bins must not exceed %d", ErrInvalidCatalogue, maxIntensity)
	}
	if s.ProfileWidth <= 0 || s.TumorWidth <= 0 {
		return fmt.Errorf("%w: slice profile widths must be positive", ErrInvalidCatalogue)
	}
	if s.BaseIntensity < s.NoiseAmplitude || s.BaseStd < s.NoiseAmplitude || s.TumorPeak < 0 {
		return fmt.Errorf("%w: slice base levels must exceed the noise amplitude", ErrInvalidCatalogue)
	}
	return nil
}

// validateComponent checks that the noise bound cannot make the TrendWindow moving
// average rise. The slowest effective decay over one window occurs at the minimum
// learning-rate scale and the minimum warmup speed.
func (c Catalogue) validateComponent(comp Component) error {
	if comp.Amplitude < 0 || comp.Floor < 0 {
		return fmt.Errorf("amplitude and floor must be non-negative")
	}
	if comp.DecayRate <= 0 {
		return fmt.Errorf("decay_rate must be positive")
	}
	slowest := math.Exp(-comp.DecayRate * minRateScale * minWarmupSpeed * TrendWindow)
	if slowest*(1+c.NoiseFraction) >= 1-c.NoiseFraction/2 {
		return fmt.Errorf("decay_rate %g too slow for noise_fraction %g", comp.DecayRate, c.NoiseFraction)
	}
	return nil
}
