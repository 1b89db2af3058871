package models

import (
	"errors"
	"fmt"
	"time"
)

// Modality is the imaging modality of a dataset
type Modality string

const (
	ModalityCT  Modality = "ct"
	ModalityMRI Modality = "mri"
	ModalityPET Modality = "pet"
)

// Architecture is the encoder family of a model configuration
type Architecture string

const (
	ArchitectureUNet3D Architecture = "3d_unet"
	ArchitectureViT    Architecture = "vit"
)

// PretrainingMethod is the self-supervised objective an experiment simulates
type PretrainingMethod string

const (
	MethodContrastive   PretrainingMethod = "contrastive"
	MethodMAE           PretrainingMethod = "mae"
	MethodCrossModality PretrainingMethod = "cross_modality"
)

// Methods lists every supported pretraining method in display order.
func Methods() []PretrainingMethod {
	return []PretrainingMethod{MethodContrastive, MethodMAE, MethodCrossModality}
}

// Valid reports whether m is a known method.
func (m PretrainingMethod) Valid() bool {
	switch m {
	case MethodContrastive, MethodMAE, MethodCrossModality:
		return true
	}
	return false
}

// ExperimentStatus represents the lifecycle state of an experiment
type ExperimentStatus string

const (
	StatusPending   ExperimentStatus = "pending"
	StatusRunning   ExperimentStatus = "running"
	StatusCompleted ExperimentStatus = "completed"
	StatusFailed    ExperimentStatus = "failed"
	StatusPaused    ExperimentStatus = "paused"
)

// Terminal reports whether no further transition is allowed from s.
func (s ExperimentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ParseStatus parses a status name case-insensitively; ok is false for unknown names.
func ParseStatus(s string) (ExperimentStatus, bool) {
	switch st := ExperimentStatus(toLower(s)); st {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusPaused:
		return st, true
	}
	return "", false
}

// Dataset is a registered imaging dataset
type Dataset struct {
	ID          string    `json:"id"`
	Name        string    `json:"name" validate:"required,max=200"`
	Modality    Modality  `json:"modality" validate:"required,oneof=ct mri pet"`
	Description string    `json:"description,omitempty"`
	NumSamples  int       `json:"num_samples" validate:"gte=0"`
	NumLabeled  int       `json:"num_labeled" validate:"gte=0,ltefield=NumSamples"`
	Resolution  string    `json:"resolution"`
	CreatedAt   time.Time `json:"created_at"`
}

// DefaultDataset returns a dataset with default field values, used as the decode target for create requests.
func DefaultDataset() Dataset {
	return Dataset{Resolution: "256x256x128"}
}

// LabelPercent returns the share of labeled samples in percent, or 0 for an empty dataset.
func (d *Dataset) LabelPercent() float64 {
	if d.NumSamples <= 0 {
		return 0
	}
	return float64(d.NumLabeled) / float64(d.NumSamples) * 100
}

// ModelConfig is a registered encoder configuration
type ModelConfig struct {
	ID              string       `json:"id"`
	Name            string       `json:"name" validate:"required,max=200"`
	Architecture    Architecture `json:"architecture" validate:"required,oneof=3d_unet vit"`
	EncoderDepth    int          `json:"encoder_depth" validate:"gt=0,lte=48"`
	NumChannels     int          `json:"num_channels" validate:"gt=0"`
	FeatureDim      int          `json:"feature_dim" validate:"gt=0"`
	ProjectionDim   int          `json:"projection_dim" validate:"gt=0"`
	UsePretrained   bool         `json:"use_pretrained"`
	ParametersCount int64        `json:"parameters_count,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}

// DefaultModelConfig returns a model configuration with default field values.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		EncoderDepth:  5,
		NumChannels:   1,
		FeatureDim:    512,
		ProjectionDim: 128,
	}
}

// EstimateParameters fills ParametersCount from the architecture when it was not supplied.
func (m *ModelConfig) EstimateParameters() {
	if m.ParametersCount > 0 {
		return
	}
	switch m.Architecture {
	case ArchitectureUNet3D:
		m.ParametersCount = 31_000_000
	case ArchitectureViT:
		m.ParametersCount = 86_000_000
	}
}

// TrainingConfig holds the hyperparameters of a pretraining experiment
type TrainingConfig struct {
	LearningRate         float64 `json:"learning_rate" yaml:"learning_rate" validate:"gt=0,lte=1"`
	BatchSize            int     `json:"batch_size" yaml:"batch_size" validate:"gt=0,lte=4096"`
	NumEpochs            int     `json:"num_epochs" yaml:"num_epochs" validate:"gt=0,lte=10000"`
	WarmupEpochs         int     `json:"warmup_epochs" yaml:"warmup_epochs" validate:"gte=0"` // may exceed NumEpochs
	Temperature          float64 `json:"temperature" yaml:"temperature" validate:"gt=0,lte=10"`
	LossType             string  `json:"loss_type" yaml:"loss_type"`
	Optimizer            string  `json:"optimizer" yaml:"optimizer"`
	Scheduler            string  `json:"scheduler" yaml:"scheduler"`
	AugmentationStrength float64 `json:"augmentation_strength" yaml:"augmentation_strength" validate:"gte=0,lte=1"`
}

// DefaultTrainingConfig returns the default pretraining hyperparameters.
func DefaultTrainingConfig() TrainingConfig {
	return TrainingConfig{
		LearningRate:         1e-4,
		BatchSize:            4,
		NumEpochs:            100,
		WarmupEpochs:         10,
		Temperature:          0.07,
		LossType:             "nt_xent",
		Optimizer:            "adamw",
		Scheduler:            "cosine",
		AugmentationStrength: 0.5,
	}
}

// MetricsRecord is one simulated epoch of pretraining
type MetricsRecord struct {
	Epoch              int     `json:"epoch"`
	Loss               float64 `json:"loss"`
	ContrastiveLoss    float64 `json:"contrastive_loss"`
	ReconstructionLoss float64 `json:"reconstruction_loss"`
	LearningRate       float64 `json:"learning_rate"`
}

// Experiment is a simulated self-supervised pretraining run
type Experiment struct {
	ID                string            `json:"id"`
	Name              string            `json:"name" validate:"required,max=200"`
	Description       string            `json:"description,omitempty"`
	DatasetID         string            `json:"dataset_id" validate:"required"`
	ModelConfigID     string            `json:"model_config_id" validate:"required"`
	PretrainingMethod PretrainingMethod `json:"pretraining_method" validate:"required,oneof=contrastive mae cross_modality"`
	TrainingConfig    TrainingConfig    `json:"training_config"`
	Status            ExperimentStatus  `json:"status"`
	CurrentEpoch      int               `json:"current_epoch"`
	BestLoss          *float64          `json:"best_loss"`
	MetricsHistory    []MetricsRecord   `json:"metrics_history"`
	Error             string            `json:"error,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	StartedAt         *time.Time        `json:"started_at,omitempty"`
	EndedAt           *time.Time        `json:"ended_at,omitempty"`
}

// DefaultExperiment returns an experiment with default training hyperparameters.
func DefaultExperiment() Experiment {
	return Experiment{
		TrainingConfig: DefaultTrainingConfig(),
	}
}

// Remaining returns how many epochs are left to simulate.
func (e *Experiment) Remaining() int {
	return e.TrainingConfig.NumEpochs - e.CurrentEpoch
}

// Clone returns a deep copy so stored experiments are never aliased by callers.
func (e *Experiment) Clone() *Experiment {
	if e == nil {
		return nil
	}
	out := *e
	if e.BestLoss != nil {
		v := *e.BestLoss
		out.BestLoss = &v
	}
	if e.StartedAt != nil {
		v := *e.StartedAt
		out.StartedAt = &v
	}
	if e.EndedAt != nil {
		v := *e.EndedAt
		out.EndedAt = &v
	}
	out.MetricsHistory = append([]MetricsRecord(nil), e.MetricsHistory...)
	return &out
}

// ExperimentMetrics is the metrics view of an experiment
type ExperimentMetrics struct {
	ExperimentID   string           `json:"experiment_id"`
	Status         ExperimentStatus `json:"status"`
	CurrentEpoch   int              `json:"current_epoch"`
	NumEpochs      int              `json:"num_epochs"`
	BestLoss       *float64         `json:"best_loss"`
	MetricsHistory []MetricsRecord  `json:"metrics_history"`
}

// EvaluationResult holds downstream segmentation metrics for a completed experiment
type EvaluationResult struct {
	ID                string    `json:"id"`
	ExperimentID      string    `json:"experiment_id"`
	DiceScore         float64   `json:"dice_score"`
	HausdorffDistance float64   `json:"hausdorff_distance"`
	Precision         float64   `json:"precision"`
	Recall            float64   `json:"recall"`
	IoU               float64   `json:"iou"`
	LabelEfficiency   float64   `json:"label_efficiency"`
	FinetuneID        string    `json:"finetune_id,omitempty"`
	EvaluatedAt       time.Time `json:"evaluated_at"`
}

// FinetuneConfig is a simulated supervised fine-tuning run of a pretrained encoder on a
// labeled dataset. It completes in a single step that produces its evaluation.
type FinetuneConfig struct {
	ID               string            `json:"id"`
	ExperimentID     string            `json:"experiment_id" validate:"required"`
	LabeledDatasetID string            `json:"labeled_dataset_id" validate:"required"`
	LearningRate     float64           `json:"learning_rate" validate:"gt=0,lte=1"`
	BatchSize        int               `json:"batch_size" validate:"gt=0,lte=4096"`
	NumEpochs        int               `json:"num_epochs" validate:"gt=0,lte=10000"`
	FreezeEncoder    bool              `json:"freeze_encoder"`
	DecoderType      string            `json:"decoder_type" validate:"required,max=100"`
	Status           ExperimentStatus  `json:"status"`
	CurrentEpoch     int               `json:"current_epoch"`
	LabelPercent     *float64          `json:"label_percent,omitempty"`
	Evaluation       *EvaluationResult `json:"evaluation,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty"`
}

// DefaultFinetuneConfig returns a fine-tune configuration with default hyperparameters.
func DefaultFinetuneConfig() FinetuneConfig {
	return FinetuneConfig{
		LearningRate: 1e-5,
		BatchSize:    2,
		NumEpochs:    50,
		DecoderType:  "segmentation",
	}
}

// Clone returns a deep copy of f.
func (f *FinetuneConfig) Clone() *FinetuneConfig {
	if f == nil {
		return nil
	}
	out := *f
	if f.LabelPercent != nil {
		v := *f.LabelPercent
		out.LabelPercent = &v
	}
	if f.Evaluation != nil {
		v := *f.Evaluation
		out.Evaluation = &v
	}
	if f.CompletedAt != nil {
		v := *f.CompletedAt
		out.CompletedAt = &v
	}
	return &out
}

// EmbeddingPoint is one sample of a simulated 2-D embedding projection
type EmbeddingPoint struct {
	ID         int     `json:"id"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Cluster    int     `json:"cluster"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// SliceDimensions is the in-plane size of a volume slice
type SliceDimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// HistogramBin is one intensity histogram bucket
type HistogramBin struct {
	Bin   int `json:"bin"`
	Count int `json:"count"`
}

// SegmentationSummary summarizes the overlay for one slice
type SegmentationSummary struct {
	TumorVolumePercent   float64 `json:"tumor_volume_percent"`
	NumRegions           int     `json:"num_regions"`
	OrganCoveragePercent float64 `json:"organ_coverage_percent"`
}

// SliceSample holds statistics for one slice of a simulated volume
type SliceSample struct {
	SliceIndex         int                 `json:"slice_index"`
	TotalSlices        int                 `json:"total_slices"`
	Dimensions         SliceDimensions     `json:"dimensions"`
	MeanIntensity      float64             `json:"mean_intensity"`
	StdIntensity       float64             `json:"std_intensity"`
	IntensityHistogram []HistogramBin      `json:"intensity_histogram"`
	Segmentation       SegmentationSummary `json:"segmentation"`
}

// SegmentationMetrics is the overlap and boundary part of an evaluation
type SegmentationMetrics struct {
	DiceScore         float64 `json:"dice_score"`
	HausdorffDistance float64 `json:"hausdorff_distance"`
	Precision         float64 `json:"precision"`
	Recall            float64 `json:"recall"`
	IoU               float64 `json:"iou"`
}

// Segmentation returns the segmentation metrics of r.
func (r *EvaluationResult) Segmentation() SegmentationMetrics {
	return SegmentationMetrics{
		DiceScore:         r.DiceScore,
		HausdorffDistance: r.HausdorffDistance,
		Precision:         r.Precision,
		Recall:            r.Recall,
		IoU:               r.IoU,
	}
}

// LabelEfficiencyPoint pairs SSL and supervised performance at one label budget.
// SSLDice and SupervisedDice repeat the dice of the full bundles.
type LabelEfficiencyPoint struct {
	LabelPercent   float64             `json:"label_percent"`
	SSLDice        float64             `json:"ssl_dice"`
	SupervisedDice float64             `json:"supervised_dice"`
	SSL            SegmentationMetrics `json:"ssl_pretrained"`
	Supervised     SegmentationMetrics `json:"supervised"`
}

// EvaluationComparison is the response of the compare operation
type EvaluationComparison struct {
	LabelEfficiency []LabelEfficiencyPoint `json:"label_efficiency"`
	Evaluations     []*EvaluationResult    `json:"evaluations"`
}

// DashboardStats aggregates counts and averages over stored entities
type DashboardStats struct {
	TotalDatasets        int      `json:"total_datasets"`
	TotalModels          int      `json:"total_models"`
	TotalExperiments     int      `json:"total_experiments"`
	CompletedExperiments int      `json:"completed_experiments"`
	RunningExperiments   int      `json:"running_experiments"`
	AvgDiceScore         *float64 `json:"avg_dice_score"`
	BestModelName        *string  `json:"best_model_name"`
}

// SeedSummary reports what the seed operation created
type SeedSummary struct {
	Datasets    int `json:"datasets"`
	Models      int `json:"models"`
	Experiments int `json:"experiments"`
	Evaluations int `json:"evaluations"`
}

// ErrNonContiguous is returned when a record would break the 1-based contiguous history.
var ErrNonContiguous = errors.New("metrics record is not the next epoch")

// Append adds rec as the next epoch of the history, advancing CurrentEpoch and BestLoss.
// History is append-only: rec.Epoch must equal CurrentEpoch+1 and the bound is NumEpochs.
func (e *Experiment) Append(rec MetricsRecord) error {
	if len(e.MetricsHistory) != e.CurrentEpoch {
		return fmt.Errorf("%w: history has %d records at epoch %d", ErrNonContiguous, len(e.MetricsHistory), e.CurrentEpoch)
	}
	if rec.Epoch != e.CurrentEpoch+1 {
		return fmt.Errorf("%w: got epoch %d, want %d", ErrNonContiguous, rec.Epoch, e.CurrentEpoch+1)
	}
	if rec.Epoch > e.TrainingConfig.NumEpochs {
		return fmt.Errorf("%w: epoch %d exceeds num_epochs %d", ErrNonContiguous, rec.Epoch, e.TrainingConfig.NumEpochs)
	}
	e.MetricsHistory = append(e.MetricsHistory, rec)
	e.CurrentEpoch = rec.Epoch
	if e.BestLoss == nil || rec.Loss < *e.BestLoss {
		best := rec.Loss
		e.BestLoss = &best
	}
	return nil
}
