package lab

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/GoSim-25-26J-441/medvision-sim/pkg/logger"
	"github.com/GoSim-25-26J-441/medvision-sim/pkg/models"
)

var seedDatasets = []models.Dataset{
	{Name: "BraTS 2023 - Brain Tumor", Modality: models.ModalityMRI, Description: "Multi-modal brain MRI with glioma segmentation labels", NumSamples: 1500, NumLabeled: 150, Resolution: "240x240x155"},
	{Name: "NIH Chest CT", Modality: models.ModalityCT, Description: "Chest CT volumes for lung nodule detection", NumSamples: 2400, NumLabeled: 240, Resolution: "512x512x256"},
	{Name: "BTCV - Abdomen CT", Modality: models.ModalityCT, Description: "Abdominal CT with 13 organ annotations", NumSamples: 800, NumLabeled: 80, Resolution: "512x512x128"},
	{Name: "PET-CT Lung", Modality: models.ModalityPET, Description: "Paired PET-CT scans for cross-modality learning", NumSamples: 600, NumLabeled: 60, Resolution: "128x128x64"},
}

var seedModels = []models.ModelConfig{
	{Name: "3D UNet Encoder", Architecture: models.ArchitectureUNet3D, EncoderDepth: 5, NumChannels: 1, FeatureDim: 512, ProjectionDim: 128, ParametersCount: 31_000_000},
	{Name: "ViT-Base 3D", Architecture: models.ArchitectureViT, EncoderDepth: 12, NumChannels: 1, FeatureDim: 768, ProjectionDim: 256, ParametersCount: 86_000_000},
	{Name: "3D UNet Light", Architecture: models.ArchitectureUNet3D, EncoderDepth: 4, NumChannels: 1, FeatureDim: 256, ProjectionDim: 64, ParametersCount: 12_000_000},
}

type seedExperiment struct {
	name, description string
	dataset, model    int
	method            models.PretrainingMethod
	epochs            int
	// complete runs the experiment to the end; otherwise it is stepped to half.
	complete bool
}

var seedExperiments = []seedExperiment{
	{"Brain Tumor SSL - Contrastive", "SimCLR-style contrastive pretraining on BraTS", 0, 0, models.MethodContrastive, 100, true},
	{"Chest CT - MAE Pretraining", "Masked autoencoder pretraining on chest CT", 1, 1, models.MethodMAE, 80, true},
	{"Abdomen SSL - Cross-Modality", "Cross-modality alignment on abdominal CT", 2, 0, models.MethodCrossModality, 50, false},
}

// Seed replaces all stored data with the demo catalogue: four datasets, three model
// configs and three experiments. Two experiments run to completion, the third is left
// running at half of its epochs. Seed runs are never paced by EpochInterval, and no
// other writer can start until Seed returns.
func (l *Lab) Seed(ctx context.Context) (*models.SeedSummary, error) {
	if err := l.beginSeeding(); err != nil {
		return nil, err
	}
	defer l.endSeeding()

	if err := l.store.Reset(ctx); err != nil {
		return nil, fmt.Errorf("reset store: %w", err)
	}

	summary := &models.SeedSummary{}
	datasetIDs := make([]string, len(seedDatasets))
	for i, d := range seedDatasets {
		created, err := l.CreateDataset(ctx, d)
		if err != nil {
			return nil, fmt.Errorf("seed dataset %q: %w", d.Name, err)
		}
		datasetIDs[i] = created.ID
		summary.Datasets++
	}
	modelIDs := make([]string, len(seedModels))
	for i, m := range seedModels {
		created, err := l.CreateModel(ctx, m)
		if err != nil {
			return nil, fmt.Errorf("seed model %q: %w", m.Name, err)
		}
		modelIDs[i] = created.ID
		summary.Models++
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, se := range seedExperiments {
		se := se
		exp := models.DefaultExperiment()
		exp.Name = se.name
		exp.Description = se.description
		exp.DatasetID = datasetIDs[se.dataset]
		exp.ModelConfigID = modelIDs[se.model]
		exp.PretrainingMethod = se.method
		exp.TrainingConfig.NumEpochs = se.epochs

		created, err := l.CreateExperiment(ctx, exp)
		if err != nil {
			return nil, fmt.Errorf("seed experiment %q: %w", se.name, err)
		}
		summary.Experiments++

		if se.complete {
			g.Go(func() error {
				_, err := l.drive(gctx, created.ID, "seed", fromPending, runOpts{bySeed: true})
				return err
			})
			continue
		}
		g.Go(func() error {
			if _, err := l.begin(gctx, created.ID, true); err != nil {
				return err
			}
			for i := 0; i < se.epochs/2; i++ {
				if _, err := l.step(gctx, created.ID, true); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("seed runs: %w", err)
	}

	c, err := l.store.Counts(ctx)
	if err != nil {
		return nil, err
	}
	summary.Evaluations = c.Evaluations
	logger.Info("demo data seeded", "datasets", summary.Datasets, "models", summary.Models,
		"experiments", summary.Experiments, "evaluations", summary.Evaluations)
	return summary, nil
}

func (l *Lab) beginSeeding() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seeding {
		l.rec.TransitionRejected("seed")
		return fmt.Errorf("%w: a seed is already in progress", ErrInvalidTransition)
	}
	if busy := len(l.writers); busy > 0 {
		l.rec.TransitionRejected("seed")
		return fmt.Errorf("%w: %d experiments are being driven", ErrInvalidTransition, busy)
	}
	l.seeding = true
	return nil
}

func (l *Lab) endSeeding() {
	l.mu.Lock()
	l.seeding = false
	l.mu.Unlock()
}
