package models

import (
	"errors"
	"strings"
	"testing"
)

func TestPretrainingMethodValid(t *testing.T) {
	for _, m := range Methods() {
		if !m.Valid() {
			t.Errorf("expected %q to be valid", m)
		}
	}
	if PretrainingMethod("simclr").Valid() {
		t.Error("expected unknown method to be invalid")
	}
}

func TestStatusTerminalAndParse(t *testing.T) {
	tests := []struct {
		in       string
		want     ExperimentStatus
		ok       bool
		terminal bool
	}{
		{"pending", StatusPending, true, false},
		{"RUNNING", StatusRunning, true, false},
		{"completed", StatusCompleted, true, true},
		{" failed ", StatusFailed, true, true},
		{"paused", StatusPaused, true, false},
		{"cancelled", "", false, false},
	}
	for _, tt := range tests {
		got, ok := ParseStatus(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseStatus(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
		if ok && got.Terminal() != tt.terminal {
			t.Errorf("%q.Terminal() = %v, want %v", got, got.Terminal(), tt.terminal)
		}
	}
}

func TestDatasetValidation(t *testing.T) {
	ds := DefaultDataset()
	ds.Name = "BTCV - Abdomen CT"
	ds.Modality = ModalityCT
	ds.NumSamples = 800
	ds.NumLabeled = 80
	if err := Validate(&ds); err != nil {
		t.Fatalf("expected valid dataset, got %v", err)
	}
	if ds.LabelPercent() != 10 {
		t.Errorf("LabelPercent = %f, want 10", ds.LabelPercent())
	}

	tests := []struct {
		name   string
		mutate func(d *Dataset)
		field  string
	}{
		{"missing name", func(d *Dataset) { d.Name = "" }, "Name"},
		{"bad modality", func(d *Dataset) { d.Modality = "xray" }, "Modality"},
		{"negative samples", func(d *Dataset) { d.NumSamples = -1; d.NumLabeled = -1 }, "NumSamples"},
		{"more labels than samples", func(d *Dataset) { d.NumLabeled = 900 }, "NumLabeled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := ds
			tt.mutate(&bad)
			err := Validate(&bad)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("expected error to mention %s, got %v", tt.field, err)
			}
		})
	}
}

func TestModelConfigDefaultsAndParameters(t *testing.T) {
	m := DefaultModelConfig()
	m.Name = "ViT-Base 3D"
	m.Architecture = ArchitectureViT
	if err := Validate(&m); err != nil {
		t.Fatalf("expected valid model config, got %v", err)
	}
	m.EstimateParameters()
	if m.ParametersCount != 86_000_000 {
		t.Errorf("ParametersCount = %d, want 86M", m.ParametersCount)
	}

	explicit := DefaultModelConfig()
	explicit.Architecture = ArchitectureUNet3D
	explicit.ParametersCount = 12_000_000
	explicit.EstimateParameters()
	if explicit.ParametersCount != 12_000_000 {
		t.Errorf("explicit parameter count overwritten: %d", explicit.ParametersCount)
	}

	m.EncoderDepth = 0
	if err := Validate(&m); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for zero depth, got %v", err)
	}
}

func TestExperimentValidation(t *testing.T) {
	exp := DefaultExperiment()
	exp.Name = "Chest CT - MAE Pretraining"
	exp.DatasetID = "ds-1"
	exp.ModelConfigID = "mc-1"
	exp.PretrainingMethod = MethodMAE
	if err := Validate(&exp); err != nil {
		t.Fatalf("expected valid experiment, got %v", err)
	}

	// A warmup as long as or longer than the run stretches the ramp; it is not an error.
	for _, warmup := range []int{10, 50} {
		long := exp
		long.TrainingConfig.NumEpochs = 10
		long.TrainingConfig.WarmupEpochs = warmup
		if err := Validate(&long); err != nil {
			t.Fatalf("warmup %d over 10 epochs should be valid, got %v", warmup, err)
		}
	}

	tests := []struct {
		name   string
		mutate func(e *Experiment)
	}{
		{"unknown method", func(e *Experiment) { e.PretrainingMethod = "byol" }},
		{"missing dataset", func(e *Experiment) { e.DatasetID = "" }},
		{"zero epochs", func(e *Experiment) { e.TrainingConfig.NumEpochs = 0 }},
		{"negative warmup", func(e *Experiment) { e.TrainingConfig.WarmupEpochs = -1 }},
		{"non-positive learning rate", func(e *Experiment) { e.TrainingConfig.LearningRate = 0 }},
		{"augmentation above one", func(e *Experiment) { e.TrainingConfig.AugmentationStrength = 1.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := exp
			tt.mutate(&bad)
			if err := Validate(&bad); !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestExperimentClone(t *testing.T) {
	best := 0.42
	exp := &Experiment{
		ID:             "exp-1",
		BestLoss:       &best,
		MetricsHistory: []MetricsRecord{{Epoch: 1, Loss: 0.5}},
	}
	c := exp.Clone()
	*c.BestLoss = 1
	c.MetricsHistory[0].Loss = 9

	if *exp.BestLoss != 0.42 {
		t.Error("clone aliases BestLoss")
	}
	if exp.MetricsHistory[0].Loss != 0.5 {
		t.Error("clone aliases MetricsHistory")
	}
	if (*Experiment)(nil).Clone() != nil {
		t.Error("nil clone should be nil")
	}
}

func TestExperimentAppend(t *testing.T) {
	exp := DefaultExperiment()
	exp.TrainingConfig.NumEpochs = 3

	losses := []float64{1.2, 0.9, 1.0}
	for i, l := range losses {
		if err := exp.Append(MetricsRecord{Epoch: i + 1, Loss: l}); err != nil {
			t.Fatalf("Append epoch %d: %v", i+1, err)
		}
	}
	if exp.CurrentEpoch != 3 || len(exp.MetricsHistory) != 3 {
		t.Fatalf("expected 3 epochs, got current=%d len=%d", exp.CurrentEpoch, len(exp.MetricsHistory))
	}
	if exp.BestLoss == nil || *exp.BestLoss != 0.9 {
		t.Fatalf("expected best loss 0.9, got %v", exp.BestLoss)
	}

	if err := exp.Append(MetricsRecord{Epoch: 4, Loss: 0.1}); !errors.Is(err, ErrNonContiguous) {
		t.Fatalf("expected ErrNonContiguous past num_epochs, got %v", err)
	}

	other := DefaultExperiment()
	if err := other.Append(MetricsRecord{Epoch: 2}); !errors.Is(err, ErrNonContiguous) {
		t.Fatalf("expected ErrNonContiguous for skipped epoch, got %v", err)
	}
}
