package synth

import (
	"errors"
	"math"
	"testing"

	"github.com/GoSim-25-26J-441/medvision-sim/pkg/models"
)

func TestDeriveRequiresCompleted(t *testing.T) {
	g := newTestGenerator(t)
	exp := newExperiment("eval-running", models.MethodMAE, 5)
	if _, err := g.BuildFull(exp); err != nil {
		t.Fatalf("BuildFull: %v", err)
	}
	if _, err := g.Derive(exp); !errors.Is(err, ErrNotCompleted) {
		t.Fatalf("expected ErrNotCompleted for running experiment, got %v", err)
	}

	empty := newExperiment("eval-empty", models.MethodMAE, 5)
	empty.Status = models.StatusCompleted
	if _, err := g.Derive(empty); !errors.Is(err, ErrNotCompleted) {
		t.Fatalf("expected ErrNotCompleted without history, got %v", err)
	}
}

func TestDeriveEndToEnd(t *testing.T) {
	g := newTestGenerator(t)
	exp := newExperiment("eval-mae", models.MethodMAE, 10)
	if _, err := g.BuildFull(exp); err != nil {
		t.Fatalf("BuildFull: %v", err)
	}
	exp.Status = models.StatusCompleted

	res, err := g.Derive(exp)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if res.ExperimentID != exp.ID {
		t.Fatalf("expected experiment id %s, got %s", exp.ID, res.ExperimentID)
	}
	if res.DiceScore <= 0 || res.DiceScore >= 1 {
		t.Fatalf("dice %f outside (0, 1)", res.DiceScore)
	}
	for name, v := range map[string]float64{"precision": res.Precision, "recall": res.Recall, "iou": res.IoU} {
		if v < 0 || v > 1 {
			t.Fatalf("%s %f outside [0, 1]", name, v)
		}
	}
	if res.HausdorffDistance <= 0 {
		t.Fatalf("hausdorff should be positive, got %f", res.HausdorffDistance)
	}
	if res.LabelEfficiency < 1 {
		t.Fatalf("label efficiency below 1: %f", res.LabelEfficiency)
	}
	if math.Abs(res.IoU-res.DiceScore/(2-res.DiceScore)) > 1e-3 {
		t.Fatalf("iou %f inconsistent with dice %f", res.IoU, res.DiceScore)
	}

	again, _ := g.Derive(exp)
	if again != res {
		t.Fatalf("Derive is not deterministic")
	}
}

func TestScoreMonotoneInBestLoss(t *testing.T) {
	g := newTestGenerator(t)
	for _, m := range models.Methods() {
		prev := g.Score(m, 3.0, 50, 100)
		for loss := 2.9; loss >= 0; loss -= 0.1 {
			cur := g.Score(m, loss, 50, 100)
			if cur.DiceScore < prev.DiceScore || cur.Precision < prev.Precision ||
				cur.Recall < prev.Recall || cur.IoU < prev.IoU {
				t.Fatalf("%s: overlap metrics decreased as loss fell to %.1f", m, loss)
			}
			if cur.HausdorffDistance > prev.HausdorffDistance {
				t.Fatalf("%s: hausdorff increased as loss fell to %.1f", m, loss)
			}
			prev = cur
		}
	}
}

func TestScoreLabelEfficiencyFavorsEarlyConvergence(t *testing.T) {
	g := newTestGenerator(t)
	early := g.Score(models.MethodContrastive, 0.4, 10, 100)
	late := g.Score(models.MethodContrastive, 0.4, 90, 100)
	if early.LabelEfficiency <= late.LabelEfficiency {
		t.Fatalf("expected early convergence to be more label efficient: %f <= %f", early.LabelEfficiency, late.LabelEfficiency)
	}
}

func TestReachEpoch(t *testing.T) {
	hist := []models.MetricsRecord{
		{Epoch: 1, Loss: 2.0},
		{Epoch: 2, Loss: 1.0},
		{Epoch: 3, Loss: 0.15},
		{Epoch: 4, Loss: 0.1},
	}
	// threshold = 0.1 + 0.1*(2.0-0.1) = 0.29
	if got := ReachEpoch(hist); got != 3 {
		t.Fatalf("expected reach epoch 3, got %d", got)
	}
	if got := ReachEpoch(nil); got != 0 {
		t.Fatalf("expected 0 for empty history, got %d", got)
	}
}
