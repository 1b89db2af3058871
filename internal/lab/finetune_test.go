package lab

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoSim-25-26J-441/medvision-sim/internal/store"
	"github.com/GoSim-25-26J-441/medvision-sim/pkg/models"
)

func newFinetune(exp *models.Experiment, datasetID string) models.FinetuneConfig {
	ft := models.DefaultFinetuneConfig()
	ft.ExperimentID = exp.ID
	ft.LabeledDatasetID = datasetID
	return ft
}

func TestCreateFinetuneValidation(t *testing.T) {
	l := newTestLab(t, nil, 0)
	ctx := context.Background()
	exp := createExperiment(t, l, models.MethodContrastive, 5)

	_, err := l.CreateFinetune(ctx, newFinetune(&models.Experiment{ID: "missing"}, exp.DatasetID))
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = l.CreateFinetune(ctx, newFinetune(exp, "missing"))
	assert.ErrorIs(t, err, store.ErrNotFound)

	bad := newFinetune(exp, exp.DatasetID)
	bad.BatchSize = 0
	_, err = l.CreateFinetune(ctx, bad)
	assert.ErrorIs(t, err, models.ErrValidation)

	created, err := l.CreateFinetune(ctx, newFinetune(exp, exp.DatasetID))
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, created.Status)
	assert.Equal(t, 50, created.NumEpochs)
	assert.Equal(t, "segmentation", created.DecoderType)

	list, err := l.ListFinetunes(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)
}

func TestStartFinetune(t *testing.T) {
	l := newTestLab(t, nil, 0)
	ctx := context.Background()
	exp := createExperiment(t, l, models.MethodMAE, 20)
	_, err := l.Start(ctx, exp.ID)
	require.NoError(t, err)

	ft, err := l.CreateFinetune(ctx, newFinetune(exp, exp.DatasetID))
	require.NoError(t, err)

	done, err := l.StartFinetune(ctx, ft.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)
	assert.Equal(t, done.NumEpochs, done.CurrentEpoch)
	require.NotNil(t, done.LabelPercent)
	assert.InDelta(t, 10.0, *done.LabelPercent, 1e-9) // 80 of 800 labeled
	require.NotNil(t, done.Evaluation)
	assert.Equal(t, ft.ID, done.Evaluation.FinetuneID)
	assert.Equal(t, exp.ID, done.Evaluation.ExperimentID)
	assert.Greater(t, done.Evaluation.DiceScore, 0.0)
	assert.Less(t, done.Evaluation.DiceScore, 1.0)

	_, err = l.StartFinetune(ctx, ft.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = l.StartFinetune(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	evals, err := l.ListEvaluations(ctx)
	require.NoError(t, err)
	require.Len(t, evals, 1)
	assert.Empty(t, evals[0].FinetuneID)
}

func TestStartFinetuneWithoutDataset(t *testing.T) {
	l := newTestLab(t, nil, 0)
	ctx := context.Background()
	exp := createExperiment(t, l, models.MethodContrastive, 5)
	ft, err := l.CreateFinetune(ctx, newFinetune(exp, exp.DatasetID))
	require.NoError(t, err)
	require.NoError(t, l.DeleteDataset(ctx, exp.DatasetID))

	done, err := l.StartFinetune(ctx, ft.ID)
	require.NoError(t, err)
	assert.Equal(t, defaultLabelPercent, *done.LabelPercent)
}

func TestFinetuneScoresFollowLabelShare(t *testing.T) {
	l := newTestLab(t, nil, 0)
	ctx := context.Background()
	exp := createExperiment(t, l, models.MethodCrossModality, 10)
	_, err := l.Start(ctx, exp.ID)
	require.NoError(t, err)

	few, err := l.CreateDataset(ctx, models.Dataset{Name: "few labels", Modality: models.ModalityCT, NumSamples: 1000, NumLabeled: 10})
	require.NoError(t, err)
	many, err := l.CreateDataset(ctx, models.Dataset{Name: "many labels", Modality: models.ModalityCT, NumSamples: 1000, NumLabeled: 500})
	require.NoError(t, err)

	scores := make([]float64, 0, 2)
	for _, ds := range []*models.Dataset{few, many} {
		ft, err := l.CreateFinetune(ctx, newFinetune(exp, ds.ID))
		require.NoError(t, err)
		done, err := l.StartFinetune(ctx, ft.ID)
		require.NoError(t, err)
		scores = append(scores, done.Evaluation.DiceScore)
	}
	assert.Greater(t, scores[1], scores[0])
}
