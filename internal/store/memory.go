package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/GoSim-25-26J-441/medvision-sim/pkg/models"
)

// MemoryStore keeps everything in maps guarded by a single RWMutex.
type MemoryStore struct {
	mu          sync.RWMutex
	datasets    map[string]*models.Dataset
	models      map[string]*models.ModelConfig
	experiments map[string]*models.Experiment
	evaluations map[string]*models.EvaluationResult // keyed by experiment id
	finetunes   map[string]*models.FinetuneConfig
}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	s.reset()
	return s
}

func (s *MemoryStore) reset() {
	s.datasets = make(map[string]*models.Dataset)
	s.models = make(map[string]*models.ModelConfig)
	s.experiments = make(map[string]*models.Experiment)
	s.evaluations = make(map[string]*models.EvaluationResult)
	s.finetunes = make(map[string]*models.FinetuneConfig)
}

func (s *MemoryStore) CreateDataset(_ context.Context, d *models.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	assignIdentity(&d.ID, &d.CreatedAt)
	if _, exists := s.datasets[d.ID]; exists {
		return fmt.Errorf("%w: dataset %s", ErrAlreadyExists, d.ID)
	}
	cp := *d
	s.datasets[d.ID] = &cp
	return nil
}

func (s *MemoryStore) GetDataset(_ context.Context, id string) (*models.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.datasets[id]
	if !ok {
		return nil, fmt.Errorf("%w: dataset %s", ErrNotFound, id)
	}
	cp := *d
	return &cp, nil
}

func (s *MemoryStore) ListDatasets(_ context.Context) ([]*models.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Dataset, 0, len(s.datasets))
	for _, d := range s.datasets {
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return before(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID) })
	return out, nil
}

func (s *MemoryStore) DeleteDataset(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.datasets[id]; !ok {
		return fmt.Errorf("%w: dataset %s", ErrNotFound, id)
	}
	delete(s.datasets, id)
	return nil
}

func (s *MemoryStore) CreateModel(_ context.Context, m *models.ModelConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	assignIdentity(&m.ID, &m.CreatedAt)
	if _, exists := s.models[m.ID]; exists {
		return fmt.Errorf("%w: model config %s", ErrAlreadyExists, m.ID)
	}
	cp := *m
	s.models[m.ID] = &cp
	return nil
}

func (s *MemoryStore) GetModel(_ context.Context, id string) (*models.ModelConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.models[id]
	if !ok {
		return nil, fmt.Errorf("%w: model config %s", ErrNotFound, id)
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) ListModels(_ context.Context) ([]*models.ModelConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.ModelConfig, 0, len(s.models))
	for _, m := range s.models {
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return before(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID) })
	return out, nil
}

func (s *MemoryStore) DeleteModel(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.models[id]; !ok {
		return fmt.Errorf("%w: model config %s", ErrNotFound, id)
	}
	delete(s.models, id)
	return nil
}

func (s *MemoryStore) CreateExperiment(_ context.Context, e *models.Experiment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	assignIdentity(&e.ID, &e.CreatedAt)
	if _, exists := s.experiments[e.ID]; exists {
		return fmt.Errorf("%w: experiment %s", ErrAlreadyExists, e.ID)
	}
	s.experiments[e.ID] = e.Clone()
	return nil
}

func (s *MemoryStore) GetExperiment(_ context.Context, id string) (*models.Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.experiments[id]
	if !ok {
		return nil, fmt.Errorf("%w: experiment %s", ErrNotFound, id)
	}
	return e.Clone(), nil
}

func (s *MemoryStore) ListExperiments(_ context.Context) ([]*models.Experiment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Experiment, 0, len(s.experiments))
	for _, e := range s.experiments {
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return before(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID) })
	return out, nil
}

func (s *MemoryStore) DeleteExperiment(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.experiments[id]; !ok {
		return fmt.Errorf("%w: experiment %s", ErrNotFound, id)
	}
	delete(s.experiments, id)
	delete(s.evaluations, id)
	for fid, f := range s.finetunes {
		if f.ExperimentID == id {
			delete(s.finetunes, fid)
		}
	}
	return nil
}

func (s *MemoryStore) AppendMetrics(ctx context.Context, id string, rec models.MetricsRecord) (*models.Experiment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.experiments[id]
	if !ok {
		return nil, fmt.Errorf("%w: experiment %s", ErrNotFound, id)
	}
	if e.Status != models.StatusRunning {
		return nil, fmt.Errorf("%w: experiment %s is %s, metrics require running", ErrStatusConflict, id, e.Status)
	}
	if err := e.Append(rec); err != nil {
		return nil, err
	}
	return e.Clone(), nil
}

func (s *MemoryStore) TransitionStatus(_ context.Context, id string, from []models.ExperimentStatus, to models.ExperimentStatus, errMsg string) (*models.Experiment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.experiments[id]
	if !ok {
		return nil, fmt.Errorf("%w: experiment %s", ErrNotFound, id)
	}
	if err := checkTransition(id, e.Status, from, to); err != nil {
		return nil, err
	}
	applyTransition(e, to, errMsg)
	return e.Clone(), nil
}

func (s *MemoryStore) CreateEvaluation(_ context.Context, ev *models.EvaluationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.experiments[ev.ExperimentID]; !ok {
		return fmt.Errorf("%w: experiment %s", ErrNotFound, ev.ExperimentID)
	}
	if _, exists := s.evaluations[ev.ExperimentID]; exists {
		return fmt.Errorf("%w: evaluation for experiment %s", ErrAlreadyExists, ev.ExperimentID)
	}
	assignIdentity(&ev.ID, &ev.EvaluatedAt)
	cp := *ev
	s.evaluations[ev.ExperimentID] = &cp
	return nil
}

func (s *MemoryStore) GetEvaluation(_ context.Context, experimentID string) (*models.EvaluationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.evaluations[experimentID]
	if !ok {
		return nil, fmt.Errorf("%w: evaluation for experiment %s", ErrNotFound, experimentID)
	}
	cp := *ev
	return &cp, nil
}

func (s *MemoryStore) ListEvaluations(_ context.Context) ([]*models.EvaluationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.EvaluationResult, 0, len(s.evaluations))
	for _, ev := range s.evaluations {
		cp := *ev
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return before(out[i].EvaluatedAt, out[i].ID, out[j].EvaluatedAt, out[j].ID) })
	return out, nil
}

func (s *MemoryStore) CreateFinetune(_ context.Context, f *models.FinetuneConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.experiments[f.ExperimentID]; !ok {
		return fmt.Errorf("%w: experiment %s", ErrNotFound, f.ExperimentID)
	}
	assignIdentity(&f.ID, &f.CreatedAt)
	if _, exists := s.finetunes[f.ID]; exists {
		return fmt.Errorf("%w: fine-tune %s", ErrAlreadyExists, f.ID)
	}
	s.finetunes[f.ID] = f.Clone()
	return nil
}

func (s *MemoryStore) GetFinetune(_ context.Context, id string) (*models.FinetuneConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.finetunes[id]
	if !ok {
		return nil, fmt.Errorf("%w: fine-tune %s", ErrNotFound, id)
	}
	return f.Clone(), nil
}

func (s *MemoryStore) ListFinetunes(_ context.Context) ([]*models.FinetuneConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.FinetuneConfig, 0, len(s.finetunes))
	for _, f := range s.finetunes {
		out = append(out, f.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return before(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID) })
	return out, nil
}

func (s *MemoryStore) CompleteFinetune(_ context.Context, id string, labelPercent float64, ev *models.EvaluationResult) (*models.FinetuneConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.finetunes[id]
	if !ok {
		return nil, fmt.Errorf("%w: fine-tune %s", ErrNotFound, id)
	}
	next := f.Clone()
	if err := applyFinetuneCompletion(next, labelPercent, ev); err != nil {
		return nil, err
	}
	s.finetunes[id] = next
	return next.Clone(), nil
}

func (s *MemoryStore) Counts(_ context.Context) (Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := Counts{
		Datasets:    len(s.datasets),
		Models:      len(s.models),
		Experiments: len(s.experiments),
		Evaluations: len(s.evaluations),
	}
	for _, e := range s.experiments {
		switch e.Status {
		case models.StatusCompleted:
			c.Completed++
		case models.StatusRunning:
			c.Running++
		}
	}
	return c, nil
}

func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	return nil
}

func (s *MemoryStore) Close() error { return nil }
