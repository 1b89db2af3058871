// Package lab orchestrates experiments: it owns every status transition, drives the
// synthetic generators, and persists their output through a store.Store.
package lab

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/medvision-sim/internal/metrics"
	"github.com/GoSim-25-26J-441/medvision-sim/internal/store"
	"github.com/GoSim-25-26J-441/medvision-sim/internal/synth"
	"github.com/GoSim-25-26J-441/medvision-sim/pkg/models"
)

// ErrInvalidTransition is returned when an operation does not apply to the experiment's
// current status, or when another writer already drives the experiment.
var ErrInvalidTransition = errors.New("invalid status transition")

// Notifier is told about experiments that reached completed or failed. ev is nil for
// failed experiments. Implementations must not block.
type Notifier interface {
	ExperimentFinished(exp *models.Experiment, ev *models.EvaluationResult)
}

// Options tune a Lab. The zero value is usable.
type Options struct {
	// EpochInterval paces run loops; zero generates epochs back to back.
	EpochInterval time.Duration
	Recorder      *metrics.Recorder
	Notifier      Notifier
}

// Lab is the experiment orchestrator. It is safe for concurrent use.
type Lab struct {
	store    store.Store
	gen      *synth.Generator
	rec      *metrics.Recorder
	notifier Notifier
	interval time.Duration

	// baseCtx parents background run loops; Close cancels it.
	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	writers map[string]string // experiment id -> operation holding it
	seeding bool              // Seed owns the store; only its own writers may claim slots
}

func New(st store.Store, gen *synth.Generator, opts Options) *Lab {
	ctx, cancel := context.WithCancel(context.Background())
	return &Lab{
		store:    st,
		gen:      gen,
		rec:      opts.Recorder,
		notifier: opts.Notifier,
		interval: opts.EpochInterval,
		baseCtx:  ctx,
		stop:     cancel,
		writers:  make(map[string]string),
	}
}

// Close stops background run loops and waits for them. Stopped loops leave their
// experiments paused, so they can be resumed later.
func (l *Lab) Close() {
	l.stop()
	l.wg.Wait()
}

// acquire registers op as the single writer of experiment id.
func (l *Lab) acquire(id, op string) error {
	return l.claim(id, op, false)
}

// claim is acquire for callers that may run while a seed is in progress.
func (l *Lab) claim(id, op string, bySeed bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seeding && !bySeed {
		l.rec.TransitionRejected(op)
		return fmt.Errorf("%w: demo data is being seeded", ErrInvalidTransition)
	}
	if holder, busy := l.writers[id]; busy {
		l.rec.TransitionRejected(op)
		return fmt.Errorf("%w: experiment %s is being driven by %s", ErrInvalidTransition, id, holder)
	}
	l.writers[id] = op
	return nil
}

func (l *Lab) release(id string) {
	l.mu.Lock()
	delete(l.writers, id)
	l.mu.Unlock()
}

func (l *Lab) busy(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.writers[id]
	return ok
}

// transition performs a compare-and-set status change, translating a status conflict
// into ErrInvalidTransition.
func (l *Lab) transition(ctx context.Context, id, op string, from []models.ExperimentStatus, to models.ExperimentStatus) (*models.Experiment, error) {
	exp, err := l.store.TransitionStatus(ctx, id, from, to, "")
	if errors.Is(err, store.ErrStatusConflict) {
		l.rec.TransitionRejected(op)
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTransition, op, err)
	}
	return exp, err
}
