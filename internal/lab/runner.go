package lab

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/GoSim-25-26J-441/medvision-sim/internal/metrics"
	"github.com/GoSim-25-26J-441/medvision-sim/internal/store"
	"github.com/GoSim-25-26J-441/medvision-sim/internal/synth"
	"github.com/GoSim-25-26J-441/medvision-sim/pkg/logger"
	"github.com/GoSim-25-26J-441/medvision-sim/pkg/models"
)

var (
	fromPending = []models.ExperimentStatus{models.StatusPending}
	fromRunning = []models.ExperimentStatus{models.StatusRunning}
	fromPaused  = []models.ExperimentStatus{models.StatusPaused}
)

// Start moves a pending experiment to running and generates epochs until it completes,
// fails, is paused, or ctx is cancelled. It returns the experiment as the loop left it.
func (l *Lab) Start(ctx context.Context, id string) (*models.Experiment, error) {
	return l.drive(ctx, id, "start", fromPending, runOpts{pace: l.interval})
}

// Resume moves a paused experiment back to running and continues its loop like Start.
func (l *Lab) Resume(ctx context.Context, id string) (*models.Experiment, error) {
	return l.drive(ctx, id, "resume", fromPaused, runOpts{pace: l.interval})
}

// StartAsync is Start with the loop running in the background. It returns the running
// experiment as soon as the transition succeeded.
func (l *Lab) StartAsync(ctx context.Context, id string) (*models.Experiment, error) {
	return l.launch(ctx, id, "start", fromPending)
}

// ResumeAsync is Resume with the loop running in the background.
func (l *Lab) ResumeAsync(ctx context.Context, id string) (*models.Experiment, error) {
	return l.launch(ctx, id, "resume", fromPaused)
}

// runOpts control a single run loop. pace is the delay between epochs; bySeed marks
// loops started by Seed.
type runOpts struct {
	pace   time.Duration
	bySeed bool
}

func (l *Lab) drive(ctx context.Context, id, op string, from []models.ExperimentStatus, opts runOpts) (*models.Experiment, error) {
	if err := l.claim(id, op, opts.bySeed); err != nil {
		return nil, err
	}
	defer l.release(id)

	exp, err := l.transition(ctx, id, op, from, models.StatusRunning)
	if err != nil {
		return nil, err
	}
	return l.run(ctx, exp, opts.pace)
}

func (l *Lab) launch(ctx context.Context, id, op string, from []models.ExperimentStatus) (*models.Experiment, error) {
	if err := l.acquire(id, op); err != nil {
		return nil, err
	}
	exp, err := l.transition(ctx, id, op, from, models.StatusRunning)
	if err != nil {
		l.release(id)
		return nil, err
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer l.release(id)
		if _, err := l.run(l.baseCtx, exp.Clone(), l.interval); err != nil {
			logger.Error("background run failed", "experiment_id", id, "error", err)
		}
	}()
	return exp, nil
}

// run is the epoch loop. The caller holds the writer slot and exp is running.
func (l *Lab) run(ctx context.Context, exp *models.Experiment, pace time.Duration) (*models.Experiment, error) {
	method := string(exp.PretrainingMethod)
	began := time.Now()
	l.rec.RunStarted(method)
	logger.Info("run started", "experiment_id", exp.ID, "method", method, "epoch", exp.CurrentEpoch)

	cur := exp
	defer func() {
		status := "error"
		if cur != nil {
			status = string(cur.Status)
		}
		l.rec.RunStopped(method, status, time.Since(began))
		logger.Info("run stopped", "experiment_id", exp.ID, "status", status, "elapsed", time.Since(began))
	}()

	var (
		next *models.Experiment
		err  error
	)
	for {
		if ctx.Err() != nil {
			cur, err = l.interrupt(exp.ID)
			return cur, err
		}

		next, err = l.advance(ctx, cur)
		switch {
		case errors.Is(err, synth.ErrExperimentComplete):
			cur, err = l.complete(ctx, cur)
			return cur, err
		case errors.Is(err, store.ErrStatusConflict):
			// Paused between epochs: report where it stopped.
			cur, err = l.store.GetExperiment(context.WithoutCancel(ctx), exp.ID)
			return cur, err
		case err != nil && ctx.Err() != nil:
			cur, err = l.interrupt(exp.ID)
			return cur, err
		case err != nil:
			cur, err = l.fail(ctx, cur, err)
			return cur, err
		}
		cur = next

		if pace > 0 {
			t := time.NewTimer(pace)
			select {
			case <-ctx.Done():
				t.Stop()
			case <-t.C:
			}
		}
	}
}

// advance generates and persists exactly one epoch of a running experiment.
func (l *Lab) advance(ctx context.Context, exp *models.Experiment) (*models.Experiment, error) {
	rec, err := l.gen.Next(exp)
	if err != nil {
		return nil, err
	}
	next, err := l.store.AppendMetrics(ctx, exp.ID, rec)
	if err != nil {
		return nil, err
	}
	l.rec.EpochGenerated(string(exp.PretrainingMethod))
	logger.Debug("epoch generated", "experiment_id", exp.ID, "epoch", rec.Epoch, "loss", rec.Loss)
	return next, nil
}

// complete marks a fully generated experiment completed and stores its evaluation.
func (l *Lab) complete(ctx context.Context, exp *models.Experiment) (*models.Experiment, error) {
	done, err := l.store.TransitionStatus(ctx, exp.ID, fromRunning, models.StatusCompleted, "")
	if errors.Is(err, store.ErrStatusConflict) {
		return l.store.GetExperiment(ctx, exp.ID)
	}
	if err != nil {
		return nil, err
	}

	ev, err := l.gen.Derive(done)
	l.rec.GeneratorRequest(metrics.KindEvaluation, err)
	if err != nil {
		return done, fmt.Errorf("derive evaluation for %s: %w", exp.ID, err)
	}
	ev.EvaluatedAt = stamp()
	if err := l.store.CreateEvaluation(ctx, &ev); err != nil && !errors.Is(err, store.ErrAlreadyExists) {
		return done, fmt.Errorf("store evaluation for %s: %w", exp.ID, err)
	}
	logger.Info("experiment completed", "experiment_id", exp.ID, "best_loss", *done.BestLoss, "dice", ev.DiceScore)
	l.finished(done, &ev)
	return done, nil
}

func (l *Lab) fail(ctx context.Context, exp *models.Experiment, cause error) (*models.Experiment, error) {
	logger.Error("run failed", "experiment_id", exp.ID, "error", cause)
	failed, err := l.store.TransitionStatus(context.WithoutCancel(ctx), exp.ID, fromRunning, models.StatusFailed, cause.Error())
	if err != nil {
		return nil, fmt.Errorf("mark %s failed after %v: %w", exp.ID, cause, err)
	}
	l.finished(failed, nil)
	return failed, nil
}

func (l *Lab) finished(exp *models.Experiment, ev *models.EvaluationResult) {
	if l.notifier != nil {
		l.notifier.ExperimentFinished(exp.Clone(), ev)
	}
}

// interrupt pauses an experiment whose loop lost its context, so it can be resumed.
func (l *Lab) interrupt(id string) (*models.Experiment, error) {
	paused, err := l.store.TransitionStatus(context.Background(), id, fromRunning, models.StatusPaused, "")
	if errors.Is(err, store.ErrStatusConflict) {
		return l.store.GetExperiment(context.Background(), id)
	}
	if err != nil {
		return nil, err
	}
	logger.Warn("run interrupted, experiment paused", "experiment_id", id, "epoch", paused.CurrentEpoch)
	return paused, nil
}

// Pause moves a running experiment to paused. An active loop stops at the next epoch
// boundary.
func (l *Lab) Pause(ctx context.Context, id string) (*models.Experiment, error) {
	return l.transition(ctx, id, "pause", fromRunning, models.StatusPaused)
}

// Step advances a running experiment that no loop is driving by exactly one epoch,
// completing it when the last epoch is reached.
func (l *Lab) Step(ctx context.Context, id string) (*models.Experiment, error) {
	return l.step(ctx, id, false)
}

func (l *Lab) step(ctx context.Context, id string, bySeed bool) (*models.Experiment, error) {
	if err := l.claim(id, "step", bySeed); err != nil {
		return nil, err
	}
	defer l.release(id)

	exp, err := l.store.GetExperiment(ctx, id)
	if err != nil {
		return nil, err
	}
	if exp.Status != models.StatusRunning {
		l.rec.TransitionRejected("step")
		return nil, fmt.Errorf("%w: step: experiment %s is %s", ErrInvalidTransition, id, exp.Status)
	}

	next, err := l.advance(ctx, exp)
	switch {
	case errors.Is(err, synth.ErrExperimentComplete):
		return l.complete(ctx, exp)
	case errors.Is(err, store.ErrStatusConflict):
		l.rec.TransitionRejected("step")
		return nil, fmt.Errorf("%w: step: %v", ErrInvalidTransition, err)
	case err != nil:
		return nil, err
	}
	if next.CurrentEpoch >= next.TrainingConfig.NumEpochs {
		return l.complete(ctx, next)
	}
	return next, nil
}

// Begin moves a pending experiment to running without driving it; Step advances it.
func (l *Lab) Begin(ctx context.Context, id string) (*models.Experiment, error) {
	return l.begin(ctx, id, false)
}

func (l *Lab) begin(ctx context.Context, id string, bySeed bool) (*models.Experiment, error) {
	if err := l.claim(id, "begin", bySeed); err != nil {
		return nil, err
	}
	defer l.release(id)
	return l.transition(ctx, id, "begin", fromPending, models.StatusRunning)
}
