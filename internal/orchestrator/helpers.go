package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/nself/content-acquisition/internal/model"
	"github.com/nself/content-acquisition/internal/xlog"
)

// ensureStarted marks stage running and stamps StartedAt only if it hasn't
// already been stamped, so resuming a stage that started earlier (e.g.
// before a process restart) doesn't lose its original start time.
func ensureStarted(r *model.PipelineRun, stage model.Stage, now time.Time) {
	f := r.Stages[stage]
	if f.StartedAt == nil {
		f.StartedAt = &now
		f.Status = model.StageRunning
		r.Stages[stage] = f
	}
}

// sleep is the clock-driven wait between poll attempts (§4.1 "Ordering &
// tie-breaks": sleep for exactly the poll interval).
func (o *Orchestrator) sleep(ctx context.Context) error {
	return o.clock.Sleep(ctx, o.pollInterval)
}

// failRun marks stage failed and the run's aggregate status failed, in one
// transaction, and logs the outcome.
func (o *Orchestrator) failRun(ctx context.Context, runID int64, stage model.Stage, msg string) (*model.PipelineRun, error) {
	now := o.clock.Now()
	run, err := o.store.UpdatePipelineRun(ctx, runID, func(r *model.PipelineRun) error {
		ensureStarted(r, stage, now)
		r.FinishStage(stage, model.StageFailed, now)
		r.Status = model.PipelineFailed
		r.ErrorMessage = msg
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: persist failure for run %d stage %s: %w", runID, stage, err)
	}
	xlog.WithContext(ctx, o.log).Warn().
		Str("stage", string(stage)).
		Str("error", msg).
		Msg("stage failed, pipeline failed")
	return run, nil
}

// skipStage marks an optional stage skipped without touching aggregate status.
func (o *Orchestrator) skipStage(ctx context.Context, runID int64, stage model.Stage, reason string) (*model.PipelineRun, error) {
	now := o.clock.Now()
	run, err := o.store.UpdatePipelineRun(ctx, runID, func(r *model.PipelineRun) error {
		ensureStarted(r, stage, now)
		r.FinishStage(stage, model.StageSkipped, now)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: persist skip for run %d stage %s: %w", runID, stage, err)
	}
	xlog.WithContext(ctx, o.log).Info().Str("stage", string(stage)).Str("reason", reason).Msg("stage skipped")
	return run, nil
}

// completeStage applies mutate and marks a stage (mandatory or optional)
// completed in one update.
func (o *Orchestrator) completeStage(ctx context.Context, runID int64, stage model.Stage, mutate func(*model.PipelineRun)) (*model.PipelineRun, error) {
	now := o.clock.Now()
	run, err := o.store.UpdatePipelineRun(ctx, runID, func(r *model.PipelineRun) error {
		ensureStarted(r, stage, now)
		if mutate != nil {
			mutate(r)
		}
		r.FinishStage(stage, model.StageCompleted, now)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: persist completion for run %d stage %s: %w", runID, stage, err)
	}
	return run, nil
}
