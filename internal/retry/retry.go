// Package retry implements the pipeline run resume operation (C9, §4.1
// "Retry").
package retry

import (
	"context"
	"fmt"

	"github.com/nself/content-acquisition/internal/model"
	"github.com/nself/content-acquisition/internal/store"
)

// Executor runs a pipeline to (or further toward) a terminal status.
// Satisfied by *orchestrator.Orchestrator.
type Executor interface {
	Execute(ctx context.Context, runID int64) error
}

// Planner resumes a PipelineRun at the first non-terminal mandatory stage,
// re-executes failed/pending optional stages, and hands off to an
// Executor.
type Planner struct {
	store store.PipelineStore
	exec  Executor
}

// New constructs a Planner.
func New(s store.PipelineStore, exec Executor) *Planner {
	return &Planner{store: s, exec: exec}
}

// Retry implements §4.1 "Retry (C9)": inspects per-stage statuses, resumes
// at the first non-terminal mandatory stage before optional stages,
// re-executes optional stages that are failed or pending (not skipped or
// completed), clears error_message, and is idempotent on an already
// completed run.
func (p *Planner) Retry(ctx context.Context, runID int64) error {
	run, err := p.store.GetPipelineRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("retry: load run %d: %w", runID, err)
	}
	if run.Status == model.PipelineCompleted {
		return nil
	}

	_, err = p.store.UpdatePipelineRun(ctx, runID, func(r *model.PipelineRun) error {
		resetStage(r, model.StageVPN)
		resetStage(r, model.StageTorrent)
		for _, stage := range model.OptionalStages {
			status := r.StageStatus(stage)
			if status == model.StageFailed || status == model.StagePending {
				resetStage(r, stage)
			}
		}
		r.Status = model.PipelineRunning
		r.ErrorMessage = ""
		return nil
	})
	if err != nil {
		return fmt.Errorf("retry: reset run %d: %w", runID, err)
	}

	return p.exec.Execute(ctx, runID)
}

// resetStage clears a stage back to pending unless it is already
// completed, leaving completed mandatory stages alone so Execute skips
// straight past them.
func resetStage(r *model.PipelineRun, stage model.Stage) {
	if r.StageStatus(stage) == model.StageCompleted {
		return
	}
	r.Stages[stage] = model.StageFields{Status: model.StagePending}
}
