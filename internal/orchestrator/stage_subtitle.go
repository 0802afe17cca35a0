package orchestrator

import (
	"context"
	"fmt"

	"github.com/nself/content-acquisition/internal/model"
	"github.com/nself/content-acquisition/internal/siblings"
)

// runSubtitleStage implements §4.1 stage 5, the same skip/fail policy as
// stage 4.
func (o *Orchestrator) runSubtitleStage(ctx context.Context, runID int64) (*model.PipelineRun, error) {
	run, err := o.store.GetPipelineRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: load run %d: %w", runID, err)
	}

	callErr := o.clients.Subtitle.Search(ctx, run.ContentTitle)
	switch {
	case callErr == nil:
		return o.completeStage(ctx, runID, model.StageSubtitle, nil)
	case siblings.IsUnreachable(callErr):
		return o.skipStage(ctx, runID, model.StageSubtitle, callErr.Error())
	default:
		return o.failRun(ctx, runID, model.StageSubtitle, fmt.Sprintf("subtitle search failed: %v", callErr))
	}
}
