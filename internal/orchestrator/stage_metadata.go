package orchestrator

import (
	"context"
	"fmt"

	"github.com/nself/content-acquisition/internal/model"
	"github.com/nself/content-acquisition/internal/siblings"
)

// runMetadataStage implements §4.1 stage 4: unreachable skips, an HTTP
// error fails the stage (and the run).
func (o *Orchestrator) runMetadataStage(ctx context.Context, runID int64) (*model.PipelineRun, error) {
	run, err := o.store.GetPipelineRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: load run %d: %w", runID, err)
	}

	callErr := o.clients.Metadata.Enrich(ctx, run.ContentTitle, run.ContentType)
	switch {
	case callErr == nil:
		return o.completeStage(ctx, runID, model.StageMetadata, nil)
	case siblings.IsUnreachable(callErr):
		return o.skipStage(ctx, runID, model.StageMetadata, callErr.Error())
	default:
		return o.failRun(ctx, runID, model.StageMetadata, fmt.Sprintf("metadata enrich failed: %v", callErr))
	}
}
