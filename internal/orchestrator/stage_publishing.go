package orchestrator

import (
	"context"
	"fmt"

	"github.com/nself/content-acquisition/internal/model"
	"github.com/nself/content-acquisition/internal/siblings"
)

// runPublishingStage implements §4.1 stage 7. An unconfigured publish
// backend auto-skips publishing. Output lookup is best-effort: a failure
// fetching the encoding job's outputs proceeds with nulls rather than
// failing the stage.
func (o *Orchestrator) runPublishingStage(ctx context.Context, runID int64) (*model.PipelineRun, error) {
	if !o.clients.Publish.Configured() {
		return o.skipStage(ctx, runID, model.StagePublishing, "publish backend url not configured")
	}

	run, err := o.store.GetPipelineRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: load run %d: %w", runID, err)
	}

	var outputs siblings.MediaOutputs
	if run.EncodingJobID != "" {
		if status, fetchErr := o.clients.Media.Poll(ctx, run.EncodingJobID); fetchErr == nil {
			outputs = status.Outputs
		}
	}

	req := siblings.PublishRequest{
		TMDBID:          run.Metadata.TMDBID,
		Title:           run.ContentTitle,
		Type:            run.ContentType,
		HLSManifestURL:  outputs.HLSManifestURL,
		DASHManifestURL: outputs.DASHManifestURL,
		SubtitleTracks:  outputs.SubtitleTracks,
		Metadata:        stringifyExtra(run.Metadata.Extra),
	}

	callErr := o.clients.Publish.Publish(ctx, req)
	switch {
	case callErr == nil:
		return o.completeStage(ctx, runID, model.StagePublishing, nil)
	case siblings.IsUnreachable(callErr):
		return o.skipStage(ctx, runID, model.StagePublishing, callErr.Error())
	default:
		return o.failRun(ctx, runID, model.StagePublishing, fmt.Sprintf("publish failed: %v", callErr))
	}
}

// stringifyExtra renders a free-form metadata map as strings for the
// publish request's flat metadata field.
func stringifyExtra(extra model.JSONBlob) map[string]string {
	if len(extra) == 0 {
		return nil
	}
	out := make(map[string]string, len(extra))
	for k, v := range extra {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out
}
