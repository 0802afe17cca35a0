package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/nself/content-acquisition/internal/model"
	"github.com/nself/content-acquisition/internal/siblings"
	"github.com/nself/content-acquisition/internal/xlog"
)

// runEncodingStage implements §4.1 stage 6. An unconfigured media
// processor auto-skips encoding; otherwise submit then poll with the same
// transient-network-tolerance as the torrent stage.
func (o *Orchestrator) runEncodingStage(ctx context.Context, runID int64) (*model.PipelineRun, error) {
	if !o.clients.Media.Configured() {
		return o.skipStage(ctx, runID, model.StageEncoding, "media processing url not configured")
	}

	run, err := o.store.GetPipelineRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: load run %d: %w", runID, err)
	}

	if run.EncodingJobID == "" {
		jobID, submitErr := o.clients.Media.Submit(ctx, run.Metadata.DownloadPath, "file", run.Metadata.EncodingProfileID, EncodingPriority)
		switch {
		case submitErr == nil:
			now := o.clock.Now()
			run, err = o.store.UpdatePipelineRun(ctx, runID, func(r *model.PipelineRun) error {
				ensureStarted(r, model.StageEncoding, now)
				r.EncodingJobID = jobID
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("orchestrator: persist encoding submit for run %d: %w", runID, err)
			}
		case siblings.IsUnreachable(submitErr):
			return o.skipStage(ctx, runID, model.StageEncoding, submitErr.Error())
		default:
			return o.failRun(ctx, runID, model.StageEncoding, fmt.Sprintf("encoding submit failed: %v", submitErr))
		}
	}

	log := xlog.WithContext(ctx, o.log)
	done, failMsg, pollErr := pollUntil(ctx, o.sleep, o.encodingPollMaxAttempts, log, func(ctx context.Context) (pollOutcome, string, error) {
		status, err := o.clients.Media.Poll(ctx, run.EncodingJobID)
		if err != nil {
			return pollInProgress, "", err
		}
		if status.Status == siblings.MediaStatusCompleted {
			return pollDone, "", nil
		}
		if status.Status == siblings.MediaStatusFailed {
			return pollErrored, "encoding job reported a terminal error", nil
		}
		return pollInProgress, "", nil
	})

	if pollErr != nil {
		msg := "encoding job timed out waiting for completion"
		if !errors.Is(pollErr, ErrPollTimeout) {
			msg = fmt.Sprintf("encoding poll aborted: %v", pollErr)
		}
		return o.failRun(ctx, runID, model.StageEncoding, msg)
	}
	if !done {
		return o.failRun(ctx, runID, model.StageEncoding, failMsg)
	}

	return o.completeStage(ctx, runID, model.StageEncoding, nil)
}
