package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/nself/content-acquisition/internal/model"
	"github.com/nself/content-acquisition/internal/xlog"
)

// runTorrentStage implements §4.1 stages 2 and 3 as a single mandatory
// "torrent" stage: submit the magnet/torrent URL, then poll until the
// download reaches a terminal status.
func (o *Orchestrator) runTorrentStage(ctx context.Context, runID int64) (*model.PipelineRun, error) {
	run, err := o.store.GetPipelineRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: load run %d: %w", runID, err)
	}

	url := run.Metadata.MagnetURL
	if url == "" {
		url = run.Metadata.TorrentURL
	}
	if url == "" {
		return o.failRun(ctx, runID, model.StageTorrent, "torrent stage requires metadata.magnet_url or metadata.torrent_url")
	}

	if run.TorrentDLID == "" {
		id, submitErr := o.clients.Torrent.Submit(ctx, url)
		if submitErr != nil {
			return o.failRun(ctx, runID, model.StageTorrent, fmt.Sprintf("torrent submit failed: %v", submitErr))
		}
		now := o.clock.Now()
		run, err = o.store.UpdatePipelineRun(ctx, runID, func(r *model.PipelineRun) error {
			ensureStarted(r, model.StageTorrent, now)
			r.TorrentDLID = id
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("orchestrator: persist torrent submit for run %d: %w", runID, err)
		}
	}

	log := xlog.WithContext(ctx, o.log)
	var donePath string
	done, failMsg, pollErr := pollUntil(ctx, o.sleep, o.downloadPollMaxAttempts, log, func(ctx context.Context) (pollOutcome, string, error) {
		status, err := o.clients.Torrent.Poll(ctx, run.TorrentDLID)
		if err != nil {
			return pollInProgress, "", err
		}
		if status.Done() {
			donePath = status.Path
			return pollDone, "", nil
		}
		if status.Errored() {
			return pollErrored, "torrent download reported a terminal error", nil
		}
		return pollInProgress, "", nil
	})

	if pollErr != nil {
		msg := "Download timed out waiting for completion"
		if !errors.Is(pollErr, ErrPollTimeout) {
			msg = fmt.Sprintf("torrent poll aborted: %v", pollErr)
		}
		return o.failRun(ctx, runID, model.StageTorrent, msg)
	}
	if !done {
		return o.failRun(ctx, runID, model.StageTorrent, failMsg)
	}

	return o.completeStage(ctx, runID, model.StageTorrent, func(r *model.PipelineRun) {
		r.Metadata.DownloadPath = donePath
	})
}
