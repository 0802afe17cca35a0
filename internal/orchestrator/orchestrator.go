// Package orchestrator drives a single PipelineRun through its seven
// dependent stages with the mandatory/optional skip-vs-fail policy of
// §4.1 (C8).
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nself/content-acquisition/internal/clock"
	"github.com/nself/content-acquisition/internal/config"
	"github.com/nself/content-acquisition/internal/metrics"
	"github.com/nself/content-acquisition/internal/model"
	"github.com/nself/content-acquisition/internal/siblings"
	"github.com/nself/content-acquisition/internal/store"
	"github.com/nself/content-acquisition/internal/tracing"
	"github.com/nself/content-acquisition/internal/xlog"
)

// EncodingPriority is the fixed priority sent on every encoding submit (§4.1 stage 6).
const EncodingPriority = 5

// Orchestrator executes PipelineRuns against a Store and a set of sibling clients.
type Orchestrator struct {
	store   store.PipelineStore
	clients *siblings.Clients
	clock   clock.Clock

	pollInterval            time.Duration
	downloadPollMaxAttempts int
	encodingPollMaxAttempts int

	log zerolog.Logger
}

// New constructs an Orchestrator from resolved configuration.
func New(s store.PipelineStore, clients *siblings.Clients, clk clock.Clock, cfg *config.Resolved) *Orchestrator {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Orchestrator{
		store:                   s,
		clients:                 clients,
		clock:                   clk,
		pollInterval:            cfg.PollInterval,
		downloadPollMaxAttempts: cfg.DownloadPollMaxAttempts,
		encodingPollMaxAttempts: cfg.EncodingPollMaxAttempts,
		log:                     xlog.WithComponent("orchestrator"),
	}
}

// Execute drives run to a terminal aggregate status. It is resume-safe:
// any stage already Completed or Skipped is left untouched and execution
// proceeds to the next one, which is what makes Retry's "reset a stage to
// pending, then call Execute again" strategy work.
func (o *Orchestrator) Execute(ctx context.Context, runID int64) error {
	run, err := o.store.GetPipelineRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("orchestrator: load run %d: %w", runID, err)
	}
	if run.Status.Terminal() {
		return nil
	}

	ctx = xlog.ContextWithRunID(ctx, runID)
	ctx, span := tracing.StartPipelineRun(ctx, runID, run.AccountID, string(run.Trigger))
	defer span.End()

	log := xlog.WithContext(ctx, o.log)

	if run.StageStatus(model.StageVPN) != model.StageCompleted {
		stageCtx, stageSpan := tracing.StartStage(ctx, string(model.StageVPN))
		start := o.clock.Now()
		run, err = o.runVPNStage(stageCtx, runID)
		stageSpan.End()
		if err != nil {
			return err
		}
		metrics.StageDuration.WithLabelValues(string(model.StageVPN), string(run.StageStatus(model.StageVPN))).Observe(o.clock.Now().Sub(start).Seconds())
		if run.Status == model.PipelineVPNWaiting {
			log.Info().Msg("vpn inactive, pipeline waiting")
			return nil
		}
	}

	if run.StageStatus(model.StageTorrent) != model.StageCompleted {
		stageCtx, stageSpan := tracing.StartStage(ctx, string(model.StageTorrent))
		start := o.clock.Now()
		run, err = o.runTorrentStage(stageCtx, runID)
		stageSpan.End()
		if err != nil {
			return err
		}
		metrics.StageDuration.WithLabelValues(string(model.StageTorrent), string(run.StageStatus(model.StageTorrent))).Observe(o.clock.Now().Sub(start).Seconds())
		if run.Status == model.PipelineFailed {
			metrics.PipelineOutcomeTotal.WithLabelValues(string(run.Status)).Inc()
			return nil
		}
	}

	for _, stage := range model.OptionalStages {
		if run.StageStatus(stage).Terminal() {
			continue
		}
		run, err = o.runOptionalStage(ctx, runID, stage)
		if err != nil {
			return err
		}
		if run.Status == model.PipelineFailed {
			metrics.PipelineOutcomeTotal.WithLabelValues(string(run.Status)).Inc()
			return nil
		}
	}

	run, err = o.store.UpdatePipelineRun(ctx, runID, func(r *model.PipelineRun) error {
		if !r.Status.Terminal() {
			r.Status = model.PipelineCompleted
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("orchestrator: finalize run %d: %w", runID, err)
	}
	metrics.PipelineOutcomeTotal.WithLabelValues(string(run.Status)).Inc()
	log.Info().Str("status", string(run.Status)).Msg("pipeline run finished")
	return nil
}

// runOptionalStage dispatches to the stage-specific implementation and
// applies the common timing/tracing/metrics wrapper.
func (o *Orchestrator) runOptionalStage(ctx context.Context, runID int64, stage model.Stage) (*model.PipelineRun, error) {
	ctx, span := tracing.StartStage(ctx, string(stage))
	defer span.End()
	start := o.clock.Now()

	var run *model.PipelineRun
	var err error
	switch stage {
	case model.StageMetadata:
		run, err = o.runMetadataStage(ctx, runID)
	case model.StageSubtitle:
		run, err = o.runSubtitleStage(ctx, runID)
	case model.StageEncoding:
		run, err = o.runEncodingStage(ctx, runID)
	case model.StagePublishing:
		run, err = o.runPublishingStage(ctx, runID)
	default:
		return nil, fmt.Errorf("orchestrator: unknown optional stage %q", stage)
	}
	if err != nil {
		return nil, err
	}
	metrics.StageDuration.WithLabelValues(string(stage), string(run.StageStatus(stage))).Observe(o.clock.Now().Sub(start).Seconds())
	return run, nil
}
