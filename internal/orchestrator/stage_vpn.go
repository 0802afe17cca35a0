package orchestrator

import (
	"context"

	"github.com/nself/content-acquisition/internal/model"
	"github.com/nself/content-acquisition/internal/siblings"
)

// runVPNStage implements §4.1 stage 1. Unreachability is treated the same
// as an inactive tunnel: a download must never start without a verified
// VPN, so the caller never infers "active" from a failed call.
func (o *Orchestrator) runVPNStage(ctx context.Context, runID int64) (*model.PipelineRun, error) {
	status, err := o.clients.VPN.Status(ctx)
	active := err == nil && status.IsActive()

	now := o.clock.Now()
	run, updErr := o.store.UpdatePipelineRun(ctx, runID, func(r *model.PipelineRun) error {
		ensureStarted(r, model.StageVPN, now)
		if active {
			r.FinishStage(model.StageVPN, model.StageCompleted, now)
		} else {
			r.FinishStage(model.StageVPN, model.StageFailed, now)
			r.Status = model.PipelineVPNWaiting
			if err != nil && siblings.IsUnreachable(err) {
				r.ErrorMessage = "vpn manager unreachable"
			} else {
				r.ErrorMessage = "VPN is not active"
			}
		}
		return nil
	})
	if updErr != nil {
		return nil, updErr
	}
	return run, nil
}
