package statemachine

import (
	"context"
	"fmt"

	"github.com/nself/content-acquisition/internal/model"
	"github.com/nself/content-acquisition/internal/store"
)

// Machine drives download transitions through a Store, applying the §4.2
// transition table as the isAllowed predicate.
type Machine struct {
	store store.DownloadStore
}

// New constructs a Machine over a DownloadStore.
func New(s store.DownloadStore) *Machine {
	return &Machine{store: s}
}

// Transition performs the full §4.2 operation: Transition(downloadID, to,
// metadata). The Store implementation owns the row lock, read-validate-
// write atomicity, and history append; IsAllowed is the validation rule.
func (m *Machine) Transition(ctx context.Context, downloadID string, to model.DownloadState, metadata model.JSONBlob) (*model.Download, error) {
	return m.store.TransitionDownload(ctx, downloadID, to, func(from model.DownloadState) bool {
		return IsAllowed(from, to)
	}, metadata)
}

// Retry performs the failed -> created retry path: transitions the
// download, then increments retry_count and clears error_message (§4.2
// "Retry").
func (m *Machine) Retry(ctx context.Context, downloadID string) (*model.Download, error) {
	d, err := m.Transition(ctx, downloadID, model.StateCreated, nil)
	if err != nil {
		return nil, fmt.Errorf("statemachine: retry: %w", err)
	}
	if err := m.store.IncrementRetryCount(ctx, downloadID); err != nil {
		return nil, fmt.Errorf("statemachine: retry: bump retry count: %w", err)
	}
	d.RetryCount++
	d.ErrorMessage = ""
	return d, nil
}

// ResumeState walks a download's history in reverse to find the most
// recent transition into paused, and returns that event's from_state — the
// state the download should resume into. Defaults to StateDownloading if
// history is missing or carries no such event (§4.2 "Resume-from-pause").
func ResumeState(history []*model.DownloadStateHistory) model.DownloadState {
	for i := len(history) - 1; i >= 0; i-- {
		h := history[i]
		if h.ToState == model.StatePaused && h.FromState != nil {
			return *h.FromState
		}
	}
	return model.StateDownloading
}

// Resume transitions a paused download back to its pre-pause state,
// looking up history itself.
func (m *Machine) Resume(ctx context.Context, downloadID string) (*model.Download, error) {
	history, err := m.store.ListDownloadHistory(ctx, downloadID)
	if err != nil {
		return nil, fmt.Errorf("statemachine: resume: load history: %w", err)
	}
	to := ResumeState(history)
	return m.Transition(ctx, downloadID, to, nil)
}
