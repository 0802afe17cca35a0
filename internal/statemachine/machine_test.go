package statemachine

import (
	"context"
	"testing"

	"github.com/nself/content-acquisition/internal/model"
	"github.com/nself/content-acquisition/internal/store"
)

func newTestDownload(t *testing.T, s *store.Memory, state model.DownloadState) string {
	t.Helper()
	d := &model.Download{
		ID:          "dl-1",
		AccountID:   "acct-1",
		ContentType: "movie",
		Title:       "Test Movie",
		State:       state,
	}
	if err := s.CreateDownload(context.Background(), d); err != nil {
		t.Fatalf("CreateDownload: %v", err)
	}
	return d.ID
}

func TestMachineTransitionRejectsInvalidMove(t *testing.T) {
	s := store.NewMemory()
	id := newTestDownload(t, s, model.StateCreated)
	m := New(s)

	_, err := m.Transition(context.Background(), id, model.StateDownloading, nil)
	if err == nil {
		t.Fatalf("expected invalid transition to be rejected")
	}
}

func TestMachineTransitionAppliesValidMove(t *testing.T) {
	s := store.NewMemory()
	id := newTestDownload(t, s, model.StateCreated)
	m := New(s)

	d, err := m.Transition(context.Background(), id, model.StateVPNConnecting, nil)
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if d.State != model.StateVPNConnecting {
		t.Errorf("State = %s, want vpn_connecting", d.State)
	}
}

func TestMachineRetryResetsToCreatedAndBumpsCount(t *testing.T) {
	s := store.NewMemory()
	id := newTestDownload(t, s, model.StateFailed)
	m := New(s)

	d, err := m.Retry(context.Background(), id)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if d.State != model.StateCreated {
		t.Errorf("State = %s, want created", d.State)
	}
	if d.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", d.RetryCount)
	}
	if d.ErrorMessage != "" {
		t.Errorf("ErrorMessage = %q, want empty", d.ErrorMessage)
	}
}

func TestResumeStateDefaultsToDownloading(t *testing.T) {
	if got := ResumeState(nil); got != model.StateDownloading {
		t.Errorf("ResumeState(nil) = %s, want downloading", got)
	}
}

func TestResumeStateFindsMostRecentPauseOrigin(t *testing.T) {
	searching := model.StateSearching
	downloading := model.StateDownloading
	history := []*model.DownloadStateHistory{
		{FromState: &searching, ToState: model.StatePaused},
		{FromState: &searching, ToState: model.StateSearching},
		{FromState: &downloading, ToState: model.StatePaused},
	}
	if got := ResumeState(history); got != model.StateDownloading {
		t.Errorf("ResumeState = %s, want downloading (most recent pause origin)", got)
	}
}

func TestMachineResumeTransitionsToOriginState(t *testing.T) {
	s := store.NewMemory()
	id := newTestDownload(t, s, model.StateSearching)
	m := New(s)

	if _, err := m.Transition(context.Background(), id, model.StatePaused, nil); err != nil {
		t.Fatalf("pause transition: %v", err)
	}

	d, err := m.Resume(context.Background(), id)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if d.State != model.StateSearching {
		t.Errorf("State = %s, want searching (resumed to pre-pause state)", d.State)
	}
}
