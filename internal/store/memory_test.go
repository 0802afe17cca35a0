package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nself/content-acquisition/internal/model"
)

func newTestDownload(id string) *model.Download {
	now := time.Now().UTC()
	return &model.Download{
		ID:        id,
		AccountID: "acct-1",
		Title:     "The Matrix",
		State:     model.StateCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCreateDownloadSeedsInitialHistoryRow(t *testing.T) {
	m := NewMemory()
	d := newTestDownload("dl-1")
	if err := m.CreateDownload(context.Background(), d); err != nil {
		t.Fatalf("CreateDownload: %v", err)
	}

	history, err := m.ListDownloadHistory(context.Background(), "dl-1")
	if err != nil {
		t.Fatalf("ListDownloadHistory: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("len(history) = %d, want 1", len(history))
	}
	if history[0].FromState != nil {
		t.Errorf("FromState = %v, want nil for the creation row", history[0].FromState)
	}
	if history[0].ToState != model.StateCreated {
		t.Errorf("ToState = %v, want created", history[0].ToState)
	}
}

func TestTransitionDownloadRejectsDisallowedMove(t *testing.T) {
	m := NewMemory()
	d := newTestDownload("dl-1")
	if err := m.CreateDownload(context.Background(), d); err != nil {
		t.Fatalf("CreateDownload: %v", err)
	}

	neverAllowed := func(model.DownloadState) bool { return false }
	_, err := m.TransitionDownload(context.Background(), "dl-1", model.StateCompleted, neverAllowed, nil)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}

	got, err := m.GetDownload(context.Background(), "dl-1")
	if err != nil {
		t.Fatalf("GetDownload: %v", err)
	}
	if got.State != model.StateCreated {
		t.Errorf("State = %v, want unchanged (created)", got.State)
	}
}

func TestTransitionDownloadRecordsFromAndToState(t *testing.T) {
	m := NewMemory()
	d := newTestDownload("dl-1")
	if err := m.CreateDownload(context.Background(), d); err != nil {
		t.Fatalf("CreateDownload: %v", err)
	}

	alwaysAllowed := func(model.DownloadState) bool { return true }
	updated, err := m.TransitionDownload(context.Background(), "dl-1", model.StateVPNConnecting, alwaysAllowed, model.JSONBlob{"note": "go"})
	if err != nil {
		t.Fatalf("TransitionDownload: %v", err)
	}
	if updated.State != model.StateVPNConnecting {
		t.Fatalf("State = %v, want vpn_connecting", updated.State)
	}

	history, err := m.ListDownloadHistory(context.Background(), "dl-1")
	if err != nil {
		t.Fatalf("ListDownloadHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("len(history) = %d, want 2", len(history))
	}
	last := history[1]
	if last.FromState == nil || *last.FromState != model.StateCreated {
		t.Errorf("FromState = %v, want created", last.FromState)
	}
	if last.ToState != model.StateVPNConnecting {
		t.Errorf("ToState = %v, want vpn_connecting", last.ToState)
	}
	if last.Metadata["note"] != "go" {
		t.Errorf("Metadata = %v", last.Metadata)
	}
}

func TestTransitionDownloadUnknownIDReturnsNotFound(t *testing.T) {
	m := NewMemory()
	alwaysAllowed := func(model.DownloadState) bool { return true }
	_, err := m.TransitionDownload(context.Background(), "missing", model.StateCompleted, alwaysAllowed, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestIncrementRetryCountClearsErrorMessage(t *testing.T) {
	m := NewMemory()
	d := newTestDownload("dl-1")
	d.ErrorMessage = "torrent submit failed"
	if err := m.CreateDownload(context.Background(), d); err != nil {
		t.Fatalf("CreateDownload: %v", err)
	}

	if err := m.IncrementRetryCount(context.Background(), "dl-1"); err != nil {
		t.Fatalf("IncrementRetryCount: %v", err)
	}

	got, err := m.GetDownload(context.Background(), "dl-1")
	if err != nil {
		t.Fatalf("GetDownload: %v", err)
	}
	if got.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", got.RetryCount)
	}
	if got.ErrorMessage != "" {
		t.Errorf("ErrorMessage = %q, want cleared", got.ErrorMessage)
	}
}

func TestAddToQueueUpsertsPriorityWithoutDuplicating(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	entry := model.AcquisitionQueueEntry{DownloadID: "dl-1", AccountID: "acct-1", Priority: 1}
	if err := m.AddToQueue(ctx, entry); err != nil {
		t.Fatalf("AddToQueue: %v", err)
	}
	entry.Priority = 9
	if err := m.AddToQueue(ctx, entry); err != nil {
		t.Fatalf("AddToQueue (upsert): %v", err)
	}

	depth, err := m.QueueDepth(ctx, "acct-1")
	if err != nil {
		t.Fatalf("QueueDepth: %v", err)
	}
	if depth != 1 {
		t.Fatalf("QueueDepth = %d, want 1 (upsert, not duplicate)", depth)
	}

	popped, err := m.PopNextQueueEntry(ctx)
	if err != nil {
		t.Fatalf("PopNextQueueEntry: %v", err)
	}
	if popped.Priority != 9 {
		t.Errorf("Priority = %d, want 9 (the updated value)", popped.Priority)
	}
}

func TestPopNextQueueEntryOrdersPriorityDescThenCreatedAtAsc(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()
	_ = m.AddToQueue(ctx, model.AcquisitionQueueEntry{DownloadID: "low", AccountID: "a", Priority: 1, CreatedAt: now})
	_ = m.AddToQueue(ctx, model.AcquisitionQueueEntry{DownloadID: "high-later", AccountID: "a", Priority: 5, CreatedAt: now.Add(time.Minute)})
	_ = m.AddToQueue(ctx, model.AcquisitionQueueEntry{DownloadID: "high-earlier", AccountID: "a", Priority: 5, CreatedAt: now})

	first, err := m.PopNextQueueEntry(ctx)
	if err != nil {
		t.Fatalf("PopNextQueueEntry: %v", err)
	}
	if first.DownloadID != "high-earlier" {
		t.Fatalf("first = %q, want high-earlier (same priority, earlier created_at wins)", first.DownloadID)
	}

	second, err := m.PopNextQueueEntry(ctx)
	if err != nil {
		t.Fatalf("PopNextQueueEntry: %v", err)
	}
	if second.DownloadID != "high-later" {
		t.Fatalf("second = %q, want high-later", second.DownloadID)
	}

	third, err := m.PopNextQueueEntry(ctx)
	if err != nil {
		t.Fatalf("PopNextQueueEntry: %v", err)
	}
	if third.DownloadID != "low" {
		t.Fatalf("third = %q, want low", third.DownloadID)
	}
}

func TestRemoveFromQueueIsIdempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if err := m.RemoveFromQueue(ctx, "never-added"); err != nil {
		t.Fatalf("RemoveFromQueue on missing entry should not error, got %v", err)
	}
}

func TestListEnabledSubscriptionsScopesByAccount(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_, _ = m.CreateSubscription(ctx, &model.Subscription{AccountID: "a", ContentName: "X", Enabled: true})
	_, _ = m.CreateSubscription(ctx, &model.Subscription{AccountID: "b", ContentName: "Y", Enabled: true})
	_, _ = m.CreateSubscription(ctx, &model.Subscription{AccountID: "a", ContentName: "Z", Enabled: false})

	subs, err := m.ListEnabledSubscriptions(ctx, "a")
	if err != nil {
		t.Fatalf("ListEnabledSubscriptions: %v", err)
	}
	if len(subs) != 1 || subs[0].ContentName != "X" {
		t.Fatalf("subs = %+v, want only the enabled subscription for account a", subs)
	}

	all, err := m.ListAllEnabledSubscriptions(ctx)
	if err != nil {
		t.Fatalf("ListAllEnabledSubscriptions: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len(all) = %d, want 2 (account-agnostic, enabled only)", len(all))
	}
}

func TestListNonTerminalPipelineRuns(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	running := model.NewPipelineRun("a", "X", "movie", model.TriggerManual, model.PipelineMetadata{})
	completed := model.NewPipelineRun("a", "Y", "movie", model.TriggerManual, model.PipelineMetadata{})
	completed.Status = model.PipelineCompleted

	runningID, _ := m.CreatePipelineRun(ctx, running)
	_, _ = m.CreatePipelineRun(ctx, completed)

	nonTerminal, err := m.ListNonTerminalPipelineRuns(ctx)
	if err != nil {
		t.Fatalf("ListNonTerminalPipelineRuns: %v", err)
	}
	if len(nonTerminal) != 1 || nonTerminal[0].ID != runningID {
		t.Fatalf("nonTerminal = %+v, want only the running run", nonTerminal)
	}
}
