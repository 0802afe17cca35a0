// Package queue is the priority acquisition queue (C6, §4.5): a thin
// semantic wrapper over store.QueueStore that fills in defaults.
package queue

import (
	"context"
	"time"

	"github.com/nself/content-acquisition/internal/model"
	"github.com/nself/content-acquisition/internal/store"
)

// Queue wraps a store.QueueStore with the §4.5 default-priority and
// clock-supplied CreatedAt behavior.
type Queue struct {
	store store.QueueStore
	now   func() time.Time
}

// New constructs a Queue. now defaults to time.Now if nil.
func New(s store.QueueStore, now func() time.Time) *Queue {
	if now == nil {
		now = time.Now
	}
	return &Queue{store: s, now: now}
}

// Add upserts downloadID into the queue at priority (DefaultPriority if 0).
// On conflict, the existing entry's priority is updated (§4.5).
func (q *Queue) Add(ctx context.Context, downloadID, accountID string, priority int) error {
	if priority == 0 {
		priority = model.DefaultPriority
	}
	return q.store.AddToQueue(ctx, model.AcquisitionQueueEntry{
		DownloadID: downloadID,
		AccountID:  accountID,
		Priority:   priority,
		CreatedAt:  q.now(),
	})
}

// Remove is idempotent: removing an absent entry is a no-op (§4.5).
func (q *Queue) Remove(ctx context.Context, downloadID string) error {
	return q.store.RemoveFromQueue(ctx, downloadID)
}

// Pop returns and removes the highest-priority, oldest entry
// (priority DESC, created_at ASC), or store.ErrNotFound if empty.
func (q *Queue) Pop(ctx context.Context) (*model.AcquisitionQueueEntry, error) {
	return q.store.PopNextQueueEntry(ctx)
}

// Depth counts non-terminal entries for an account.
func (q *Queue) Depth(ctx context.Context, accountID string) (int, error) {
	return q.store.QueueDepth(ctx, accountID)
}
