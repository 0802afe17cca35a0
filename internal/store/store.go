// Package store is the system of record for pipeline runs, downloads, their
// history, the acquisition queue, subscriptions, RSS feeds/items and rules
// (C1, §3, §6). The database is the single source of truth: no component
// may hold authoritative state outside of it (§5 "Shared resource policy").
package store

import (
	"context"
	"errors"
	"time"

	"github.com/nself/content-acquisition/internal/model"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrInvalidTransition is returned by TransitionDownload when isAllowed rejects the move.
var ErrInvalidTransition = errors.New("store: invalid state transition")

// Store is the abstract transactional key-value + indexed table store C1
// requires. Implementations: SQLite (production, real row locks via
// BEGIN IMMEDIATE) and an in-memory double (tests, uses a RowLocker for the
// compensating single-writer mechanism per §9).
type Store interface {
	PipelineStore
	DownloadStore
	QueueStore
	SubscriptionStore
	RSSStore
	RuleStore

	Close() error
}

// PipelineStore persists PipelineRun rows.
type PipelineStore interface {
	CreatePipelineRun(ctx context.Context, run *model.PipelineRun) (int64, error)
	GetPipelineRun(ctx context.Context, id int64) (*model.PipelineRun, error)
	// UpdatePipelineRun loads the run, applies fn, and persists the result
	// in one transaction. fn mutating the run in place is how stage
	// transitions and aggregate status changes are written (mirrors the
	// teacher's UpdateSession(id, fn) pattern).
	UpdatePipelineRun(ctx context.Context, id int64, fn func(*model.PipelineRun) error) (*model.PipelineRun, error)
	// ListNonTerminalPipelineRuns supports crash recovery (§5): every
	// non-terminal run is handed to the retry planner on restart.
	ListNonTerminalPipelineRuns(ctx context.Context) ([]*model.PipelineRun, error)
	ListPipelineRunsByAccountStatus(ctx context.Context, accountID string, status model.PipelineStatus) ([]*model.PipelineRun, error)
}

// DownloadStore persists Download rows and their append-only history.
type DownloadStore interface {
	CreateDownload(ctx context.Context, d *model.Download) error
	GetDownload(ctx context.Context, id string) (*model.Download, error)
	ListDownloadsByAccount(ctx context.Context, accountID string) ([]*model.Download, error)
	ListDownloadsByState(ctx context.Context, accountID string, state model.DownloadState) ([]*model.Download, error)

	// TransitionDownload performs the full §4.2 contract atomically: row
	// lock, validate via isAllowed, update state + updated_at, append a
	// history row, commit. Returns ErrInvalidTransition (wrapped) and
	// leaves the row and history untouched if isAllowed rejects the move.
	TransitionDownload(
		ctx context.Context,
		id string,
		to model.DownloadState,
		isAllowed func(from model.DownloadState) bool,
		metadata model.JSONBlob,
	) (*model.Download, error)

	// IncrementRetryCount increments retry_count and clears error_message.
	// It is a write of its own, separate from TransitionDownload: the
	// failed->created retry (§4.2 "Retry") calls the two one after the
	// other, so they are not applied in one transaction.
	IncrementRetryCount(ctx context.Context, id string) error

	ListDownloadHistory(ctx context.Context, downloadID string) ([]*model.DownloadStateHistory, error)
}

// QueueStore persists the acquisition priority queue (C6, §4.5).
type QueueStore interface {
	// AddToQueue upserts: if downloadID already has an entry, its priority
	// is updated instead of creating a duplicate row (§3 invariant: a
	// download appears at most once).
	AddToQueue(ctx context.Context, entry model.AcquisitionQueueEntry) error
	// RemoveFromQueue is idempotent: removing an absent entry is a no-op.
	RemoveFromQueue(ctx context.Context, downloadID string) error
	// PopNextQueueEntry returns and removes the highest-priority, oldest
	// entry (priority DESC, created_at ASC), or ErrNotFound if empty.
	PopNextQueueEntry(ctx context.Context) (*model.AcquisitionQueueEntry, error)
	QueueDepth(ctx context.Context, accountID string) (int, error)
}

// SubscriptionStore persists account subscriptions.
type SubscriptionStore interface {
	CreateSubscription(ctx context.Context, s *model.Subscription) (int64, error)
	ListEnabledSubscriptions(ctx context.Context, accountID string) ([]*model.Subscription, error)
	// ListAllEnabledSubscriptions lists enabled subscriptions across every
	// account. RSS feeds are not account-scoped (§4.3), so the ingestor
	// matches each new item against every account's subscriptions rather
	// than a single account's.
	ListAllEnabledSubscriptions(ctx context.Context) ([]*model.Subscription, error)
}

// RSSStore persists feeds and ingested feed items.
type RSSStore interface {
	ListDueFeeds(ctx context.Context, now time.Time) ([]*model.RSSFeed, error)
	UpdateFeedCheckResult(ctx context.Context, feedID int64, now time.Time, success bool, errMsg string, nextCheck time.Time) error

	// UpsertFeedItem inserts a new (feed_id, title) row or returns the
	// existing one unmutated (§3 invariant: upsert never mutates an
	// existing row). created reports whether a new row was inserted.
	UpsertFeedItem(ctx context.Context, item *model.RSSFeedItem) (created bool, err error)
	UpdateFeedItemStatus(ctx context.Context, itemID int64, status model.RSSItemStatus, matchedSubscriptionID *int64, rejectionReason string) error
}

// RuleStore persists download rules (§4.7).
type RuleStore interface {
	ListEnabledRules(ctx context.Context, accountID string) ([]*model.DownloadRule, error)
}
