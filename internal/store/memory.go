package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nself/content-acquisition/internal/model"
	"github.com/nself/content-acquisition/internal/resilience"
)

// Memory is an in-process Store used by tests and the Open Questions'
// worked examples. It cannot provide a real "SELECT ... FOR UPDATE", so
// TransitionDownload uses a resilience.RowLocker as the compensating
// mechanism described in §9.
type Memory struct {
	mu sync.Mutex

	nextRunID  int64
	runs       map[int64]*model.PipelineRun
	downloads  map[string]*model.Download
	history    map[string][]*model.DownloadStateHistory
	queue      map[string]model.AcquisitionQueueEntry
	subs       map[int64]*model.Subscription
	nextSubID  int64
	feeds      map[int64]*model.RSSFeed
	feedItems  map[int64]*model.RSSFeedItem
	nextItemID int64
	rules      map[int64]*model.DownloadRule

	locker resilience.RowLocker
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		runs:      make(map[int64]*model.PipelineRun),
		downloads: make(map[string]*model.Download),
		history:   make(map[string][]*model.DownloadStateHistory),
		queue:     make(map[string]model.AcquisitionQueueEntry),
		subs:      make(map[int64]*model.Subscription),
		feeds:     make(map[int64]*model.RSSFeed),
		feedItems: make(map[int64]*model.RSSFeedItem),
		rules:     make(map[int64]*model.DownloadRule),
		locker:    resilience.NewLocalRowLocker(),
	}
}

func (m *Memory) Close() error { return nil }

// --- PipelineStore ---

func (m *Memory) CreatePipelineRun(_ context.Context, run *model.PipelineRun) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextRunID++
	run.ID = m.nextRunID
	cp := cloneRun(run)
	m.runs[run.ID] = cp
	return run.ID, nil
}

func (m *Memory) GetPipelineRun(_ context.Context, id int64) (*model.PipelineRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRun(r), nil
}

func (m *Memory) UpdatePipelineRun(_ context.Context, id int64, fn func(*model.PipelineRun) error) (*model.PipelineRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	working := cloneRun(r)
	if err := fn(working); err != nil {
		return nil, err
	}
	m.runs[id] = cloneRun(working)
	return cloneRun(working), nil
}

func (m *Memory) ListNonTerminalPipelineRuns(_ context.Context) ([]*model.PipelineRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PipelineRun
	for _, r := range m.runs {
		if !r.Status.Terminal() {
			out = append(out, cloneRun(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ListPipelineRunsByAccountStatus(_ context.Context, accountID string, status model.PipelineStatus) ([]*model.PipelineRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PipelineRun
	for _, r := range m.runs {
		if r.AccountID == accountID && r.Status == status {
			out = append(out, cloneRun(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- DownloadStore ---

func (m *Memory) CreateDownload(_ context.Context, d *model.Download) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.downloads[d.ID] = &cp
	m.history[d.ID] = append(m.history[d.ID], &model.DownloadStateHistory{
		DownloadID: d.ID,
		FromState:  nil,
		ToState:    d.State,
		CreatedAt:  time.Now().UTC(),
	})
	return nil
}

func (m *Memory) GetDownload(_ context.Context, id string) (*model.Download, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.downloads[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *Memory) ListDownloadsByAccount(_ context.Context, accountID string) ([]*model.Download, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Download
	for _, d := range m.downloads {
		if d.AccountID == accountID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Memory) ListDownloadsByState(_ context.Context, accountID string, state model.DownloadState) ([]*model.Download, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Download
	for _, d := range m.downloads {
		if d.AccountID == accountID && d.State == state {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Memory) TransitionDownload(
	ctx context.Context,
	id string,
	to model.DownloadState,
	isAllowed func(from model.DownloadState) bool,
	metadata model.JSONBlob,
) (*model.Download, error) {
	release, err := m.locker.Lock(ctx, "download:"+id)
	if err != nil {
		return nil, err
	}
	defer release()

	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.downloads[id]
	if !ok {
		return nil, ErrNotFound
	}
	from := d.State
	if !isAllowed(from) {
		return nil, ErrInvalidTransition
	}

	now := time.Now().UTC()
	fromCopy := from
	d.State = to
	d.UpdatedAt = now
	m.history[id] = append(m.history[id], &model.DownloadStateHistory{
		DownloadID: id,
		FromState:  &fromCopy,
		ToState:    to,
		Metadata:   metadata,
		CreatedAt:  now,
	})

	cp := *d
	return &cp, nil
}

func (m *Memory) IncrementRetryCount(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.downloads[id]
	if !ok {
		return ErrNotFound
	}
	d.RetryCount++
	d.ErrorMessage = ""
	d.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) ListDownloadHistory(_ context.Context, downloadID string) ([]*model.DownloadStateHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.history[downloadID]
	out := make([]*model.DownloadStateHistory, len(rows))
	for i, r := range rows {
		cp := *r
		out[i] = &cp
	}
	return out, nil
}

// --- QueueStore ---

func (m *Memory) AddToQueue(_ context.Context, entry model.AcquisitionQueueEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.queue[entry.DownloadID]
	if ok {
		existing.Priority = entry.Priority
		m.queue[entry.DownloadID] = existing
		return nil
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	m.queue[entry.DownloadID] = entry
	return nil
}

func (m *Memory) RemoveFromQueue(_ context.Context, downloadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.queue, downloadID)
	return nil
}

func (m *Memory) PopNextQueueEntry(_ context.Context) (*model.AcquisitionQueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return nil, ErrNotFound
	}
	var best *model.AcquisitionQueueEntry
	for _, e := range m.queue {
		e := e
		if best == nil || higherPriority(e, *best) {
			best = &e
		}
	}
	delete(m.queue, best.DownloadID)
	return best, nil
}

func higherPriority(a, b model.AcquisitionQueueEntry) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func (m *Memory) QueueDepth(_ context.Context, accountID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.queue {
		if accountID == "" || e.AccountID == accountID {
			n++
		}
	}
	return n, nil
}

// --- SubscriptionStore ---

func (m *Memory) CreateSubscription(_ context.Context, s *model.Subscription) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSubID++
	s.ID = m.nextSubID
	cp := *s
	m.subs[s.ID] = &cp
	return s.ID, nil
}

func (m *Memory) ListEnabledSubscriptions(_ context.Context, accountID string) ([]*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Subscription
	for _, s := range m.subs {
		if s.AccountID == accountID && s.Enabled {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Memory) ListAllEnabledSubscriptions(_ context.Context) ([]*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Subscription
	for _, s := range m.subs {
		if s.Enabled {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- RSSStore ---

func (m *Memory) ListDueFeeds(_ context.Context, now time.Time) ([]*model.RSSFeed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.RSSFeed
	for _, f := range m.feeds {
		if !f.Enabled {
			continue
		}
		if f.NextCheckAt == nil || !f.NextCheckAt.After(now) {
			cp := *f
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].NextCheckAt, out[j].NextCheckAt
		if a == nil {
			return b != nil || out[i].ID < out[j].ID
		}
		if b == nil {
			return false
		}
		return a.Before(*b)
	})
	return out, nil
}

func (m *Memory) UpdateFeedCheckResult(_ context.Context, feedID int64, now time.Time, success bool, errMsg string, nextCheck time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.feeds[feedID]
	if !ok {
		return ErrNotFound
	}
	f.LastCheckAt = &now
	if success {
		f.LastSuccessAt = &now
		f.ConsecutiveFailures = 0
		f.LastError = ""
	} else {
		f.ConsecutiveFailures++
		f.LastError = errMsg
	}
	nc := nextCheck
	f.NextCheckAt = &nc
	return nil
}

func (m *Memory) UpsertFeedItem(_ context.Context, item *model.RSSFeedItem) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.feedItems {
		if existing.FeedID == item.FeedID && existing.Title == item.Title {
			*item = *existing
			return false, nil
		}
	}
	m.nextItemID++
	item.ID = m.nextItemID
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	if item.Status == "" {
		item.Status = model.RSSItemPending
	}
	cp := *item
	m.feedItems[item.ID] = &cp
	return true, nil
}

func (m *Memory) UpdateFeedItemStatus(_ context.Context, itemID int64, status model.RSSItemStatus, matchedSubscriptionID *int64, rejectionReason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.feedItems[itemID]
	if !ok {
		return ErrNotFound
	}
	item.Status = status
	item.MatchedSubscriptionID = matchedSubscriptionID
	item.RejectionReason = rejectionReason
	return nil
}

// --- RuleStore ---

func (m *Memory) ListEnabledRules(_ context.Context, accountID string) ([]*model.DownloadRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.DownloadRule
	for _, r := range m.rules {
		if r.AccountID == accountID && r.Enabled {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}

// --- test/seed helpers (not part of the Store interface) ---

// SeedFeed inserts a feed directly, bypassing ingestion, for test setup.
func (m *Memory) SeedFeed(f *model.RSSFeed) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f.ID == 0 {
		f.ID = int64(len(m.feeds) + 1)
	}
	cp := *f
	m.feeds[f.ID] = &cp
}

// SeedRule inserts a download rule directly, for test setup.
func (m *Memory) SeedRule(r *model.DownloadRule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == 0 {
		r.ID = int64(len(m.rules) + 1)
	}
	cp := *r
	m.rules[r.ID] = &cp
}

func cloneRun(r *model.PipelineRun) *model.PipelineRun {
	cp := *r
	cp.Stages = make(map[model.Stage]model.StageFields, len(r.Stages))
	for k, v := range r.Stages {
		cp.Stages[k] = v
	}
	if r.Metadata.Extra != nil {
		extra := make(model.JSONBlob, len(r.Metadata.Extra))
		for k, v := range r.Metadata.Extra {
			extra[k] = v
		}
		cp.Metadata.Extra = extra
	}
	return &cp
}
