package rss

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/nself/content-acquisition/internal/clock"
	"github.com/nself/content-acquisition/internal/config"
	"github.com/nself/content-acquisition/internal/metrics"
	"github.com/nself/content-acquisition/internal/model"
	"github.com/nself/content-acquisition/internal/xlog"
)

// Scheduler runs the §4.3 background loop: tick at a coarse interval,
// check every due feed through a bounded worker pool. checkInterval,
// workerLimit and fuzzyThreshold are guarded by mu since config.Watch can
// reconfigure them from a different goroutine while Run is ticking.
type Scheduler struct {
	store   Store
	fetcher *Fetcher
	exec    Executor
	clock   clock.Clock
	log     zerolog.Logger

	mu             sync.RWMutex
	checkInterval  time.Duration
	workerLimit    int
	fuzzyThreshold float64
}

// New constructs a Scheduler.
func New(s Store, exec Executor, clk clock.Clock, cfg *config.Resolved) *Scheduler {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Scheduler{
		store:          s,
		fetcher:        NewFetcher(cfg.HTTPTimeout),
		exec:           exec,
		clock:          clk,
		checkInterval:  cfg.RSSCheckInterval,
		workerLimit:    cfg.RSSWorkerConcurrency,
		fuzzyThreshold: cfg.FuzzyMatchThreshold,
		log:            xlog.WithComponent("rss"),
	}
}

// Run ticks at the configured interval until ctx is cancelled, checking
// every due feed on each tick (§4.3 "Schedule", "Backpressure").
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if err := s.Tick(ctx); err != nil {
			s.log.Warn().Err(err).Msg("rss tick failed")
		}
		if err := s.clock.Sleep(ctx, s.checkIntervalValue()); err != nil {
			return nil
		}
	}
}

// Reconfigure applies a hot-reloaded config's thresholds. Sibling URLs
// never change at runtime; the check interval, worker concurrency and
// fuzzy match threshold do, and are picked up on the next tick/feed.
func (s *Scheduler) Reconfigure(cfg *config.Resolved) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkInterval = cfg.RSSCheckInterval
	s.workerLimit = cfg.RSSWorkerConcurrency
	s.fuzzyThreshold = cfg.FuzzyMatchThreshold
}

func (s *Scheduler) checkIntervalValue() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkInterval
}

func (s *Scheduler) workerLimitValue() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.workerLimit
}

func (s *Scheduler) fuzzyThresholdValue() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fuzzyThreshold
}

// Tick runs one scheduling pass over every currently-due feed.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.clock.Now()
	feeds, err := s.store.ListDueFeeds(ctx, now)
	if err != nil {
		return err
	}
	if len(feeds) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workerLimitValue())
	for _, feed := range feeds {
		feed := feed
		g.Go(func() error {
			s.checkFeed(gctx, feed)
			return nil
		})
	}
	return g.Wait()
}

// checkFeed implements one feed's check cycle: fetch, ingest, record
// result. Errors are recorded on the feed row rather than propagated, so
// one bad feed never blocks the others in the worker pool.
func (s *Scheduler) checkFeed(ctx context.Context, feed *model.RSSFeed) {
	now := s.clock.Now()
	nextCheck := now.Add(time.Duration(feed.CheckIntervalMinutes) * time.Minute)

	items, err := s.fetcher.Fetch(ctx, feed.URL)
	if err != nil {
		s.log.Warn().Err(err).Int64("feed_id", feed.ID).Msg("feed fetch failed")
		metrics.FeedCheckTotal.WithLabelValues("failure").Inc()
		_ = s.store.UpdateFeedCheckResult(ctx, feed.ID, now, false, err.Error(), nextCheck)
		return
	}

	if err := s.ingestFeed(ctx, feed, items); err != nil {
		s.log.Warn().Err(err).Int64("feed_id", feed.ID).Msg("feed ingest failed")
		metrics.FeedCheckTotal.WithLabelValues("failure").Inc()
		_ = s.store.UpdateFeedCheckResult(ctx, feed.ID, now, false, err.Error(), nextCheck)
		return
	}

	metrics.FeedCheckTotal.WithLabelValues("success").Inc()
	_ = s.store.UpdateFeedCheckResult(ctx, feed.ID, now, true, "", nextCheck)
}

// dispatch hands a newly-created run off to the orchestrator in its own
// goroutine: pipeline runs last hours, so ingestion must not block on them
// (§4.3 step 4 "trigger the orchestrator").
func (s *Scheduler) dispatch(runID int64) {
	go func() {
		if err := s.exec.Execute(context.Background(), runID); err != nil {
			s.log.Error().Err(err).Int64("run_id", runID).Msg("orchestrator execute failed")
		}
	}()
}

func (s *Scheduler) metricItem(outcome string) {
	metrics.RSSItemsTotal.WithLabelValues(outcome).Inc()
}
