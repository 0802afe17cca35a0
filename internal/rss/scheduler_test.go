package rss

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/nself/content-acquisition/internal/clock"
	"github.com/nself/content-acquisition/internal/config"
	"github.com/nself/content-acquisition/internal/model"
	"github.com/nself/content-acquisition/internal/store"
)

func TestTickChecksDueFeedsAndRecordsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(sampleFeedXML))
	}))
	defer srv.Close()

	s := store.NewMemory()
	s.SeedFeed(&model.RSSFeed{URL: srv.URL, Enabled: true, CheckIntervalMinutes: 10})

	sched := &Scheduler{
		store:          s,
		fetcher:        NewFetcher(time.Second),
		exec:           newFakeExecutor(),
		clock:          clock.Real{},
		checkInterval:  time.Minute,
		workerLimit:    4,
		fuzzyThreshold: 0.8,
		log:            zerolog.Nop(),
	}

	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	feeds, err := s.ListDueFeeds(context.Background(), time.Now().Add(365*24*time.Hour))
	if err != nil {
		t.Fatalf("ListDueFeeds: %v", err)
	}
	if len(feeds) != 1 {
		t.Fatalf("len(feeds) = %d, want 1", len(feeds))
	}
	f := feeds[0]
	if f.LastSuccessAt == nil {
		t.Error("expected LastSuccessAt to be set after a successful check")
	}
	if f.ConsecutiveFailures != 0 {
		t.Errorf("ConsecutiveFailures = %d, want 0", f.ConsecutiveFailures)
	}
	if f.NextCheckAt == nil || !f.NextCheckAt.After(time.Now()) {
		t.Error("expected NextCheckAt to be pushed into the future")
	}
}

func TestTickRecordsFailureOnFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := store.NewMemory()
	s.SeedFeed(&model.RSSFeed{URL: srv.URL, Enabled: true, CheckIntervalMinutes: 10})

	sched := &Scheduler{
		store:          s,
		fetcher:        NewFetcher(time.Second),
		exec:           newFakeExecutor(),
		clock:          clock.Real{},
		checkInterval:  time.Minute,
		workerLimit:    4,
		fuzzyThreshold: 0.8,
		log:            zerolog.Nop(),
	}

	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	feeds, err := s.ListDueFeeds(context.Background(), time.Now().Add(365*24*time.Hour))
	if err != nil {
		t.Fatalf("ListDueFeeds: %v", err)
	}
	if len(feeds) != 1 {
		t.Fatalf("len(feeds) = %d, want 1", len(feeds))
	}
	f := feeds[0]
	if f.ConsecutiveFailures != 1 {
		t.Errorf("ConsecutiveFailures = %d, want 1", f.ConsecutiveFailures)
	}
	if f.LastError == "" {
		t.Error("expected LastError to be recorded")
	}
}

func TestTickSkipsDisabledAndNotYetDueFeeds(t *testing.T) {
	s := store.NewMemory()
	future := time.Now().Add(time.Hour)
	s.SeedFeed(&model.RSSFeed{URL: "http://example/disabled", Enabled: false})
	s.SeedFeed(&model.RSSFeed{URL: "http://example/not-due", Enabled: true, NextCheckAt: &future})

	sched := &Scheduler{
		store:          s,
		fetcher:        NewFetcher(time.Second),
		exec:           newFakeExecutor(),
		clock:          clock.Real{},
		checkInterval:  time.Minute,
		workerLimit:    4,
		fuzzyThreshold: 0.8,
		log:            zerolog.Nop(),
	}

	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
}

func TestReconfigureUpdatesThresholds(t *testing.T) {
	sched := &Scheduler{
		checkInterval:  time.Minute,
		workerLimit:    4,
		fuzzyThreshold: 0.8,
	}
	sched.Reconfigure(&config.Resolved{
		RSSCheckInterval:     5 * time.Minute,
		RSSWorkerConcurrency: 8,
		FuzzyMatchThreshold:  0.5,
	})

	if got := sched.checkIntervalValue(); got != 5*time.Minute {
		t.Errorf("checkInterval = %v, want 5m", got)
	}
	if got := sched.workerLimitValue(); got != 8 {
		t.Errorf("workerLimit = %d, want 8", got)
	}
	if got := sched.fuzzyThresholdValue(); got != 0.5 {
		t.Errorf("fuzzyThreshold = %v, want 0.5", got)
	}
}
