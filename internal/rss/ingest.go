package rss

import (
	"context"
	"fmt"
	"strings"

	"github.com/nself/content-acquisition/internal/matcher"
	"github.com/nself/content-acquisition/internal/model"
	"github.com/nself/content-acquisition/internal/store"
	"github.com/nself/content-acquisition/internal/xlog"
)

// Executor triggers a pipeline run toward completion. Satisfied by
// *orchestrator.Orchestrator.
type Executor interface {
	Execute(ctx context.Context, runID int64) error
}

// Store is the subset of store.Store the ingestor needs.
type Store interface {
	store.RSSStore
	store.SubscriptionStore
	store.RuleStore
	store.PipelineStore
}

// ingestFeed runs the §4.3 "Per-feed pipeline" for one feed's parsed items.
func (s *Scheduler) ingestFeed(ctx context.Context, feed *model.RSSFeed, items []Item) error {
	log := xlog.WithComponent("rss")

	for _, raw := range items {
		fp := matcher.Fingerprint(raw.Title)
		fp.SizeBytes = raw.Size
		fp.Seeders = raw.Seeders
		fp.Leechers = raw.Leechers

		item := &model.RSSFeedItem{
			FeedID:      feed.ID,
			Title:       raw.Title,
			Link:        raw.Link,
			PubDate:     raw.PubDate,
			Fingerprint: fp,
			Status:      model.RSSItemPending,
		}
		created, err := s.store.UpsertFeedItem(ctx, item)
		if err != nil {
			return fmt.Errorf("rss: upsert feed item %q: %w", raw.Title, err)
		}
		if !created {
			continue // existing (feed_id, title) row: never re-evaluated (§3 invariant)
		}

		sub, action, reason, err := s.findMatch(ctx, raw.Title, fp)
		if err != nil {
			return fmt.Errorf("rss: match feed item %q: %w", raw.Title, err)
		}

		if sub == nil {
			if err := s.store.UpdateFeedItemStatus(ctx, item.ID, model.RSSItemRejected, nil, reason); err != nil {
				return fmt.Errorf("rss: reject feed item %d: %w", item.ID, err)
			}
			s.metricItem("rejected")
			continue
		}

		switch action {
		case model.RuleActionSkip:
			if err := s.store.UpdateFeedItemStatus(ctx, item.ID, model.RSSItemRejected, nil, reason); err != nil {
				return fmt.Errorf("rss: reject feed item %d: %w", item.ID, err)
			}
			s.metricItem("rejected")

		case model.RuleActionNotify:
			if err := s.store.UpdateFeedItemStatus(ctx, item.ID, model.RSSItemMatched, &sub.ID, ""); err != nil {
				return fmt.Errorf("rss: mark feed item %d matched: %w", item.ID, err)
			}
			xlog.Audit(ctx, "rss.notify", "subscription matched, notify only", map[string]any{
				"feed_item_id":    item.ID,
				"subscription_id": sub.ID,
				"title":           raw.Title,
			})
			s.metricItem("matched")

		default: // auto-download
			runID, err := s.createRun(ctx, sub, raw, fp)
			if err != nil {
				return fmt.Errorf("rss: create run for feed item %d: %w", item.ID, err)
			}
			if err := s.store.UpdateFeedItemStatus(ctx, item.ID, model.RSSItemMatched, &sub.ID, ""); err != nil {
				return fmt.Errorf("rss: mark feed item %d matched: %w", item.ID, err)
			}
			s.dispatch(runID)
			s.metricItem("matched")
		}

		log.Debug().Str("title", raw.Title).Str("action", string(action)).Msg("rss item processed")
	}
	return nil
}

// findMatch evaluates every enabled subscription (account-agnostic: RSS
// feeds aren't account-scoped, §4.3) against the item's title and
// fingerprint using the §4.4 "Criteria match" (title fuzzy-match AND, if
// specified, year-equals AND quality-present), then evaluates that
// subscription account's enabled rules (§4.7, priority DESC) against a
// fingerprint-derived sample. The first rule that matches decides the
// action; with no matching rule, a subscription match alone defaults to
// auto-download.
func (s *Scheduler) findMatch(ctx context.Context, title string, fp model.Fingerprint) (*model.Subscription, model.DownloadRuleAction, string, error) {
	subs, err := s.store.ListAllEnabledSubscriptions(ctx)
	if err != nil {
		return nil, "", "", err
	}

	for _, sub := range subs {
		criteria := matcher.Criteria{
			DesiredTitle: sub.ContentName,
			Threshold:    s.fuzzyThresholdValue(),
			Year:         sub.Year,
			Qualities:    sub.Qualities,
		}
		if !matcher.Matches(title, fp, criteria) {
			continue
		}

		rules, err := s.store.ListEnabledRules(ctx, sub.AccountID)
		if err != nil {
			return nil, "", "", err
		}
		sample := fingerprintSample(fp)
		for _, rule := range rules {
			if matcher.EvaluateRule(rule.Conditions, sample) {
				return sub, rule.Action, "", nil
			}
		}
		return sub, model.RuleActionAutoDownload, "", nil
	}
	return nil, "", "no subscription matched", nil
}

func fingerprintSample(fp model.Fingerprint) map[string]any {
	return map[string]any{
		"title":    fp.NormalizedTitle,
		"year":     fp.Year,
		"quality":  strings.Join(fp.Qualities, ","),
		"season":   fp.Season,
		"episode":  fp.Episode,
		"group":    fp.Group,
		"seeders":  fp.Seeders,
		"leechers": fp.Leechers,
		"size":     fp.SizeBytes,
	}
}

// createRun seeds a PipelineRun per §4.3 step 4 and returns its ID.
func (s *Scheduler) createRun(ctx context.Context, sub *model.Subscription, raw Item, fp model.Fingerprint) (int64, error) {
	run := model.NewPipelineRun(sub.AccountID, raw.Title, string(sub.SubscriptionType), model.TriggerRSS, model.PipelineMetadata{
		MagnetURL: raw.Link,
		Extra: model.JSONBlob{
			"quality_profile_id": sub.QualityProfileID,
			"year":               fp.Year,
		},
	})
	return s.store.CreatePipelineRun(ctx, run)
}
