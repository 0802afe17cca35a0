package model

import "time"

// SubscriptionType identifies what kind of content a Subscription wants.
type SubscriptionType string

const (
	SubscriptionTVShow           SubscriptionType = "tv_show"
	SubscriptionMovieCollection  SubscriptionType = "movie_collection"
	SubscriptionArtist           SubscriptionType = "artist"
	SubscriptionPodcast          SubscriptionType = "podcast"
)

// Subscription is an account-scoped rule describing wanted content.
type Subscription struct {
	ID               int64
	AccountID        string
	SubscriptionType SubscriptionType
	ContentName      string
	QualityProfileID string
	// Year and Qualities are the optional §4.4 "Criteria match" gates
	// applied on top of the mandatory title fuzzy match: Year, if
	// non-zero, must equal the matched item's extracted year; Qualities,
	// if non-empty, requires at least one entry present in the item's
	// extracted qualities.
	Year            int
	Qualities       []string
	Enabled         bool
	FutureSeasons   bool
	ExistingSeasons bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// FeedType identifies the kind of content an RSSFeed carries.
type FeedType string

const (
	FeedTVShows FeedType = "tv_shows"
	FeedMovies  FeedType = "movies"
	FeedAnime   FeedType = "anime"
	FeedMusic   FeedType = "music"
)

// RSSFeed is a configured, periodically-checked feed source.
type RSSFeed struct {
	ID                   int64
	URL                  string
	FeedType             FeedType
	Enabled              bool
	CheckIntervalMinutes int
	LastCheckAt          *time.Time
	LastSuccessAt        *time.Time
	ConsecutiveFailures  int
	LastError            string
	NextCheckAt          *time.Time
	QualityProfileID     string
}

// RSSItemStatus is the lifecycle status of an ingested feed item.
type RSSItemStatus string

const (
	RSSItemPending     RSSItemStatus = "pending"
	RSSItemMatched     RSSItemStatus = "matched"
	RSSItemRejected    RSSItemStatus = "rejected"
	RSSItemDownloading RSSItemStatus = "downloading"
	RSSItemCompleted   RSSItemStatus = "completed"
)

// RSSFeedItem is a deduped, fingerprinted item parsed from a feed.
type RSSFeedItem struct {
	ID                    int64
	FeedID                int64
	Title                 string
	Link                  string
	PubDate               time.Time
	Fingerprint           Fingerprint
	Status                RSSItemStatus
	MatchedSubscriptionID *int64
	RejectionReason       string
	CreatedAt             time.Time
}

// DownloadRuleAction is the action a rule prescribes on match.
type DownloadRuleAction string

const (
	RuleActionAutoDownload DownloadRuleAction = "auto-download"
	RuleActionNotify       DownloadRuleAction = "notify"
	RuleActionSkip         DownloadRuleAction = "skip"
)

// DownloadRule is a JSON-predicate rule evaluated against a sample mapping (§4.7).
type DownloadRule struct {
	ID         int64
	AccountID  string
	Conditions map[string]any
	Action     DownloadRuleAction
	Priority   int
	Enabled    bool
}
