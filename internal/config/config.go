// Package config loads and hot-reloads content-acquisition configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk YAML configuration shape (§6).
type FileConfig struct {
	Siblings SiblingsConfig `yaml:"siblings"`
	RSS      RSSConfig      `yaml:"rss,omitempty"`
	Polling  PollingConfig  `yaml:"polling,omitempty"`
	Matcher  MatcherConfig  `yaml:"matcher,omitempty"`
	Store    StoreConfig    `yaml:"store,omitempty"`
	Redis    RedisConfig    `yaml:"redis,omitempty"`
}

// SiblingsConfig holds the base URLs of the external services (§6).
// Empty MediaURL/PublishURL auto-skip the encoding/publishing stages.
type SiblingsConfig struct {
	VPNURL       string `yaml:"vpnUrl"`
	TorrentURL   string `yaml:"torrentUrl"`
	MetadataURL  string `yaml:"metadataUrl"`
	SubtitleURL  string `yaml:"subtitleUrl"`
	MediaURL     string `yaml:"mediaUrl,omitempty"`
	PublishURL   string `yaml:"publishUrl,omitempty"`
	HTTPTimeout  string `yaml:"httpTimeoutMs,omitempty"` // e.g. "30000" treated as ms
}

// RSSConfig controls the feed scheduler (§4.3).
type RSSConfig struct {
	CheckIntervalMinutes *int `yaml:"checkIntervalMinutes,omitempty"`
	WorkerConcurrency    *int `yaml:"workerConcurrency,omitempty"`
}

// PollingConfig controls the orchestrator's poll loops (§4.1 stages 3, 6).
type PollingConfig struct {
	IntervalSeconds         *int `yaml:"intervalSeconds,omitempty"`
	DownloadPollMaxAttempts *int `yaml:"downloadPollMaxAttempts,omitempty"`
	EncodingPollMaxAttempts *int `yaml:"encodingPollMaxAttempts,omitempty"`
}

// MatcherConfig controls the fuzzy matcher (§4.4).
type MatcherConfig struct {
	FuzzyMatchThreshold *float64 `yaml:"fuzzyMatchThreshold,omitempty"`
}

// StoreConfig selects and configures the persistence backend (C1).
type StoreConfig struct {
	Backend string `yaml:"backend,omitempty"` // "sqlite" (default) or "memory" (tests)
	Path    string `yaml:"path,omitempty"`
}

// RedisConfig configures the optional shared circuit-breaker/lock layer.
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// Resolved is FileConfig with every default applied and durations parsed,
// the shape the rest of the program consumes.
type Resolved struct {
	Siblings                SiblingsConfig
	HTTPTimeout             time.Duration
	RSSCheckInterval        time.Duration
	RSSWorkerConcurrency    int
	PollInterval            time.Duration
	DownloadPollMaxAttempts int
	EncodingPollMaxAttempts int
	FuzzyMatchThreshold     float64
	Store                   StoreConfig
	Redis                   RedisConfig
}

// Defaults per §6.
const (
	DefaultRSSCheckIntervalMinutes = 30
	DefaultPollIntervalSeconds     = 30
	DefaultDownloadPollAttempts    = 720
	DefaultEncodingPollAttempts    = 2880
	DefaultHTTPTimeoutMS           = 30000
	DefaultFuzzyMatchThreshold     = 0.8
	DefaultRSSWorkerConcurrency    = 4
)

// Load reads a YAML file and resolves it with defaults applied.
func Load(path string) (*Resolved, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return Resolve(fc), nil
}

// Resolve applies defaults to a parsed FileConfig.
func Resolve(fc FileConfig) *Resolved {
	r := &Resolved{
		Siblings:                fc.Siblings,
		HTTPTimeout:             time.Duration(DefaultHTTPTimeoutMS) * time.Millisecond,
		RSSCheckInterval:        time.Duration(DefaultRSSCheckIntervalMinutes) * time.Minute,
		RSSWorkerConcurrency:    DefaultRSSWorkerConcurrency,
		PollInterval:            time.Duration(DefaultPollIntervalSeconds) * time.Second,
		DownloadPollMaxAttempts: DefaultDownloadPollAttempts,
		EncodingPollMaxAttempts: DefaultEncodingPollAttempts,
		FuzzyMatchThreshold:     DefaultFuzzyMatchThreshold,
		Store:                   fc.Store,
		Redis:                   fc.Redis,
	}
	if fc.RSS.CheckIntervalMinutes != nil {
		r.RSSCheckInterval = time.Duration(*fc.RSS.CheckIntervalMinutes) * time.Minute
	}
	if fc.RSS.WorkerConcurrency != nil {
		r.RSSWorkerConcurrency = *fc.RSS.WorkerConcurrency
	}
	if fc.Polling.IntervalSeconds != nil {
		r.PollInterval = time.Duration(*fc.Polling.IntervalSeconds) * time.Second
	}
	if fc.Polling.DownloadPollMaxAttempts != nil {
		r.DownloadPollMaxAttempts = *fc.Polling.DownloadPollMaxAttempts
	}
	if fc.Polling.EncodingPollMaxAttempts != nil {
		r.EncodingPollMaxAttempts = *fc.Polling.EncodingPollMaxAttempts
	}
	if fc.Matcher.FuzzyMatchThreshold != nil {
		r.FuzzyMatchThreshold = *fc.Matcher.FuzzyMatchThreshold
	}
	if fc.Siblings.HTTPTimeout != "" {
		if ms, err := strconv.Atoi(fc.Siblings.HTTPTimeout); err == nil && ms > 0 {
			r.HTTPTimeout = time.Duration(ms) * time.Millisecond
		}
	}
	if r.Store.Backend == "" {
		r.Store.Backend = "sqlite"
	}
	return r
}

// EncodingEnabled reports whether the media processing URL is configured (§4.1 stage 6).
func (r *Resolved) EncodingEnabled() bool {
	return r.Siblings.MediaURL != ""
}

// PublishingEnabled reports whether the publishing backend URL is configured (§4.1 stage 7).
func (r *Resolved) PublishingEnabled() bool {
	return r.Siblings.PublishURL != ""
}
