// Package rss implements the scheduled feed ingestor (C7, §4.3): fetch,
// parse, dedup, fingerprint, match against subscriptions, and either
// trigger a pipeline run or reject each new item.
package rss

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"
)

// rssDocument is the expected RSS 2.0 shape (§4.3 "expected schema: list
// of items with title, link, pubDate"). Trackers commonly extend items
// with plain size/seeders/leechers elements, which are read if present.
type rssDocument struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title    string `xml:"title"`
	Link     string `xml:"link"`
	PubDate  string `xml:"pubDate"`
	Size     int64  `xml:"size"`
	Seeders  int    `xml:"seeders"`
	Leechers int    `xml:"leechers"`
}

// Item is a parsed, not-yet-fingerprinted feed entry.
type Item struct {
	Title    string
	Link     string
	PubDate  time.Time
	Size     int64
	Seeders  int
	Leechers int
}

var pubDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
}

func parsePubDate(s string) time.Time {
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Fetcher fetches and parses a feed URL.
type Fetcher struct {
	client *http.Client
}

// NewFetcher constructs a Fetcher with the given per-request timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{client: &http.Client{Timeout: timeout}}
}

// Fetch downloads and parses the feed at url (§4.3 step 1).
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("rss: build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rss: fetch %s: %w", url, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("rss: fetch %s: HTTP %d", url, resp.StatusCode)
	}

	var doc rssDocument
	if err := xml.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("rss: parse %s: %w", url, err)
	}

	items := make([]Item, 0, len(doc.Channel.Items))
	for _, it := range doc.Channel.Items {
		items = append(items, Item{
			Title:    it.Title,
			Link:     it.Link,
			PubDate:  parsePubDate(it.PubDate),
			Size:     it.Size,
			Seeders:  it.Seeders,
			Leechers: it.Leechers,
		})
	}
	return items, nil
}
