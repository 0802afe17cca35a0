package siblings

import (
	"context"
	"time"
)

// SubtitleClient searches for subtitles matching a title (§4.1 stage 5).
type SubtitleClient struct{ c *client }

// NewSubtitleClient constructs a subtitle manager sibling client.
func NewSubtitleClient(baseURL string, timeout time.Duration, opts ...Option) *SubtitleClient {
	return &SubtitleClient{c: newClient("subtitle", baseURL, timeout, opts...)}
}

// Configured reports whether a base URL was set.
func (s *SubtitleClient) Configured() bool { return s.c.configured() }

// Search posts {title}; any 2xx response counts as success (§6).
func (s *SubtitleClient) Search(ctx context.Context, title string) error {
	req := struct {
		Title string `json:"title"`
	}{Title: title}
	return s.c.do(ctx, "POST", "/api/search", "subtitle.search", req, nil)
}
