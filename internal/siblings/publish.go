package siblings

import (
	"context"
	"time"
)

// PublishRequest is the body posted to {publish}/api/library/publish (§6).
type PublishRequest struct {
	TMDBID          string            `json:"tmdb_id"`
	Title           string            `json:"title"`
	Type            string            `json:"type"`
	HLSManifestURL  string            `json:"hls_manifest_url"`
	DASHManifestURL string            `json:"dash_manifest_url"`
	SubtitleTracks  []SubtitleTrack   `json:"subtitle_tracks"`
	Metadata        map[string]string `json:"metadata"`
}

// PublishClient registers a finished download in the media library (§4.1
// stage 7, the final stage).
type PublishClient struct{ c *client }

// NewPublishClient constructs a library publisher sibling client.
func NewPublishClient(baseURL string, timeout time.Duration, opts ...Option) *PublishClient {
	return &PublishClient{c: newClient("publish", baseURL, timeout, opts...)}
}

// Configured reports whether a base URL was set; an unconfigured publish
// sibling means the orchestrator auto-skips publishing (§4.1 stage 7).
func (p *PublishClient) Configured() bool { return p.c.configured() }

// Publish registers the finished content; any 2xx response counts as
// success (§6).
func (p *PublishClient) Publish(ctx context.Context, req PublishRequest) error {
	return p.c.do(ctx, "POST", "/api/library/publish", "publish.publish", req, nil)
}
