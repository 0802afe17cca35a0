package siblings

import (
	"context"
	"time"
)

// torrentSubmitResponse is the body returned by POST {torrent}/api/downloads.
// The sibling may key the new download either "id" or "download_id" (§6).
type torrentSubmitResponse struct {
	ID         string `json:"id"`
	DownloadID string `json:"download_id"`
}

func (r torrentSubmitResponse) resolvedID() string {
	if r.ID != "" {
		return r.ID
	}
	return r.DownloadID
}

// TorrentStatus is the body returned by GET {torrent}/api/downloads/{id}.
// Path, once the download completes, is where the encoding stage reads its
// input from.
type TorrentStatus struct {
	Status string `json:"status"`
	Path   string `json:"path"`
}

const (
	TorrentStatusCompleted = "completed"
	TorrentStatusSeeding   = "seeding"
	TorrentStatusError     = "error"
	TorrentStatusFailed    = "failed"
)

// Done reports whether the torrent has reached a terminal state (§4.1 stage 3).
func (s TorrentStatus) Done() bool {
	switch s.Status {
	case TorrentStatusCompleted, TorrentStatusSeeding:
		return true
	default:
		return false
	}
}

// Errored reports whether the torrent manager reported a terminal error.
func (s TorrentStatus) Errored() bool {
	return s.Status == TorrentStatusError || s.Status == TorrentStatusFailed
}

// TorrentClient submits magnet/torrent URLs and polls download progress.
type TorrentClient struct{ c *client }

// NewTorrentClient constructs a torrent manager sibling client.
func NewTorrentClient(baseURL string, timeout time.Duration, opts ...Option) *TorrentClient {
	return &TorrentClient{c: newClient("torrent", baseURL, timeout, opts...)}
}

// Submit posts a magnet or torrent URL and returns the sibling's assigned
// download ID (§4.1 stage 2).
func (t *TorrentClient) Submit(ctx context.Context, url string) (string, error) {
	req := struct {
		URL string `json:"url"`
	}{URL: url}
	var out torrentSubmitResponse
	if err := t.c.do(ctx, "POST", "/api/downloads", "torrent.submit", req, &out); err != nil {
		return "", err
	}
	return out.resolvedID(), nil
}

// Poll fetches the current status of a previously submitted download.
func (t *TorrentClient) Poll(ctx context.Context, downloadID string) (TorrentStatus, error) {
	var out TorrentStatus
	err := t.c.do(ctx, "GET", "/api/downloads/"+downloadID, "torrent.poll", nil, &out)
	return out, err
}
