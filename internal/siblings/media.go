package siblings

import (
	"context"
	"time"
)

// mediaSubmitResponse is the body returned by POST {media}/v1/jobs.
type mediaSubmitResponse struct {
	ID    string `json:"id"`
	JobID string `json:"job_id"`
}

func (r mediaSubmitResponse) resolvedID() string {
	if r.ID != "" {
		return r.ID
	}
	return r.JobID
}

// SubtitleTrack is one subtitle output of an encoding job, also carried
// through to the publish request (§6).
type SubtitleTrack struct {
	Language string `json:"language"`
	URL      string `json:"url"`
}

// MediaOutputs is the encoding job's produced artifact set.
type MediaOutputs struct {
	HLSManifestURL  string          `json:"hls_manifest_url"`
	DASHManifestURL string          `json:"dash_manifest_url"`
	SubtitleTracks  []SubtitleTrack `json:"subtitle_tracks"`
}

// MediaJobStatus is the body returned by GET {media}/v1/jobs/{id}.
type MediaJobStatus struct {
	Status  string       `json:"status"`
	Outputs MediaOutputs `json:"outputs"`
	Error   string       `json:"error"`
}

const (
	MediaStatusCompleted = "completed"
	MediaStatusFailed    = "failed"
)

// Done reports whether the encoding job has reached a terminal state.
func (s MediaJobStatus) Done() bool {
	return s.Status == MediaStatusCompleted || s.Status == MediaStatusFailed
}

// MediaClient submits and polls encoding jobs (§4.1 stage 6).
type MediaClient struct{ c *client }

// NewMediaClient constructs a media processor sibling client.
func NewMediaClient(baseURL string, timeout time.Duration, opts ...Option) *MediaClient {
	return &MediaClient{c: newClient("media", baseURL, timeout, opts...)}
}

// Configured reports whether a base URL was set; an unconfigured media
// sibling means the orchestrator auto-skips encoding (§4.1 stage 6).
func (m *MediaClient) Configured() bool { return m.c.configured() }

// Submit posts {input_url,input_type,profile_id,priority} and returns the
// sibling's assigned job ID.
func (m *MediaClient) Submit(ctx context.Context, inputURL, inputType, profileID string, priority int) (string, error) {
	req := struct {
		InputURL  string `json:"input_url"`
		InputType string `json:"input_type"`
		ProfileID string `json:"profile_id"`
		Priority  int    `json:"priority"`
	}{InputURL: inputURL, InputType: inputType, ProfileID: profileID, Priority: priority}
	var out mediaSubmitResponse
	if err := m.c.do(ctx, "POST", "/v1/jobs", "media.submit", req, &out); err != nil {
		return "", err
	}
	return out.resolvedID(), nil
}

// Poll fetches the current status and, once complete, the output URLs of
// a previously submitted encoding job.
func (m *MediaClient) Poll(ctx context.Context, jobID string) (MediaJobStatus, error) {
	var out MediaJobStatus
	err := m.c.do(ctx, "GET", "/v1/jobs/"+jobID, "media.poll", nil, &out)
	return out, err
}
