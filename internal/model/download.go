package model

import "time"

// DownloadState is one of the states in the download state machine (§4.2).
type DownloadState string

const (
	StateCreated       DownloadState = "created"
	StateVPNConnecting DownloadState = "vpn_connecting"
	StateSearching     DownloadState = "searching"
	StateDownloading   DownloadState = "downloading"
	StateEncoding      DownloadState = "encoding"
	StateSubtitles     DownloadState = "subtitles"
	StateUploading     DownloadState = "uploading"
	StateFinalizing    DownloadState = "finalizing"
	StateCompleted     DownloadState = "completed"
	StateFailed        DownloadState = "failed"
	StateCancelled     DownloadState = "cancelled"
	StatePaused        DownloadState = "paused"
)

// Terminal reports whether the state accepts no further transitions.
func (s DownloadState) Terminal() bool {
	switch s {
	case StateCompleted, StateCancelled:
		return true
	default:
		return false
	}
}

// ContentRef addresses a piece of content for dedup/season tracking.
type ContentRef struct {
	ShowID  string
	Season  int
	Episode int
	TMDBID  string
}

// Download is a user-facing record with its own state machine.
type Download struct {
	ID             string
	AccountID      string
	UserID         string
	ContentType    string
	Title          string
	State          DownloadState
	Progress       float64
	MagnetURI      string
	TorrentID      string
	EncodingJobID  string
	QualityProfile string
	RetryCount     int
	ErrorMessage   string
	Content        ContentRef
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DownloadStateHistory is an append-only transition record.
type DownloadStateHistory struct {
	ID         int64
	DownloadID string
	FromState  *DownloadState
	ToState    DownloadState
	Metadata   JSONBlob
	CreatedAt  time.Time
}
