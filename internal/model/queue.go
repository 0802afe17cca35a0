package model

import "time"

// AcquisitionQueueEntry is a row in the priority queue keyed by download_id.
type AcquisitionQueueEntry struct {
	DownloadID string
	AccountID  string
	Priority   int
	CreatedAt  time.Time
}

// DefaultPriority is used when a caller does not specify one (§4.5).
const DefaultPriority = 10
