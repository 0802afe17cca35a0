// Package statemachine implements the download state machine's legal
// transition table and the resume/retry operations built on top of it
// (§4.2, C5).
package statemachine

import "github.com/nself/content-acquisition/internal/model"

// allowed is the §4.2 transition table: from -> set of legal destinations.
var allowed = map[model.DownloadState][]model.DownloadState{
	model.StateCreated:       {model.StateVPNConnecting, model.StateFailed, model.StateCancelled},
	model.StateVPNConnecting: {model.StateSearching, model.StateFailed, model.StateCancelled},
	model.StateSearching:     {model.StateDownloading, model.StatePaused, model.StateFailed, model.StateCancelled},
	model.StateDownloading:   {model.StateEncoding, model.StatePaused, model.StateFailed, model.StateCancelled},
	model.StateEncoding:      {model.StateSubtitles, model.StatePaused, model.StateFailed, model.StateCancelled},
	model.StateSubtitles:     {model.StateUploading, model.StateFailed, model.StateCancelled},
	model.StateUploading:     {model.StateFinalizing, model.StateFailed, model.StateCancelled},
	model.StateFinalizing:    {model.StateCompleted, model.StateFailed, model.StateCancelled},
	model.StateCompleted:     {},
	model.StateFailed:        {model.StateCreated},
	model.StateCancelled:     {},
	model.StatePaused:        {model.StateSearching, model.StateDownloading, model.StateEncoding, model.StateFailed, model.StateCancelled},
}

// IsAllowed reports whether the transition from -> to is legal per the
// §4.2 table. Passed as the isAllowed predicate to store.TransitionDownload
// so the lock-and-validate contract lives in one place.
func IsAllowed(from, to model.DownloadState) bool {
	for _, t := range allowed[from] {
		if t == to {
			return true
		}
	}
	return false
}
