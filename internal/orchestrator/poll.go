package orchestrator

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// pollOutcome is the result a single attemptFn call reports back to pollUntil.
type pollOutcome int

const (
	pollInProgress pollOutcome = iota
	pollDone
	pollErrored
)

// ErrPollTimeout is returned by pollUntil when maxAttempts is exhausted
// without reaching a terminal status (§4.1 stages 3 and 6).
var ErrPollTimeout = errors.New("orchestrator: poll attempts exhausted")

// pollUntil calls attempt up to maxAttempts times, sleeping interval between
// attempts, until it reports pollDone or pollErrored. A transient call error
// (attempt's own err return) is logged and treated as pollInProgress per
// §4.1 stage 3's "transient network errors during polling are ignored".
// Returns errMsg (the sibling-reported failure reason) on pollErrored, or
// ErrPollTimeout if attempts were exhausted, or ctx.Err() if cancelled.
func pollUntil(
	ctx context.Context,
	sleep func(context.Context) error,
	maxAttempts int,
	log zerolog.Logger,
	attempt func(ctx context.Context) (pollOutcome, string, error),
) (done bool, errMsg string, err error) {
	for i := 0; i < maxAttempts; i++ {
		outcome, msg, callErr := attempt(ctx)
		if callErr != nil {
			log.Warn().Err(callErr).Int("attempt", i+1).Msg("transient error during poll, continuing")
			outcome = pollInProgress
		}
		switch outcome {
		case pollDone:
			return true, "", nil
		case pollErrored:
			return false, msg, nil
		}
		if i == maxAttempts-1 {
			break
		}
		if sleepErr := sleep(ctx); sleepErr != nil {
			return false, "", sleepErr
		}
	}
	return false, "", ErrPollTimeout
}
