package siblings

import (
	"errors"
	"fmt"
)

// The orchestrator's skip-vs-fail policy (§4.1) depends entirely on which
// of these three buckets a sibling call error falls into: unreachable
// optional stages skip, everything else that reached the sibling but
// came back wrong fails the stage.
var (
	// ErrUnreachable means no HTTP response was obtained at all — DNS,
	// connection refused, timeout. The sibling may not exist or be down.
	ErrUnreachable = errors.New("siblings: service unreachable")
	// ErrHTTPError means the sibling responded with a non-2xx status.
	ErrHTTPError = errors.New("siblings: non-2xx response")
	// ErrMalformedResponse means a 2xx response body could not be parsed
	// into the expected shape.
	ErrMalformedResponse = errors.New("siblings: malformed response body")
)

// CallError wraps a sibling HTTP call failure with enough context for
// logging and for errors.Is-based classification.
type CallError struct {
	Sibling   string
	Operation string
	Sentinel  error
	Status    int
	Body      string
	Err       error
}

func (e *CallError) Error() string {
	msg := fmt.Sprintf("siblings: %s.%s: %v", e.Sibling, e.Operation, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *CallError) Unwrap() error { return e.Sentinel }

// IsUnreachable reports whether err is, or wraps, ErrUnreachable — the
// sole condition under which an optional stage is allowed to skip (§4.1).
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrUnreachable)
}
