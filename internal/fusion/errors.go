package fusion

import "errors"

// Per-sample failure conditions. All are recovered locally by dropping the
// attempt; none terminates the dispatch loop.
var (
	// ErrStreamGap means a required stream had no sample within its
	// staleness threshold of the trigger.
	ErrStreamGap = errors.New("no sample within staleness threshold")

	// ErrSkewExceeded means a candidate sample existed but differed from the
	// trigger timestamp by more than the maximum skew.
	ErrSkewExceeded = errors.New("sample skew exceeds maximum")

	// ErrInvalidInput means a sample was malformed (for example an image
	// with zero dimensions); the frame attempt is dropped, not retried.
	ErrInvalidInput = errors.New("invalid input sample")
)
