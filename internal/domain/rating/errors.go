package rating

import "errors"

// Sentinel error kinds for the engine. None of them is retryable: the
// computation is deterministic and the same inputs fail the same way.
var (
	ErrInvalidMatchComposition = errors.New("invalid match composition")
	ErrNonFiniteResult         = errors.New("non-finite rating result")
	ErrConfiguration           = errors.New("invalid rating configuration")
)
