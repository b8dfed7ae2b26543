package github

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound: the repository or user does not exist (or the token
	// cannot see it). Terminal for the key, never retried.
	ErrNotFound = errors.New("github: not found")

	// ErrUnauthorized: the token was rejected.
	ErrUnauthorized = errors.New("github: bad credentials")
)

// RateLimitError reports that GitHub throttled us. RetryAfter is how
// long callers should hold off before issuing any further request, not
// just one for the same key.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("github: rate limited, retry after %s", e.RetryAfter)
}

// RetryAfterHint extracts the backoff hint from err, if it carries one.
func RetryAfterHint(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter, true
	}
	return 0, false
}
