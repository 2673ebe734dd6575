// Package retry decides how a failed request proceeds.
package retry

import (
	"time"

	"github.com/aluiziolira/shopcrawl/models"
)

// Policy holds the retry tunables fixed at run start.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Decision is the outcome of classifying a failure.
type Decision struct {
	Next  models.State
	Delay time.Duration
	Kind  models.ErrorKind
}

// Retry reports whether the request should be scheduled again.
func (d Decision) Retry() bool {
	return d.Next == models.StateRetrying
}

// Decide classifies err for a request that has made attempt fetch attempts.
// Transient failures retry while attempts remain; permanent failures end
// the request immediately whatever the remaining budget.
func (p Policy) Decide(attempt int, err error) Decision {
	kind := models.KindOf(err)
	if !kind.Transient() {
		return Decision{Next: models.StateFailed, Kind: kind}
	}
	if attempt >= p.MaxAttempts {
		return Decision{Next: models.StateFailed, Kind: kind}
	}
	return Decision{Next: models.StateRetrying, Delay: p.Backoff(attempt), Kind: kind}
}

// Backoff returns the delay before the attempt following attempt:
// min(BaseDelay * 2^(attempt-1), MaxDelay). It never decreases as attempt grows.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := p.BaseDelay
	if base <= 0 {
		return 0
	}

	delay := base
	for i := 1; i < attempt; i++ {
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			break
		}
		if delay > maxDuration/2 {
			delay = maxDuration
			break
		}
		delay *= 2
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

const maxDuration = time.Duration(1<<63 - 1)
