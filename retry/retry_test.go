package retry

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aluiziolira/shopcrawl/models"
)

func TestDecideTransientRetriesUntilBudget(t *testing.T) {
	p := Policy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	errTimeout := models.TimeoutError{Err: errors.New("deadline")}

	tests := []struct {
		attempt   int
		wantState models.State
		wantDelay time.Duration
	}{
		{attempt: 1, wantState: models.StateRetrying, wantDelay: 100 * time.Millisecond},
		{attempt: 2, wantState: models.StateRetrying, wantDelay: 200 * time.Millisecond},
		{attempt: 3, wantState: models.StateFailed, wantDelay: 0},
		{attempt: 4, wantState: models.StateFailed, wantDelay: 0},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			d := p.Decide(tt.attempt, errTimeout)
			if d.Next != tt.wantState {
				t.Fatalf("state = %s, want %s", d.Next, tt.wantState)
			}
			if d.Delay != tt.wantDelay {
				t.Fatalf("delay = %v, want %v", d.Delay, tt.wantDelay)
			}
			if d.Kind != models.ErrorTimeout {
				t.Fatalf("kind = %s, want timeout", d.Kind)
			}
		})
	}
}

func TestDecidePermanentNeverRetries(t *testing.T) {
	p := Policy{MaxAttempts: 10, BaseDelay: time.Millisecond, MaxDelay: time.Second}
	permanent := []error{
		fmt.Errorf("listing: %w", models.ErrExtractionEmpty),
		fmt.Errorf("lookup: %w", models.ErrUnsupportedPlatform),
		fmt.Errorf("seed: %w", models.ErrMalformedURL),
		models.ErrNotFound,
	}
	for _, err := range permanent {
		d := p.Decide(1, err)
		if d.Retry() {
			t.Fatalf("%v should not be retried", err)
		}
		if d.Next != models.StateFailed {
			t.Fatalf("%v: state = %s, want failed", err, d.Next)
		}
	}
}

func TestDecideBlockedAndNetworkAreTransient(t *testing.T) {
	p := Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Second}
	for _, err := range []error{
		models.BlockedError{Reason: "captcha"},
		models.NetworkError{Err: errors.New("connection reset")},
		errors.New("unclassified"),
	} {
		if d := p.Decide(1, err); !d.Retry() {
			t.Fatalf("%v should be retried on first attempt", err)
		}
	}
}

func TestBackoffMonotonicAndCapped(t *testing.T) {
	p := Policy{MaxAttempts: 100, BaseDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second}

	previous := time.Duration(0)
	for attempt := 1; attempt <= 80; attempt++ {
		delay := p.Backoff(attempt)
		if delay < previous {
			t.Fatalf("backoff(%d) = %v decreased from %v", attempt, delay, previous)
		}
		if delay > p.MaxDelay {
			t.Fatalf("backoff(%d) = %v exceeds max %v", attempt, delay, p.MaxDelay)
		}
		previous = delay
	}
	if previous != p.MaxDelay {
		t.Fatalf("backoff should saturate at max, got %v", previous)
	}
}

func TestBackoffWithoutMaxDoesNotOverflow(t *testing.T) {
	p := Policy{BaseDelay: time.Second}
	if d := p.Backoff(200); d <= 0 {
		t.Fatalf("backoff overflowed: %v", d)
	}
}
