package gateway

import (
	"sync"
	"time"
)

const (
	reasonTooManyPending = "too many pending prompts"
	reasonRateLimited    = "rate limit exceeded"
)

// Admission decides whether an inbound prompt is queued for an answer. It
// bounds prompts per sliding minute and prompts admitted but not yet
// answered, counting the one being answered.
type Admission struct {
	mu         sync.Mutex
	perMinute  int
	maxPending int
	window     []time.Time
	pending    int
	now        func() time.Time
}

// NewAdmission creates an admission policy for one connection. A
// perMinute of zero disables the rate limit.
func NewAdmission(perMinute, maxPending int) *Admission {
	return &Admission{
		perMinute:  perMinute,
		maxPending: maxPending,
		now:        time.Now,
	}
}

// Admit records a prompt when both limits allow it. Otherwise it returns
// the reason sent back to the client.
func (a *Admission) Admit() (bool, string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.maxPending > 0 && a.pending >= a.maxPending {
		return false, reasonTooManyPending
	}

	now := a.now()
	a.prune(now)
	if a.perMinute > 0 && len(a.window) >= a.perMinute {
		return false, reasonRateLimited
	}

	a.window = append(a.window, now)
	a.pending++
	return true, ""
}

// Done marks one admitted prompt as answered
func (a *Admission) Done() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.pending > 0 {
		a.pending--
	}
}

// Stats returns prompts admitted in the last minute and prompts not yet answered
func (a *Admission) Stats() (recent, pending int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.prune(a.now())
	return len(a.window), a.pending
}

func (a *Admission) prune(now time.Time) {
	cutoff := now.Add(-time.Minute)
	kept := a.window[:0]
	for _, t := range a.window {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	a.window = kept
}
