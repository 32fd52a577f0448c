package reasoning

import (
	"sync"
	"time"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
)

// Window caps the number of accepted calls inside a trailing span. Max <= 0 disables it.
type Window struct {
	Span time.Duration
	Max  int
}

// SlidingWindowLimiter keeps timestamps of accepted calls and rejects a call
// when any window is full.
type SlidingWindowLimiter struct {
	mu      sync.Mutex
	windows []Window
	calls   []time.Time
	now     func() time.Time
}

func NewSlidingWindowLimiter(perMinute, perHour int) *SlidingWindowLimiter {
	return NewLimiterWithWindows(
		Window{Span: time.Minute, Max: perMinute},
		Window{Span: time.Hour, Max: perHour},
	)
}

func NewLimiterWithWindows(windows ...Window) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{windows: windows, now: time.Now}
}

// Reservation is an accepted call slot. Cancel it when the call fails so that
// only successful calls count against the windows.
type Reservation struct {
	at    time.Time
	valid bool
}

// Reserve accepts a call or returns a rate_limit error whose retry-after is
// the time until the oldest call inside the violated window leaves it.
func (l *SlidingWindowLimiter) Reserve() (Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	var retryAfter time.Duration
	for _, w := range l.windows {
		if w.Max <= 0 {
			continue
		}
		inWindow, oldest := l.countSince(now.Add(-w.Span))
		if inWindow < w.Max {
			continue
		}
		if wait := oldest.Add(w.Span).Sub(now); wait > retryAfter {
			retryAfter = wait
		}
	}
	if retryAfter > 0 {
		return Reservation{}, domain.RateLimited("reasoning.limiter", retryAfter, nil)
	}

	l.calls = append(l.calls, now)
	return Reservation{at: now, valid: true}, nil
}

// Cancel releases a reservation. Releasing twice is a no-op.
func (l *SlidingWindowLimiter) Cancel(r *Reservation) {
	if r == nil || !r.valid {
		return
	}
	r.valid = false

	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.calls) - 1; i >= 0; i-- {
		if l.calls[i].Equal(r.at) {
			l.calls = append(l.calls[:i], l.calls[i+1:]...)
			return
		}
	}
}

// Count returns the number of accepted calls within the trailing span.
func (l *SlidingWindowLimiter) Count(span time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, _ := l.countSince(l.now().Add(-span))
	return n
}

func (l *SlidingWindowLimiter) countSince(cutoff time.Time) (int, time.Time) {
	for i, t := range l.calls {
		if t.After(cutoff) {
			return len(l.calls) - i, t
		}
	}
	return 0, time.Time{}
}

func (l *SlidingWindowLimiter) prune(now time.Time) {
	var longest time.Duration
	for _, w := range l.windows {
		if w.Span > longest {
			longest = w.Span
		}
	}
	cutoff := now.Add(-longest)
	drop := 0
	for drop < len(l.calls) && !l.calls[drop].After(cutoff) {
		drop++
	}
	if drop > 0 {
		l.calls = append(l.calls[:0], l.calls[drop:]...)
	}
}
