package ratelimit

import (
	"net/http"
	"sync"
	"time"
)

// Limiter is a concurrency-safe rate limit table shared by every sender that
// talks to the same project.
//
// Reads vastly outnumber writes: every outgoing item consults the table, while
// writes only happen when a server response carries new quota information. The
// read path therefore uses a shared read lock so concurrent readers never
// block each other.
type Limiter struct {
	mu     sync.RWMutex
	limits Map
}

// NewLimiter returns an empty Limiter.
func NewLimiter() *Limiter {
	return &Limiter{limits: make(Map)}
}

// UpdateFromResponse merges rate limits extracted from an HTTP response into
// the table. Quota information arrives on successful responses too, so this
// must be called for every response, not only errors.
func (l *Limiter) UpdateFromResponse(r *http.Response) {
	l.update(FromResponse(r))
}

// UpdateFromHeader merges rate limits parsed from a raw
// X-Sentry-Rate-Limits header value into the table.
func (l *Limiter) UpdateFromHeader(header string) {
	l.update(parseXSentryRateLimits(header, time.Now()))
}

// UpdateGlobal stores a global limit expiring the given number of seconds from
// now, overwriting any previous global entry. It covers the bare Retry-After
// path where no category information is available.
func (l *Limiter) UpdateGlobal(seconds int) {
	if seconds < 0 {
		seconds = 0
	}
	deadline := Deadline(time.Now().Add(time.Duration(seconds) * time.Second))
	l.update(Map{CategoryAll: deadline})
}

func (l *Limiter) update(m Map) {
	if len(m) == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limits.Merge(m)
}

// IsLimited returns true if the category, or all categories, are currently
// rate-limited.
func (l *Limiter) IsLimited(c Category) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.limits.IsRateLimited(c)
}

// Deadline returns the deadline applying to the category, considering the
// global entry.
func (l *Limiter) Deadline(c Category) Deadline {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.limits.Deadline(c)
}
