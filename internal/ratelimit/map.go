package ratelimit

import "time"

// Map maps categories to rate limit deadlines.
//
// A rate limit is in effect for a given category if either the category's
// deadline or the deadline for the special CategoryAll has not yet expired.
//
// Use IsRateLimited to check whether a category is rate-limited.
type Map map[Category]Deadline

// IsRateLimited returns true if the category is rate-limited.
func (m Map) IsRateLimited(c Category) bool {
	return m.Deadline(c).After(Deadline(time.Now()))
}

// Deadline returns the deadline when the rate limit for the given category or
// the special CategoryAll expire, whichever is furthest into the future.
func (m Map) Deadline(c Category) Deadline {
	categoryDeadline := m[c]
	allDeadline := m[CategoryAll]
	if categoryDeadline.After(allDeadline) {
		return categoryDeadline
	}
	return allDeadline
}

// Merge updates m with the entries from other. Entries overwrite prior values
// for the same key: every update reflects the server's current authoritative
// quota state, so no max-merge is performed.
func (m Map) Merge(other Map) {
	for c, d := range other {
		m[c] = d
	}
}
