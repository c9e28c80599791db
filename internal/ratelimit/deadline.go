package ratelimit

import "time"

// A Deadline is a time instant when a rate limit expires.
type Deadline time.Time

// After reports whether the deadline d is after other.
func (d Deadline) After(other Deadline) bool {
	return time.Time(d).After(time.Time(other))
}

// Equal reports whether d and e represent the same deadline.
func (d Deadline) Equal(e Deadline) bool {
	return time.Time(d).Equal(time.Time(e))
}

// String implements fmt.Stringer.
func (d Deadline) String() string {
	return time.Time(d).String()
}
