package ratelimit

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const defaultRetryAfter = 1 * time.Minute

// FromResponse returns a rate limit map from an HTTP response.
func FromResponse(r *http.Response) Map {
	return fromResponse(r, time.Now())
}

func fromResponse(r *http.Response, now time.Time) Map {
	s := r.Header.Get("X-Sentry-Rate-Limits")
	if s != "" {
		return parseXSentryRateLimits(s, now)
	}
	// A Retry-After header is a backpressure signal regardless of the status
	// code: a 503 asking for a pause must be honored like a 429.
	if s := r.Header.Get("Retry-After"); s != "" {
		deadline, err := parseRetryAfter(s, now)
		if err != nil {
			deadline = Deadline(now.Add(defaultRetryAfter))
		}
		return Map{CategoryAll: deadline}
	}
	if r.StatusCode == http.StatusTooManyRequests {
		return Map{CategoryAll: Deadline(now.Add(defaultRetryAfter))}
	}
	return Map{}
}

// parseXSentryRateLimits returns a RateLimits map by parsing an input string in
// the format of the X-Sentry-Rate-Limits header.
//
// Example
//
//	X-Sentry-Rate-Limits: 60:transaction, 2700:default;error;security
//
// The header may contain multiple limits, all of which are taken into account:
//
//	X-Sentry-Rate-Limits: 60:transaction, 2700:default;error;security
//	X-Sentry-Rate-Limits: 60:transaction
//	X-Sentry-Rate-Limits: 2700:default;error;security
//
// Let's say there are two limits in the header above. Each limit has the
// format:
//
//	limit = retry_after ":" categories ":" scope [":" reason_code]
//
// Malformed entries are skipped individually; remaining entries in the same
// header still apply. An empty category list means the limit applies to all
// categories.
func parseXSentryRateLimits(s string, now time.Time) Map {
	// https://github.com/getsentry/relay/blob/0424a2e017d193a93918053c90cdae9472d164bf/relay-server/src/utils/rate_limits.rs#L44-L82
	m := make(Map, len(s))
	for _, limit := range strings.Split(s, ",") {
		limit = strings.TrimSpace(limit)
		if limit == "" {
			continue
		}
		components := strings.Split(limit, ":")
		if len(components) == 0 {
			continue
		}
		retryAfter, err := parseXSRLRetryAfter(strings.TrimSpace(components[0]), now)
		if err != nil {
			continue
		}
		categories := ""
		if len(components) > 1 {
			categories = components[1]
		}
		for _, category := range strings.Split(categories, ";") {
			c := Category(strings.ToLower(strings.TrimSpace(category)))
			if _, ok := knownCategories[c]; !ok {
				// skip unknown categories, keep m unchanged
				continue
			}
			// Last write wins: the server's latest word on a category's quota
			// replaces whatever was stored before.
			m[c] = retryAfter
		}
	}
	return m
}

// parseXSRLRetryAfter parses a string into a retry-after rate limit deadline.
//
// The grammar requires a non-negative integer number of seconds. Other input
// is rejected, causing the enclosing entry to be skipped.
func parseXSRLRetryAfter(s string, now time.Time) (Deadline, error) {
	seconds, err := strconv.Atoi(s)
	if err != nil {
		return Deadline{}, err
	}
	if seconds < 0 {
		return Deadline{}, errors.New("negative retry-after seconds")
	}
	return Deadline(now.Add(time.Duration(seconds) * time.Second)), nil
}

// parseRetryAfter parses a string like the one in the Retry-After header and
// returns a deadline.
//
// Standard behavior is a plain number of seconds, but HTTP-date form is also
// accepted for compatibility with generic proxies.
//
// https://tools.ietf.org/html/rfc7231#section-7.1.3
func parseRetryAfter(s string, now time.Time) (Deadline, error) {
	if s == "" {
		return Deadline{}, errors.New("empty header")
	}
	seconds, err := strconv.Atoi(s)
	if err == nil {
		if seconds < 0 {
			seconds = 0
		}
		return Deadline(now.Add(time.Duration(seconds) * time.Second)), nil
	}
	date, err := time.Parse(http.TimeFormat, s)
	if err == nil {
		return Deadline(date), nil
	}
	return Deadline{}, errors.New("invalid retry-after header")
}
