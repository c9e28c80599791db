package ratelimit

import (
	"net/http"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParseXSentryRateLimits(t *testing.T) {
	now := time.Date(2024, 3, 18, 10, 0, 0, 0, time.UTC)
	deadline := func(seconds int) Deadline {
		return Deadline(now.Add(time.Duration(seconds) * time.Second))
	}

	tests := []struct {
		name   string
		header string
		want   Map
	}{
		{
			name:   "empty",
			header: "",
			want:   Map{},
		},
		{
			name:   "single category",
			header: "60:error",
			want:   Map{CategoryError: deadline(60)},
		},
		{
			name:   "multiple entries and categories",
			header: "60:transaction, 2700:default;error;security",
			want: Map{
				CategoryTransaction: deadline(60),
				CategoryDefault:     deadline(2700),
				CategoryError:       deadline(2700),
				// "security" is not a known category and is ignored.
			},
		},
		{
			name:   "empty category list means all",
			header: "60::organization",
			want:   Map{CategoryAll: deadline(60)},
		},
		{
			name:   "bare seconds means all",
			header: "120",
			want:   Map{CategoryAll: deadline(120)},
		},
		{
			name:   "malformed entries are skipped individually",
			header: "invalid, 60:error, bad_format",
			want:   Map{CategoryError: deadline(60)},
		},
		{
			name:   "negative seconds rejected",
			header: "-1:error",
			want:   Map{},
		},
		{
			name:   "last write wins within a header",
			header: "60:error, 1:error",
			want:   Map{CategoryError: deadline(1)},
		},
		{
			name:   "category names are case insensitive",
			header: "60:ERROR;Transaction",
			want: Map{
				CategoryError:       deadline(60),
				CategoryTransaction: deadline(60),
			},
		},
		{
			name:   "scope and reason are ignored",
			header: "2700:error:organization:quota_exceeded",
			want:   Map{CategoryError: deadline(2700)},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := parseXSentryRateLimits(tt.header, now)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("parseXSentryRateLimits(%q) mismatch (-want +got):\n%s", tt.header, diff)
			}
		})
	}
}

func TestFromResponse(t *testing.T) {
	now := time.Date(2024, 3, 18, 10, 0, 0, 0, time.UTC)
	deadline := func(seconds int) Deadline {
		return Deadline(now.Add(time.Duration(seconds) * time.Second))
	}

	response := func(status int, headers map[string]string) *http.Response {
		h := make(http.Header, len(headers))
		for k, v := range headers {
			h.Set(k, v)
		}
		return &http.Response{StatusCode: status, Header: h}
	}

	tests := []struct {
		name string
		r    *http.Response
		want Map
	}{
		{
			name: "no rate limit information",
			r:    response(http.StatusOK, nil),
			want: Map{},
		},
		{
			name: "rate limits header on success",
			r:    response(http.StatusOK, map[string]string{"X-Sentry-Rate-Limits": "60:transaction"}),
			want: Map{CategoryTransaction: deadline(60)},
		},
		{
			name: "rate limits header preferred over retry-after",
			r: response(http.StatusTooManyRequests, map[string]string{
				"X-Sentry-Rate-Limits": "60:error",
				"Retry-After":          "2700",
			}),
			want: Map{CategoryError: deadline(60)},
		},
		{
			name: "429 with retry-after seconds",
			r:    response(http.StatusTooManyRequests, map[string]string{"Retry-After": "60"}),
			want: Map{CategoryAll: deadline(60)},
		},
		{
			name: "429 with retry-after date",
			r: response(http.StatusTooManyRequests, map[string]string{
				"Retry-After": now.Add(30 * time.Second).Format(http.TimeFormat),
			}),
			want: Map{CategoryAll: deadline(30)},
		},
		{
			name: "503 with retry-after",
			r:    response(http.StatusServiceUnavailable, map[string]string{"Retry-After": "60"}),
			want: Map{CategoryAll: deadline(60)},
		},
		{
			name: "400 with retry-after",
			r:    response(http.StatusBadRequest, map[string]string{"Retry-After": "30"}),
			want: Map{CategoryAll: deadline(30)},
		},
		{
			name: "429 with unparseable retry-after uses default",
			r:    response(http.StatusTooManyRequests, map[string]string{"Retry-After": "tomorrow"}),
			want: Map{CategoryAll: Deadline(now.Add(defaultRetryAfter))},
		},
		{
			name: "429 with no retry-after uses default",
			r:    response(http.StatusTooManyRequests, nil),
			want: Map{CategoryAll: Deadline(now.Add(defaultRetryAfter))},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := fromResponse(tt.r, now)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("fromResponse mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
