// Package report accumulates discarded-event statistics and periodically
// flushes them to the ingestion endpoint as client reports.
package report

// DiscardReason represents why an item was discarded before it could be
// delivered.
type DiscardReason string

const (
	// ReasonBeforeSend indicates the item was dropped by a BeforeSend callback.
	ReasonBeforeSend DiscardReason = "before_send"

	// ReasonEventProcessor indicates the item was dropped by an event processor.
	ReasonEventProcessor DiscardReason = "event_processor"

	// ReasonNetworkError indicates delivery failed after exhausting retries, or
	// the server returned a definitive non-rate-limit rejection.
	ReasonNetworkError DiscardReason = "network_error"

	// ReasonRateLimiting indicates the item was dropped because of a
	// server-communicated rate limit.
	ReasonRateLimiting DiscardReason = "rate_limiting"

	// ReasonQueueOverflow indicates the transport queue was full.
	ReasonQueueOverflow DiscardReason = "queue_overflow"

	// ReasonRateLimitBackoff indicates the item was dropped while the client
	// was backing off a previously communicated limit.
	ReasonRateLimitBackoff DiscardReason = "ratelimit_backoff"
)
