// Package sentinel is a client for reporting errors, transactions, check-ins
// and client reports to a Sentry-protocol-compatible ingestion endpoint.
//
// The package provides a capture pipeline that deduplicates repeated events,
// honors server-driven rate limits, encodes items into envelopes and delivers
// them over HTTP with retries. Statistics about items the pipeline had to
// discard are aggregated and periodically shipped as client reports.
//
// Basic usage:
//
//	err := sentinel.Init(sentinel.ClientOptions{
//		Dsn: "https://public@ingest.example.com/1",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer sentinel.Close()
//
//	sentinel.CaptureException(errors.New("it broke"))
//	sentinel.Flush(2 * time.Second)
package sentinel
