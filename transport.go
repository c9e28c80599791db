package sentinel

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/sentinel-obs/sentinel-go/internal/debuglog"
	"github.com/sentinel-obs/sentinel-go/internal/protocol"
	"github.com/sentinel-obs/sentinel-go/internal/ratelimit"
	"github.com/sentinel-obs/sentinel-go/internal/report"
)

const (
	defaultTimeout      = time.Second * 30
	defaultQueueSize    = 1000
	defaultWorkerCount  = 1
	defaultMaxRetries   = 3
	defaultRetryBackoff = time.Second

	apiVersion = 7
)

// maxDrainResponseBytes is the maximum number of bytes that transport
// implementations will read from response bodies when draining them.
//
// Ingestion API responses are typically short and the SDK doesn't need more
// than the id field of the response body. However, the net/http HTTP client
// requires response bodies to be fully drained (and closed) for TCP keep-alive
// to work.
//
// maxDrainResponseBytes strikes a balance between reading too much data (if
// the server is misbehaving) and reusing TCP connections.
const maxDrainResponseBytes = 16 << 10

var (
	// ErrTransportQueueFull is returned when the transport queue is full,
	// providing a backpressure signal to the caller.
	ErrTransportQueueFull = errors.New("transport queue full")

	// ErrTransportClosed is returned when trying to send on a closed transport.
	ErrTransportClosed = errors.New("transport is closed")
)

// SendResult describes the outcome of delivering one envelope.
type SendResult struct {
	// EventID is the identifier assigned by the server, which may differ from
	// the client-generated one. Empty when no network call was made.
	EventID string

	// StatusCode is the status of the final HTTP response, or zero when the
	// envelope was resolved without a network call.
	StatusCode int
}

// RequestFailureError describes a definitive non-2xx response from the server.
type RequestFailureError struct {
	StatusCode int
	Body       string
}

func (e *RequestFailureError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Body)
}

// Transport is used by the Client to deliver envelopes to the remote server.
type Transport interface {
	Configure(options ClientOptions)
	// SendEnvelope delivers one envelope. Synchronous implementations block
	// and return the result; asynchronous ones hand the envelope to a
	// background worker and return immediately with a nil result.
	SendEnvelope(ctx context.Context, envelope *protocol.Envelope) (*SendResult, error)
	Flush(timeout time.Duration) bool
	Close()
}

func getProxyConfig(options ClientOptions) func(*http.Request) (*url.URL, error) {
	if options.HTTPSProxy != "" {
		return func(*http.Request) (*url.URL, error) {
			return url.Parse(options.HTTPSProxy)
		}
	}

	if options.HTTPProxy != "" {
		return func(*http.Request) (*url.URL, error) {
			return url.Parse(options.HTTPProxy)
		}
	}

	return http.ProxyFromEnvironment
}

func getTLSConfig(options ClientOptions) *tls.Config {
	if options.CaCerts != nil {
		return &tls.Config{
			RootCAs:    options.CaCerts,
			MinVersion: tls.VersionTLS12,
		}
	}

	return nil
}

// attemptOutcome classifies a single delivery attempt.
type attemptOutcome int

const (
	outcomeSuccess attemptOutcome = iota
	// outcomeRetryable covers connection-level failures and 5xx responses
	// without a rate-limit signal.
	outcomeRetryable
	// outcomeRateLimited covers 429s and any rejection carrying rate-limit
	// headers: retrying would only burn quota.
	outcomeRateLimited
	// outcomeRejected covers other definitive client errors.
	outcomeRejected
)

// httpSender is the delivery core shared by the synchronous and asynchronous
// transports: rate-limit partitioning, envelope POST, retries and discard
// accounting.
type httpSender struct {
	dsn       *Dsn
	client    *http.Client
	transport http.RoundTripper

	limits  *ratelimit.Limiter
	reports *report.Aggregator

	compress     bool
	maxRetries   int
	retryBackoff time.Duration
	timeout      time.Duration
}

func (s *httpSender) configure(options ClientOptions) error {
	dsn, err := NewDsn(options.Dsn)
	if err != nil {
		return err
	}
	s.dsn = dsn
	s.limits = ratelimit.NewLimiter()
	s.reports = report.GetAggregator(dsn.String())
	s.compress = options.EnableCompression

	s.maxRetries = options.MaxRetries
	if s.maxRetries == 0 {
		s.maxRetries = defaultMaxRetries
	} else if s.maxRetries < 0 {
		s.maxRetries = 0
	}

	s.retryBackoff = options.RetryBackoff
	if s.retryBackoff <= 0 {
		s.retryBackoff = defaultRetryBackoff
	}

	s.timeout = options.RequestTimeout
	if s.timeout <= 0 {
		s.timeout = defaultTimeout
	}

	if options.HTTPTransport != nil {
		s.transport = options.HTTPTransport
	} else {
		s.transport = &http.Transport{
			Proxy:           getProxyConfig(options),
			TLSClientConfig: getTLSConfig(options),
		}
	}

	if options.HTTPClient != nil {
		s.client = options.HTTPClient
	} else {
		s.client = &http.Client{
			Transport: s.transport,
		}
	}

	return nil
}

// pruneRateLimited removes items whose category is currently rate-limited,
// recording a discard for each.
func (s *httpSender) pruneRateLimited(envelope *protocol.Envelope) {
	kept := envelope.Items[:0]
	for _, item := range envelope.Items {
		category := ratelimit.FromItemType(string(item.Header.Type))
		if s.limits.IsLimited(category) {
			debuglog.Printf("Dropping %s item: %s is rate-limited until %v",
				item.Header.Type, category, s.limits.Deadline(category))
			s.reports.RecordOne(report.ReasonRateLimiting, category)
			continue
		}
		kept = append(kept, item)
	}
	envelope.Items = kept
}

func hasClientReportItem(envelope *protocol.Envelope) bool {
	for _, item := range envelope.Items {
		if item.Header.Type == protocol.EnvelopeItemTypeClientReport {
			return true
		}
	}
	return false
}

// send delivers one envelope, retrying transient failures. It is safe for
// concurrent use.
func (s *httpSender) send(ctx context.Context, envelope *protocol.Envelope) (*SendResult, error) {
	if s.dsn == nil {
		return &SendResult{}, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s.pruneRateLimited(envelope)
	if len(envelope.Items) == 0 {
		// Everything was rate-limited; resolved without a network call.
		return &SendResult{}, nil
	}

	// Piggyback pending discard statistics on envelopes going out anyway.
	if !hasClientReportItem(envelope) {
		s.reports.AttachToEnvelope(envelope)
	}

	body, err := envelope.Serialize()
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}

	backoff := s.retryBackoff
	var lastErr error
	for attempt := 0; ; attempt++ {
		result, outcome, err := s.attempt(ctx, body)
		switch outcome {
		case outcomeSuccess:
			return result, nil
		case outcomeRateLimited:
			s.reports.RecordForEnvelope(report.ReasonRateLimiting, envelope)
			return nil, err
		case outcomeRejected:
			s.reports.RecordForEnvelope(report.ReasonNetworkError, envelope)
			return nil, err
		}
		lastErr = err

		if attempt >= s.maxRetries || ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			// Overall deadline elapsed while backing off: counted, not
			// retried further.
			s.reports.RecordForEnvelope(report.ReasonNetworkError, envelope)
			return nil, lastErr
		case <-time.After(backoff):
			backoff *= 2
		}
	}

	s.reports.RecordForEnvelope(report.ReasonNetworkError, envelope)
	return nil, lastErr
}

// attempt performs a single HTTP exchange.
func (s *httpSender) attempt(ctx context.Context, body []byte) (*SendResult, attemptOutcome, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	request, err := s.newRequest(attemptCtx, body)
	if err != nil {
		return nil, outcomeRejected, err
	}

	response, err := s.client.Do(request)
	if err != nil {
		return nil, outcomeRetryable, fmt.Errorf("there was an issue with sending an event: %w", err)
	}
	defer func() {
		// Drain body up to a limit and close it, allowing the transport to
		// reuse TCP connections.
		_, _ = io.CopyN(io.Discard, response.Body, maxDrainResponseBytes)
		response.Body.Close()
	}()

	// Quota information arrives on successful responses too, so the rate
	// limit table is updated on every exchange.
	s.limits.UpdateFromResponse(response)

	switch {
	case response.StatusCode >= 200 && response.StatusCode < 300:
		result := &SendResult{StatusCode: response.StatusCode}
		var serverResponse struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(io.LimitReader(response.Body, maxDrainResponseBytes)).Decode(&serverResponse); err == nil {
			result.EventID = serverResponse.ID
		}
		return result, outcomeSuccess, nil

	case response.StatusCode == http.StatusTooManyRequests || hasRateLimitSignal(response):
		return nil, outcomeRateLimited, s.requestFailure(response)

	case response.StatusCode >= 500:
		return nil, outcomeRetryable, s.requestFailure(response)

	default:
		return nil, outcomeRejected, s.requestFailure(response)
	}
}

func (s *httpSender) newRequest(ctx context.Context, body []byte) (*http.Request, error) {
	var reader io.Reader = bytes.NewReader(body)
	compressed := false

	if s.compress {
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(body); err == nil && w.Close() == nil {
			reader = &buf
			compressed = true
		}
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, s.dsn.EnvelopeAPIURL().String(), reader)
	if err != nil {
		return nil, err
	}

	for headerKey, headerValue := range s.dsn.RequestHeaders(sdkUserAgent) {
		request.Header.Set(headerKey, headerValue)
	}
	request.Header.Set("User-Agent", sdkUserAgent)
	if compressed {
		request.Header.Set("Content-Encoding", "gzip")
	}

	return request, nil
}

func (s *httpSender) requestFailure(response *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(response.Body, maxDrainResponseBytes))
	return &RequestFailureError{
		StatusCode: response.StatusCode,
		Body:       string(bytes.TrimSpace(b)),
	}
}

func hasRateLimitSignal(response *http.Response) bool {
	return response.Header.Get("X-Sentry-Rate-Limits") != "" ||
		response.Header.Get("Retry-After") != ""
}

// ================================
// HTTPSyncTransport
// ================================

// HTTPSyncTransport is a blocking implementation of Transport.
//
// Clients using this transport will send envelopes sequentially and block
// until a response is returned or retries are exhausted.
//
// The blocking behavior is useful in a limited set of use cases, for example
// when deploying code to a Function as a Service ("Serverless") platform,
// where any work happening in a background goroutine is not guaranteed to
// execute. For most cases, prefer HTTPTransport.
type HTTPSyncTransport struct {
	sender httpSender
}

// NewHTTPSyncTransport returns an unconfigured HTTPSyncTransport.
func NewHTTPSyncTransport() *HTTPSyncTransport {
	return &HTTPSyncTransport{}
}

// Configure is called by the Client, providing its options.
func (t *HTTPSyncTransport) Configure(options ClientOptions) {
	if err := t.sender.configure(options); err != nil {
		debuglog.Printf("%v\n", err)
	}
}

// SendEnvelope delivers the envelope, blocking the caller until the exchange
// resolves. The returned error surfaces transport failures after exhausting
// retries.
func (t *HTTPSyncTransport) SendEnvelope(ctx context.Context, envelope *protocol.Envelope) (*SendResult, error) {
	return t.sender.send(ctx, envelope)
}

// Flush is a no-op for HTTPSyncTransport. It always returns true immediately.
func (t *HTTPSyncTransport) Flush(time.Duration) bool {
	return true
}

// Close is a no-op for HTTPSyncTransport.
func (t *HTTPSyncTransport) Close() {}

// ================================
// HTTPTransport
// ================================

// HTTPTransport is the default, non-blocking implementation of Transport.
//
// Envelopes are dispatched to a bounded queue consumed by background workers.
// When the queue is full, new envelopes are dropped and recorded as
// queue_overflow discards rather than blocking the caller.
type HTTPTransport struct {
	sender httpSender

	queue       chan *protocol.Envelope
	queueSize   int
	workerCount int

	pending sync.WaitGroup
	wg      sync.WaitGroup

	mu        sync.Mutex
	closed    bool
	startOnce sync.Once
}

// NewHTTPTransport returns an unconfigured HTTPTransport.
func NewHTTPTransport() *HTTPTransport {
	return &HTTPTransport{
		queueSize:   defaultQueueSize,
		workerCount: defaultWorkerCount,
	}
}

// Configure is called by the Client, providing its options. Workers start on
// the first call.
func (t *HTTPTransport) Configure(options ClientOptions) {
	if err := t.sender.configure(options); err != nil {
		debuglog.Printf("%v\n", err)
		return
	}

	if options.QueueSize > 0 {
		t.queueSize = options.QueueSize
	}

	t.startOnce.Do(func() {
		t.queue = make(chan *protocol.Envelope, t.queueSize)
		for i := 0; i < t.workerCount; i++ {
			t.wg.Add(1)
			go t.worker()
		}
	})
}

// SendEnvelope enqueues the envelope for background delivery. It never blocks:
// when the queue is full the envelope is dropped, recorded as a
// queue_overflow discard, and ErrTransportQueueFull is returned.
func (t *HTTPTransport) SendEnvelope(_ context.Context, envelope *protocol.Envelope) (*SendResult, error) {
	if t.sender.dsn == nil || t.queue == nil {
		return &SendResult{}, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrTransportClosed
	}

	select {
	case t.queue <- envelope:
		t.pending.Add(1)
		return nil, nil
	default:
		debuglog.Println("Envelope dropped due to transport queue being full")
		t.sender.reports.RecordForEnvelope(report.ReasonQueueOverflow, envelope)
		return nil, ErrTransportQueueFull
	}
}

func (t *HTTPTransport) worker() {
	defer t.wg.Done()
	for envelope := range t.queue {
		if _, err := t.sender.send(context.Background(), envelope); err != nil {
			// Asynchronous failures are logged and folded into discard
			// statistics, never surfaced to the capturing caller.
			debuglog.Printf("There was an issue with sending an envelope: %v", err)
		}
		t.pending.Done()
	}
}

// Flush waits until every envelope enqueued before the call has been
// processed, returning false if the timeout is reached first.
func (t *HTTPTransport) Flush(timeout time.Duration) bool {
	c := make(chan struct{})

	go func() {
		t.pending.Wait()
		close(c)
	}()

	select {
	case <-c:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Close stops the workers after draining the queue. The transport cannot be
// used afterwards.
func (t *HTTPTransport) Close() {
	t.mu.Lock()
	if t.closed || t.queue == nil {
		t.mu.Unlock()
		return
	}
	t.closed = true
	close(t.queue)
	t.mu.Unlock()

	t.wg.Wait()
}

// ================================
// noopTransport
// ================================

// noopTransport is an implementation of Transport that drops all events.
// Used internally when an empty DSN is provided or delivery is explicitly
// suppressed, which effectively disables sending events to the server.
type noopTransport struct{}

var _ Transport = noopTransport{}

func (noopTransport) Configure(ClientOptions) {
	debuglog.Println("Transport initialized with delivery suppressed. Using noop transport. Events will not be delivered.")
}

func (noopTransport) SendEnvelope(context.Context, *protocol.Envelope) (*SendResult, error) {
	return &SendResult{}, nil
}

func (noopTransport) Flush(time.Duration) bool {
	return true
}

func (noopTransport) Close() {}
