package sentinel

import (
	"context"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/sentinel-obs/sentinel-go/internal/debuglog"
	"github.com/sentinel-obs/sentinel-go/internal/protocol"
	"github.com/sentinel-obs/sentinel-go/internal/report"
)

const sdkName = "sentinel.go"

// SDKVersion is the version of the SDK.
const SDKVersion = "0.5.0"

const sdkUserAgent = sdkName + "/" + SDKVersion

// maxErrorDepth is the maximum number of errors reported in a chain of errors.
// This protects the SDK from unbounded recursion in misbehaving Unwrap
// implementations.
const maxErrorDepth = 10

const defaultReportFlushInterval = 30 * time.Second

// DeliveryMode selects how captured envelopes are delivered.
type DeliveryMode string

const (
	// DeliveryModeSync blocks the capturing caller until the envelope is
	// delivered or definitively fails.
	DeliveryModeSync DeliveryMode = "sync"
	// DeliveryModeAsync dispatches envelopes to background workers. This is
	// the default.
	DeliveryModeAsync DeliveryMode = "async"
	// DeliveryModeNone suppresses delivery entirely.
	DeliveryModeNone DeliveryMode = "none"
)

// EventProcessor is a function that processes an event. Returning nil drops
// the event, which is recorded as an event_processor discard.
type EventProcessor func(event *Event, hint *EventHint) *Event

// ClientOptions configure a Client.
type ClientOptions struct {
	// The DSN to use. If the DSN is not set, the client is effectively
	// disabled. Falls back to the SENTINEL_DSN environment variable.
	Dsn string
	// In debug mode, the SDK prints useful debugging information to the debug
	// logger.
	Debug bool
	// DebugLogger replaces the default destination of debug output.
	DebugLogger *log.Logger
	// The sample rate for event submission in the range [0.0, 1.0]. By
	// default, all events are sent.
	SampleRate float64
	// BeforeSend is called before error and transaction events are sent.
	// Returning nil drops the event, recorded as a before_send discard.
	BeforeSend func(event *Event, hint *EventHint) *Event
	// EventProcessors run before BeforeSend, in order.
	EventProcessors []EventProcessor

	ServerName  string
	Release     string
	Dist        string
	Environment string
	// Tags are applied to every event that does not already carry a tag with
	// the same key.
	Tags map[string]string

	// Transport overrides the delivery mechanism. When nil, one is chosen
	// according to DeliveryMode.
	Transport Transport
	// DeliveryMode selects sync, async or suppressed delivery. Defaults to
	// async.
	DeliveryMode DeliveryMode
	// MaxRetries is the number of delivery retries after a transient failure.
	// Zero means the default of 3; a negative value disables retries.
	MaxRetries int
	// RetryBackoff is the delay before the first retry; it doubles for each
	// subsequent attempt.
	RetryBackoff time.Duration
	// RequestTimeout bounds each delivery attempt.
	RequestTimeout time.Duration
	// QueueSize is the capacity of the async transport queue.
	QueueSize int

	// DisableDedupe turns off suppression of near-immediate repeated events.
	DisableDedupe bool
	// DisableClientReports turns off recording and sending of discarded-event
	// statistics.
	DisableClientReports bool
	// ReportFlushInterval is how often pending discard statistics are flushed
	// as a client report. Defaults to 30 seconds.
	ReportFlushInterval time.Duration
	// EnableCompression gzip-compresses envelope request bodies.
	EnableCompression bool

	// An optional HTTP client to use. Conflicts with HTTPTransport and the
	// proxy and CA options below.
	HTTPClient *http.Client
	// An optional HTTP transport to use.
	HTTPTransport http.RoundTripper
	// An optional HTTP proxy to use.
	HTTPProxy string
	// An optional HTTPS proxy to use, taking precedence over HTTPProxy.
	HTTPSProxy string
	// An optional set of SSL certificates to use.
	CaCerts *x509.CertPool
}

// Client is the composition root of the capture pipeline: events flow through
// deduplication, rate-limit checks and envelope encoding into the transport,
// and discard statistics flow into the client report aggregator.
type Client struct {
	options   ClientOptions
	dsn       *Dsn
	transport Transport
	dedupe    *Deduplicator
	reports   *report.Aggregator
}

// NewClient creates and returns an instance of Client configured using options.
//
// Most users will not create clients directly; use Init and the package-level
// capture functions instead.
func NewClient(options ClientOptions) (*Client, error) {
	if options.Debug || options.DebugLogger != nil {
		if options.DebugLogger != nil {
			debuglog.SetLogger(options.DebugLogger)
		} else {
			debuglog.SetOutput(os.Stderr)
		}
	}

	if options.Dsn == "" {
		options.Dsn = os.Getenv("SENTINEL_DSN")
	}
	if options.Release == "" {
		options.Release = os.Getenv("SENTINEL_RELEASE")
	}
	if options.Environment == "" {
		options.Environment = os.Getenv("SENTINEL_ENVIRONMENT")
	}
	if options.ServerName == "" {
		if hostname, err := os.Hostname(); err == nil {
			options.ServerName = hostname
		}
	}

	client := &Client{
		options: options,
		dedupe:  NewDeduplicator(options.DisableDedupe),
	}

	if options.Dsn == "" {
		debuglog.Println("Client initialized with an empty DSN. Using noop transport. Events will not be delivered.")
		client.transport = noopTransport{}
		return client, nil
	}

	dsn, err := NewDsn(options.Dsn)
	if err != nil {
		return nil, err
	}
	client.dsn = dsn

	// The aggregator must exist before the transport configures itself, so
	// both resolve to the same counters through the registry.
	client.reports = report.GetOrCreateAggregator(dsn.String())
	client.reports.SetEnabled(!options.DisableClientReports)

	transport := options.Transport
	if transport == nil {
		switch options.DeliveryMode {
		case DeliveryModeSync:
			transport = NewHTTPSyncTransport()
		case DeliveryModeNone:
			transport = noopTransport{}
		default:
			transport = NewHTTPTransport()
		}
	}
	transport.Configure(options)
	client.transport = transport

	if !options.DisableClientReports {
		interval := options.ReportFlushInterval
		if interval <= 0 {
			interval = defaultReportFlushInterval
		}
		client.reports.Start(interval, func(envelope *protocol.Envelope) error {
			_, err := transport.SendEnvelope(context.Background(), envelope)
			return err
		})
	}

	return client, nil
}

// Options returns the options used to create the client.
func (c *Client) Options() ClientOptions {
	return c.options
}

// CaptureMessage captures an arbitrary message.
func (c *Client) CaptureMessage(message string, hint *EventHint) *EventID {
	event := c.eventFromMessage(message, LevelInfo)
	return c.CaptureEvent(event, hint)
}

// CaptureException captures an error.
func (c *Client) CaptureException(exception error, hint *EventHint) *EventID {
	event := c.eventFromException(exception, LevelError)
	return c.CaptureEvent(event, hint)
}

// CaptureEvent captures an event.
//
// In asynchronous delivery mode the returned id is the client-generated one;
// delivery failures are logged and folded into discard statistics. Use
// CaptureEventWithContext with a synchronous transport to observe delivery
// errors.
func (c *Client) CaptureEvent(event *Event, hint *EventHint) *EventID {
	id, err := c.CaptureEventWithContext(context.Background(), event, hint)
	if err != nil {
		debuglog.Printf("Event delivery failed: %v", err)
		return nil
	}
	return id
}

// CaptureEventWithContext captures an event, bounding delivery by ctx. The
// returned error is only meaningful with a synchronous transport; asynchronous
// transports resolve failures in the background.
func (c *Client) CaptureEventWithContext(ctx context.Context, event *Event, hint *EventHint) (*EventID, error) {
	if event == nil {
		return nil, nil
	}
	return c.processEvent(ctx, event, hint)
}

// CaptureCheckIn captures a monitor check-in. The returned EventID identifies
// the check-in lifecycle: pass it via CheckIn.ID when closing an in-progress
// check-in.
func (c *Client) CaptureCheckIn(checkIn *CheckIn, monitorConfig *MonitorConfig) *EventID {
	if checkIn == nil {
		return nil
	}

	id := checkIn.ID
	if id == "" {
		id = EventID(protocol.GenerateEventID())
	}

	event := &Event{
		Type:    checkInType,
		EventID: id,
		CheckIn: &CheckIn{
			ID:          id,
			MonitorSlug: checkIn.MonitorSlug,
			Status:      checkIn.Status,
			Duration:    checkIn.Duration,
		},
		MonitorConfig: monitorConfig,
	}

	if captured := c.CaptureEvent(event, nil); captured == nil {
		return nil
	}
	return &id
}

func (c *Client) eventFromMessage(message string, level Level) *Event {
	event := NewEvent()
	event.Level = level
	event.Message = message
	return event
}

func (c *Client) eventFromException(exception error, level Level) *Event {
	err := exception
	if err == nil {
		err = fmt.Errorf("called with nil error")
	}

	event := NewEvent()
	event.Level = level
	event.SetException(err, maxErrorDepth)
	return event
}

func (c *Client) processEvent(ctx context.Context, event *Event, hint *EventHint) (*EventID, error) {
	options := c.options
	category := event.dataCategory()

	// Events may be dropped by sampling before any further work happens.
	// Check-ins are never sampled away.
	if event.Type != checkInType && options.SampleRate > 0 && options.SampleRate < 1 {
		if rand.Float64() > options.SampleRate {
			debuglog.Println("Event dropped due to SampleRate hit.")
			return nil, nil
		}
	}

	event = c.prepareEvent(event)

	for _, processor := range options.EventProcessors {
		event = processor(event, hint)
		if event == nil {
			debuglog.Println("Event dropped by one of the EventProcessors.")
			c.reports.RecordOne(report.ReasonEventProcessor, category)
			return nil, nil
		}
	}

	if options.BeforeSend != nil && event.Type != checkInType {
		if event = options.BeforeSend(event, hint); event == nil {
			debuglog.Println("Event dropped due to BeforeSend callback.")
			c.reports.RecordOne(report.ReasonBeforeSend, category)
			return nil, nil
		}
	}

	// Deduplicated events are suppressed silently: they never entered the
	// pipeline, so they are not discards.
	if event.Type != checkInType && !c.dedupe.ShouldSend(event) {
		debuglog.Printf("Event dropped as a duplicate of an event sent within the last %v.", dedupeWindow)
		return nil, nil
	}

	envelope, err := c.envelopeFromEvent(event)
	if err != nil {
		return nil, err
	}

	eventID := event.EventID
	result, err := c.transport.SendEnvelope(ctx, envelope)
	if err != nil {
		return nil, err
	}
	// The server may assign its own identifier on synchronous delivery.
	if result != nil && result.EventID != "" {
		eventID = EventID(result.EventID)
	}
	return &eventID, nil
}

func (c *Client) prepareEvent(event *Event) *Event {
	if event.EventID == "" {
		event.EventID = EventID(protocol.GenerateEventID())
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Level == "" {
		event.Level = LevelInfo
	}
	if event.Platform == "" {
		event.Platform = "go"
	}
	if event.ServerName == "" {
		event.ServerName = c.options.ServerName
	}
	if event.Release == "" {
		event.Release = c.options.Release
	}
	if event.Dist == "" {
		event.Dist = c.options.Dist
	}
	if event.Environment == "" {
		event.Environment = c.options.Environment
	}
	if len(c.options.Tags) > 0 {
		if event.Tags == nil {
			event.Tags = make(map[string]string, len(c.options.Tags))
		}
		for key, value := range c.options.Tags {
			if _, ok := event.Tags[key]; !ok {
				event.Tags[key] = value
			}
		}
	}
	event.Sdk = SdkInfo{Name: sdkName, Version: SDKVersion}
	return event
}

func (c *Client) envelopeFromEvent(event *Event) (*protocol.Envelope, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event %s: %w", event.EventID, err)
	}

	header := &protocol.EnvelopeHeader{
		EventID: string(event.EventID),
		SentAt:  time.Now().UTC(),
		Sdk:     &protocol.SdkInfo{Name: sdkName, Version: SDKVersion},
	}
	if c.dsn != nil {
		header.Dsn = c.dsn.String()
	}

	envelope := protocol.NewEnvelope(header)
	envelope.AddItem(protocol.NewEnvelopeItem(event.envelopeItemType(), payload))
	return envelope, nil
}

// Flush triggers an immediate client report flush and waits until the
// underlying transport has delivered everything enqueued before the call,
// blocking at most the given timeout. It returns false if the timeout was
// reached.
func (c *Client) Flush(timeout time.Duration) bool {
	if c.reports != nil {
		c.reports.Flush()
	}
	return c.transport.Flush(timeout)
}

// Close drains the client: one final client report flush, then transport
// shutdown. The client cannot be used afterwards.
func (c *Client) Close() {
	if c.reports != nil {
		c.reports.Close()
	}
	c.transport.Flush(2 * time.Second)
	c.transport.Close()
	if c.dsn != nil {
		report.UnregisterAggregator(c.dsn.String())
	}
}
