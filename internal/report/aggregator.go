package report

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sentinel-obs/sentinel-go/internal/debuglog"
	"github.com/sentinel-obs/sentinel-go/internal/protocol"
	"github.com/sentinel-obs/sentinel-go/internal/ratelimit"
)

// SubmitFunc delivers a flushed client-report envelope. A failed submission is
// logged and never re-queued: the counters backing the report were already
// reset, trading exact accounting for bounded memory.
type SubmitFunc func(*protocol.Envelope) error

// Aggregator collects discarded event outcomes for client reports.
//
// Counter mutation is funneled through this single owner; callers never touch
// the map directly, so concurrent capture sites cannot race on it. An optional
// background flusher periodically snapshots the counters into a client report
// and submits it.
type Aggregator struct {
	mu       sync.Mutex
	outcomes map[OutcomeKey]*atomic.Int64

	enabled atomic.Bool

	submit   SubmitFunc
	interval time.Duration

	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once
}

// NewAggregator creates a new client report Aggregator.
func NewAggregator() *Aggregator {
	a := &Aggregator{
		outcomes: make(map[OutcomeKey]*atomic.Int64),
		done:     make(chan struct{}),
	}
	a.enabled.Store(true)
	return a
}

// SetEnabled enables or disables outcome recording.
func (a *Aggregator) SetEnabled(enabled bool) {
	a.enabled.Store(enabled)
}

// IsEnabled returns whether outcome recording is enabled.
func (a *Aggregator) IsEnabled() bool {
	return a.enabled.Load()
}

// Record records a discarded event outcome.
func (a *Aggregator) Record(reason DiscardReason, category ratelimit.Category, quantity int64) {
	if a == nil || !a.enabled.Load() || quantity <= 0 {
		return
	}

	key := OutcomeKey{Reason: reason, Category: category}

	a.mu.Lock()
	counter, exists := a.outcomes[key]
	if !exists {
		counter = &atomic.Int64{}
		a.outcomes[key] = counter
	}
	// Incrementing under the lock keeps the counter from being swapped out of
	// the map by a concurrent TakeReport before the increment lands.
	counter.Add(quantity)
	a.mu.Unlock()
}

// RecordOne is a helper method to record one discarded event outcome.
func (a *Aggregator) RecordOne(reason DiscardReason, category ratelimit.Category) {
	a.Record(reason, category, 1)
}

// RecordForEnvelope records outcomes for every item in the envelope, deriving
// each item's category from its header.
func (a *Aggregator) RecordForEnvelope(reason DiscardReason, envelope *protocol.Envelope) {
	if a == nil || envelope == nil {
		return
	}
	for _, item := range envelope.Items {
		if item == nil || item.Header == nil {
			continue
		}
		if item.Header.Type == protocol.EnvelopeItemTypeClientReport {
			// Reports about reports would amplify forever.
			continue
		}
		a.RecordOne(reason, ratelimit.FromItemType(string(item.Header.Type)))
	}
}

// TakeReport atomically takes all accumulated outcomes and returns a
// ClientReport, resetting the counters. It returns nil when there is nothing
// to report.
func (a *Aggregator) TakeReport() *ClientReport {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.outcomes) == 0 {
		return nil
	}

	var events []DiscardedEvent
	for key, counter := range a.outcomes {
		quantity := counter.Swap(0)
		if quantity > 0 {
			events = append(events, DiscardedEvent{
				Reason:   key.Reason,
				Category: key.Category,
				Quantity: quantity,
			})
		}
	}

	// Clear empty counters to prevent unbounded growth
	for key, counter := range a.outcomes {
		if counter.Load() == 0 {
			delete(a.outcomes, key)
		}
	}

	if len(events) == 0 {
		return nil
	}

	return &ClientReport{
		Timestamp:       time.Now(),
		DiscardedEvents: events,
	}
}

// AttachToEnvelope adds a client report item to the envelope if outcomes are
// pending, piggybacking on an envelope that is going out anyway.
func (a *Aggregator) AttachToEnvelope(envelope *protocol.Envelope) {
	r := a.TakeReport()
	if r != nil {
		rItem, err := r.ToEnvelopeItem()
		if err == nil {
			envelope.AddItem(rItem)
		} else {
			debuglog.Printf("failed to serialize client report: %v, with err: %v", r, err)
		}
	}
}

// Start launches the background flusher. The interval controls how often
// pending outcomes are turned into a client report and handed to submit.
// Start is idempotent; only the first call takes effect.
func (a *Aggregator) Start(interval time.Duration, submit SubmitFunc) {
	if a == nil || submit == nil || interval <= 0 {
		return
	}
	a.startOnce.Do(func() {
		a.submit = submit
		a.interval = interval
		a.wg.Add(1)
		go a.run()
	})
}

func (a *Aggregator) run() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.Flush()
		case <-a.done:
			return
		}
	}
}

// Flush snapshots pending outcomes into a client report envelope and submits
// it. If no outcomes are pending it is a no-op. Submission failures are logged
// and the outcomes are not restored.
func (a *Aggregator) Flush() {
	if a == nil {
		return
	}
	r := a.TakeReport()
	if r == nil {
		return
	}
	if a.submit == nil {
		debuglog.Println("client report dropped: no submitter configured")
		return
	}

	item, err := r.ToEnvelopeItem()
	if err != nil {
		debuglog.Printf("failed to serialize client report: %v", err)
		return
	}

	envelope := protocol.NewEnvelope(&protocol.EnvelopeHeader{
		EventID: protocol.GenerateEventID(),
		SentAt:  time.Now().UTC(),
	})
	envelope.AddItem(item)

	if err := a.submit(envelope); err != nil {
		debuglog.Printf("failed to send client report: %v", err)
	}
}

// Close stops the background flusher, performing one final best-effort flush
// of pending outcomes. Close is idempotent.
func (a *Aggregator) Close() {
	if a == nil {
		return
	}
	a.closeOnce.Do(func() {
		close(a.done)
		a.wg.Wait()
		a.Flush()
	})
}
