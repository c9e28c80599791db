package sentinel

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sentinel-obs/sentinel-go/internal/protocol"
	"github.com/sentinel-obs/sentinel-go/internal/report"
)

// TransportMock collects envelopes instead of delivering them.
type TransportMock struct {
	mu        sync.Mutex
	envelopes []*protocol.Envelope
}

var _ Transport = (*TransportMock)(nil)

func (t *TransportMock) Configure(ClientOptions) {}

func (t *TransportMock) SendEnvelope(_ context.Context, envelope *protocol.Envelope) (*SendResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.envelopes = append(t.envelopes, envelope)
	return &SendResult{}, nil
}

func (t *TransportMock) Flush(time.Duration) bool { return true }

func (t *TransportMock) Close() {}

func (t *TransportMock) Envelopes() []*protocol.Envelope {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*protocol.Envelope(nil), t.envelopes...)
}

// newTestClient builds a Client delivering through a TransportMock.
func newTestClient(t *testing.T, options ClientOptions) (*Client, *TransportMock) {
	t.Helper()
	t.Cleanup(report.ClearRegistry)

	transport := &TransportMock{}
	if options.Dsn == "" {
		options.Dsn = "https://key@example.com/1"
	}
	options.Transport = transport

	client, err := NewClient(options)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(client.Close)
	return client, transport
}

// eventFromEnvelope decodes the primary event item of an envelope.
func eventFromEnvelope(t *testing.T, envelope *protocol.Envelope) *Event {
	t.Helper()
	if len(envelope.Items) == 0 {
		t.Fatal("envelope has no items")
	}
	var event Event
	if err := json.Unmarshal(envelope.Items[0].Payload, &event); err != nil {
		t.Fatalf("failed to decode event payload: %v", err)
	}
	return &event
}
