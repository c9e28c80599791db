package report

import (
	"encoding/json"
	"time"

	"github.com/sentinel-obs/sentinel-go/internal/protocol"
)

// ClientReport is a snapshot of discarded-event outcomes taken at flush time.
// Each snapshot is internally consistent; list order is not stable across
// flushes.
type ClientReport struct {
	Timestamp       time.Time
	DiscardedEvents []DiscardedEvent
}

// serializedClientReport is the wire shape: the timestamp is transmitted with
// second precision as seconds since epoch.
type serializedClientReport struct {
	Timestamp       int64            `json:"timestamp"`
	DiscardedEvents []DiscardedEvent `json:"discarded_events"`
}

// MarshalJSON converts the ClientReport to its wire representation.
func (r *ClientReport) MarshalJSON() ([]byte, error) {
	return json.Marshal(serializedClientReport{
		Timestamp:       r.Timestamp.Unix(),
		DiscardedEvents: r.DiscardedEvents,
	})
}

// UnmarshalJSON decodes the wire representation of a ClientReport.
func (r *ClientReport) UnmarshalJSON(data []byte) error {
	var s serializedClientReport
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	r.Timestamp = time.Unix(s.Timestamp, 0).UTC()
	r.DiscardedEvents = s.DiscardedEvents
	return nil
}

// ToEnvelopeItem serializes the report into a client_report envelope item.
func (r *ClientReport) ToEnvelopeItem() (*protocol.EnvelopeItem, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return protocol.NewEnvelopeItem(protocol.EnvelopeItemTypeClientReport, payload), nil
}
