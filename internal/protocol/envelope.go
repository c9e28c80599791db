// Package protocol implements the envelope wire format used to ship telemetry
// items to the ingestion endpoint.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Envelope represents a single request body containing a header and an ordered
// sequence of items.
type Envelope struct {
	Header *EnvelopeHeader `json:"-"`
	Items  []*EnvelopeItem `json:"-"`
}

// EnvelopeHeader represents the header of an envelope.
type EnvelopeHeader struct {
	// EventID is the unique identifier of the primary event in the envelope.
	EventID string `json:"event_id,omitempty"`

	// SentAt is the timestamp when the envelope left the SDK, used by the
	// server for clock drift correction. The time zone must be UTC.
	SentAt time.Time `json:"sent_at,omitempty"`

	// Dsn can be set for self-authenticated envelopes that carry all the
	// information necessary to be routed without request headers.
	Dsn string `json:"dsn,omitempty"`

	// Sdk identifies the client that produced the envelope.
	Sdk *SdkInfo `json:"sdk,omitempty"`
}

// SdkInfo identifies the SDK name and version in envelope and event headers.
type SdkInfo struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}

// EnvelopeItemType represents the type of an envelope item.
type EnvelopeItemType string

const (
	EnvelopeItemTypeEvent        EnvelopeItemType = "event"
	EnvelopeItemTypeTransaction  EnvelopeItemType = "transaction"
	EnvelopeItemTypeCheckIn      EnvelopeItemType = "check_in"
	EnvelopeItemTypeAttachment   EnvelopeItemType = "attachment"
	EnvelopeItemTypeClientReport EnvelopeItemType = "client_report"
)

// EnvelopeItemHeader represents the header of an envelope item.
type EnvelopeItemHeader struct {
	// Type specifies the type of this item and its contents.
	Type EnvelopeItemType `json:"type"`

	// Length is the length of the payload in bytes. This is an exact UTF-8
	// byte count, not a character count; payloads containing newline or
	// multi-byte characters rely on it to be framed correctly.
	Length *int `json:"length,omitempty"`

	// Filename is the name of the attachment file (used for attachments).
	Filename string `json:"filename,omitempty"`

	// ContentType is the MIME type of the item payload.
	ContentType string `json:"content_type,omitempty"`
}

// EnvelopeItem represents a single item within an envelope.
type EnvelopeItem struct {
	Header  *EnvelopeItemHeader `json:"-"`
	Payload []byte              `json:"-"`
}

// NewEnvelope creates a new envelope with the given header.
func NewEnvelope(header *EnvelopeHeader) *Envelope {
	return &Envelope{
		Header: header,
		Items:  make([]*EnvelopeItem, 0),
	}
}

// AddItem adds an item to the envelope.
func (e *Envelope) AddItem(item *EnvelopeItem) {
	e.Items = append(e.Items, item)
}

// Serialize serializes the envelope to the wire format.
//
// Format: Headers "\n" { Item } [ "\n" ]
// Item: Headers "\n" Payload "\n".
func (e *Envelope) Serialize() ([]byte, error) {
	var buf bytes.Buffer

	headerBytes, err := json.Marshal(e.Header)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope header: %w", err)
	}

	buf.Write(headerBytes)
	buf.WriteString("\n")

	for _, item := range e.Items {
		if err := writeItem(&buf, item); err != nil {
			return nil, fmt.Errorf("failed to write envelope item: %w", err)
		}
	}

	return buf.Bytes(), nil
}

// WriteTo writes the envelope to the given writer in the wire format.
func (e *Envelope) WriteTo(w io.Writer) (int64, error) {
	data, err := e.Serialize()
	if err != nil {
		return 0, err
	}

	n, err := w.Write(data)
	return int64(n), err
}

// writeItem writes a single envelope item to the buffer.
func writeItem(buf *bytes.Buffer, item *EnvelopeItem) error {
	headerBytes, err := json.Marshal(item.Header)
	if err != nil {
		return fmt.Errorf("failed to marshal item header: %w", err)
	}

	buf.Write(headerBytes)
	buf.WriteString("\n")

	if len(item.Payload) > 0 {
		buf.Write(item.Payload)
	}

	buf.WriteString("\n")
	return nil
}

// Size returns the total size of the envelope when serialized.
func (e *Envelope) Size() (int, error) {
	data, err := e.Serialize()
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

// NewEnvelopeItem creates a new envelope item with the specified type and
// payload.
func NewEnvelopeItem(itemType EnvelopeItemType, payload []byte) *EnvelopeItem {
	length := len(payload)
	return &EnvelopeItem{
		Header: &EnvelopeItemHeader{
			Type:   itemType,
			Length: &length,
		},
		Payload: payload,
	}
}

// NewAttachmentItem creates a new envelope item for an attachment.
func NewAttachmentItem(filename, contentType string, payload []byte) *EnvelopeItem {
	length := len(payload)
	return &EnvelopeItem{
		Header: &EnvelopeItemHeader{
			Type:        EnvelopeItemTypeAttachment,
			Length:      &length,
			ContentType: contentType,
			Filename:    filename,
		},
		Payload: payload,
	}
}
