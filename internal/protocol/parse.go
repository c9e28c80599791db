package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Parse decodes an envelope from its wire format. It is the inverse of
// Serialize and round-trips exactly for well-formed input. Trailing blank
// lines are tolerated; anything else malformed is an error.
func Parse(data []byte) (*Envelope, error) {
	r := &envelopeReader{data: data}

	headerLine, err := r.readLine()
	if err != nil {
		return nil, errors.New("envelope: missing header line")
	}
	var header EnvelopeHeader
	if err := json.Unmarshal(headerLine, &header); err != nil {
		return nil, fmt.Errorf("envelope: malformed header: %w", err)
	}

	envelope := NewEnvelope(&header)

	for {
		line, err := r.readLine()
		if err == io.EOF {
			break
		}
		if len(bytes.TrimSpace(line)) == 0 {
			// Trailing newline after the last item, or stray blank lines.
			continue
		}

		var itemHeader EnvelopeItemHeader
		if err := json.Unmarshal(line, &itemHeader); err != nil {
			return nil, fmt.Errorf("envelope: malformed item header: %w", err)
		}

		var payload []byte
		if itemHeader.Length != nil {
			if *itemHeader.Length < 0 {
				return nil, errors.New("envelope: negative item length")
			}
			payload, err = r.readN(*itemHeader.Length)
			if err != nil {
				return nil, fmt.Errorf("envelope: truncated item payload: want %d bytes", *itemHeader.Length)
			}
			r.skipNewline()
		} else {
			// Without an explicit length the payload implicitly runs to the
			// next newline.
			payload, err = r.readLine()
			if err == io.EOF {
				payload = nil
			}
		}

		envelope.AddItem(&EnvelopeItem{Header: &itemHeader, Payload: payload})
	}

	if len(envelope.Items) == 0 {
		return nil, errors.New("envelope: contains no items")
	}

	return envelope, nil
}

// envelopeReader is a cursor over the raw envelope bytes.
type envelopeReader struct {
	data []byte
	pos  int
}

// readLine returns the next line without its trailing newline. io.EOF is
// returned only when no bytes remain.
func (r *envelopeReader) readLine() ([]byte, error) {
	if r.pos >= len(r.data) {
		return nil, io.EOF
	}
	idx := bytes.IndexByte(r.data[r.pos:], '\n')
	if idx < 0 {
		line := r.data[r.pos:]
		r.pos = len(r.data)
		return line, nil
	}
	line := r.data[r.pos : r.pos+idx]
	r.pos += idx + 1
	return line, nil
}

// readN returns the next n bytes, which may span newlines.
func (r *envelopeReader) readN(n int) ([]byte, error) {
	if r.pos+n > len(r.data) {
		return nil, io.ErrUnexpectedEOF
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// skipNewline consumes a single newline, if present, after a length-framed
// payload.
func (r *envelopeReader) skipNewline() {
	if r.pos < len(r.data) && r.data[r.pos] == '\n' {
		r.pos++
	}
}
