// Package sse decodes server-sent-event byte streams into discrete frames.
package sse

import (
	"encoding/json"
	"strings"
)

// doneSentinel is the literal payload some legacy endpoints emit to mark
// stream end with no further JSON to parse.
const doneSentinel = "[DONE]"

// Frame is one decoded server-sent event: the type announced by the
// preceding "event:" line (empty when the stream never sent one) and the
// JSON payload of a single "data:" line.
type Frame struct {
	EventType string
	Data      json.RawMessage
}

// Decoder reassembles SSE frames from an arbitrarily-chunked byte stream.
// It keeps the trailing partial line between Feed calls, so chunks may split
// anywhere, including mid-line. A Decoder is not safe for concurrent use.
type Decoder struct {
	buf       string
	eventType string
	dropped   int
}

// NewDecoder returns an empty Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends chunk to the internal buffer and returns all frames completed
// by it, in arrival order.
//
// Lines beginning "event:" set the current event type for subsequent "data:"
// lines. Each "data:" line yields one frame. Data lines that do not parse as
// JSON are dropped rather than aborting the stream; one bad frame must not
// lose the rest of the turn. Blank lines and unknown field lines are ignored.
func (d *Decoder) Feed(chunk []byte) []Frame {
	d.buf += string(chunk)

	lines := strings.Split(d.buf, "\n")
	d.buf = lines[len(lines)-1]

	var frames []Frame
	for _, line := range lines[:len(lines)-1] {
		line = strings.TrimSuffix(line, "\r")
		switch {
		case strings.HasPrefix(line, "event:"):
			d.eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			raw := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if raw == "" {
				continue
			}
			if raw == doneSentinel {
				frames = append(frames, Frame{EventType: "done"})
				continue
			}
			if !json.Valid([]byte(raw)) {
				d.dropped++
				continue
			}
			frames = append(frames, Frame{EventType: d.eventType, Data: json.RawMessage(raw)})
		}
	}
	return frames
}

// Dropped reports how many malformed data lines were discarded so far.
func (d *Decoder) Dropped() int {
	return d.dropped
}
