package depth

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Keys of the depth update object.
const (
	KeyBids          = "b"
	KeyAsks          = "a"
	KeyEventType     = "e"
	KeyEventTime     = "E"
	KeySymbol        = "s"
	KeyFirstUpdateID = "U"
	KeyFinalUpdateID = "u"
)

// ErrMalformedMessage is returned when a payload is not a JSON object.
var ErrMalformedMessage = errors.New("malformed depth message")

// Message is a decoded depth update kept as a generic JSON tree.
type Message struct {
	fields map[string]any
}

// Parse decodes payload into a Message. Numbers are kept as json.Number so
// update ids do not lose precision.
func Parse(payload []byte) (Message, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if fields == nil {
		return Message{}, fmt.Errorf("%w: not an object", ErrMalformedMessage)
	}
	if dec.More() {
		return Message{}, fmt.Errorf("%w: trailing data", ErrMalformedMessage)
	}
	return Message{fields: fields}, nil
}

// Entries returns the array stored at key. ok is false if the key is absent.
// A present key whose value is not an array yields an empty slice.
func (m Message) Entries(key string) (entries []any, ok bool) {
	v, ok := m.fields[key]
	if !ok {
		return nil, false
	}
	entries, _ = v.([]any)
	return entries, true
}

// EventType returns "e", e.g. "depthUpdate".
func (m Message) EventType() string {
	return m.str(KeyEventType)
}

// Symbol returns "s", e.g. "BNBBTC".
func (m Message) Symbol() string {
	return m.str(KeySymbol)
}

// EventTime returns "E" (milliseconds since epoch) as a time. Zero if absent.
func (m Message) EventTime() time.Time {
	ms := m.number(KeyEventTime)
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// FirstUpdateID returns "U".
func (m Message) FirstUpdateID() int64 {
	return m.number(KeyFirstUpdateID)
}

// FinalUpdateID returns "u".
func (m Message) FinalUpdateID() int64 {
	return m.number(KeyFinalUpdateID)
}

func (m Message) str(key string) string {
	s, _ := m.fields[key].(string)
	return s
}

func (m Message) number(key string) int64 {
	n, ok := m.fields[key].(json.Number)
	if !ok {
		return 0
	}
	v, err := n.Int64()
	if err != nil {
		return 0
	}
	return v
}
