package membership

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownEvent is returned for event types the handler does not know.
var ErrUnknownEvent = errors.New("unknown membership event")

// EventType is the kind of membership change.
type EventType int

// The zero value is not a valid event, so an event decoded without a type
// is rejected.
const (
	unknownEvent EventType = iota
	Join
	Leave
	Failed
	Update
)

// String returns the string representation of EventType.
func (t EventType) String() string {
	switch t {
	case Join:
		return "join"
	case Leave:
		return "leave"
	case Failed:
		return "failed"
	case Update:
		return "update"
	default:
		return "unknown"
	}
}

// ParseEventType is the inverse of String. Matching is case-insensitive.
func ParseEventType(s string) (EventType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "join":
		return Join, nil
	case "leave":
		return Leave, nil
	case "failed":
		return Failed, nil
	case "update":
		return Update, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownEvent, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t EventType) MarshalText() ([]byte, error) {
	if t < Join || t > Update {
		return nil, fmt.Errorf("%w: %d", ErrUnknownEvent, int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *EventType) UnmarshalText(b []byte) error {
	parsed, err := ParseEventType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Event is a single membership change. AvailableResources is read for Join
// and Update only.
type Event struct {
	Type               EventType `json:"type"`
	Node               string    `json:"node"`
	AvailableResources float64   `json:"available_resources,omitempty"`
}
