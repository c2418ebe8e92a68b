package lora

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/lora-alert/internal/catalog"
)

// parityErrorMarker identifies a benign gateway diagnostic that is never surfaced.
const parityErrorMarker = "parity error"

// Kind classifies a decoded line.
type Kind int

const (
	// KindEvent is a well-formed "<id>:<type>" message.
	KindEvent Kind = iota

	// KindStatus is gateway text without a separator.
	KindStatus

	// KindSuppressed is input that is dropped without being reported.
	KindSuppressed

	// KindMalformed is input that contains a separator but cannot be decoded.
	KindMalformed
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindEvent:
		return "event"
	case KindStatus:
		return "status"
	case KindSuppressed:
		return "suppressed"
	case KindMalformed:
		return "malformed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is a decoded alert request from a remote node.
type Event struct {
	DeviceID catalog.DeviceID    `json:"device_id"`
	Type     catalog.MessageType `json:"message_type"`
}

// String returns the event in wire form.
func (e Event) String() string {
	return e.DeviceID.String() + ":" + string(e.Type)
}

// Decoded is the result of decoding one line.
type Decoded struct {
	Kind Kind

	// Event is set when Kind is KindEvent.
	Event Event

	// Text is the trimmed line.
	Text string

	// Reason explains a KindMalformed or KindSuppressed result.
	Reason string
}

// Err returns an error wrapping ErrMalformedMessage for malformed lines, nil otherwise.
func (d Decoded) Err() error {
	if d.Kind != KindMalformed {
		return nil
	}
	return fmt.Errorf("%w: %s: %q", ErrMalformedMessage, d.Reason, d.Text)
}

// Decode classifies one line.
//
//  1. Lines without ":" are status text, blank lines included, except
//     that lines containing "parity error" (any case) are suppressed.
//  2. Lines with exactly one ":" must have a non-negative decimal device
//     ID on the left and a non-empty type on the right. The type is
//     upper-cased. Device IDs are unsigned on the air, so a signed ID
//     such as "-1" or "+1" is malformed rather than an unknown device.
//  3. Anything else, including lines with invalid UTF-8 or lines longer
//     than the framer limit, is malformed.
//
// Decode does not check that the device or type is known.
func Decode(line Line) Decoded {
	switch {
	case line.Overflow:
		return malformed(line.Text, "line too long")
	case line.Invalid:
		return malformed(line.Text, "invalid encoding")
	}

	text := line.Text
	idPart, typePart, found := strings.Cut(text, ":")
	if !found {
		if strings.Contains(strings.ToLower(text), parityErrorMarker) {
			return Decoded{Kind: KindSuppressed, Text: text, Reason: parityErrorMarker}
		}
		return Decoded{Kind: KindStatus, Text: text}
	}

	if strings.Contains(typePart, ":") {
		return malformed(text, "more than one separator")
	}

	id, err := strconv.ParseUint(strings.TrimSpace(idPart), 10, 64)
	if err != nil {
		return malformed(text, "device id is not a non-negative integer")
	}

	msgType := catalog.NormalizeType(typePart)
	if msgType == "" {
		return malformed(text, "empty message type")
	}

	return Decoded{
		Kind:  KindEvent,
		Event: Event{DeviceID: catalog.DeviceID(id), Type: msgType},
		Text:  text,
	}
}

func malformed(text, reason string) Decoded {
	return Decoded{Kind: KindMalformed, Text: text, Reason: reason}
}
