package catalog

import (
	"strconv"
	"strings"
)

// DeviceID identifies a remote LoRa node.
type DeviceID uint64

// String returns the decimal form used on the wire.
func (id DeviceID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Location names the physical site a device is installed at (e.g. "Bar1").
// Several devices may share a location.
type Location string

// MessageType is the event tag carried by a wire message (e.g. "HELP").
// Types are compared in upper case.
type MessageType string

// NormalizeType upper-cases and trims a message type.
func NormalizeType(s string) MessageType {
	return MessageType(strings.ToUpper(strings.TrimSpace(s)))
}

// Device is one row of the device registry.
type Device struct {
	ID       DeviceID `json:"id"`
	Location Location `json:"location"`
}

// Rule is one row of the alert catalog.
type Rule struct {
	Location Location    `json:"location"`
	Type     MessageType `json:"message_type"`
	Resource string      `json:"resource"`
}

type ruleKey struct {
	location Location
	msgType  MessageType
}
