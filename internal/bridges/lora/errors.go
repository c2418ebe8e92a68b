package lora

import "errors"

// Domain errors for the LoRa bridge package.
var (
	// ErrLinkLost is returned by Bridge.Run when the byte source fails or closes.
	ErrLinkLost = errors.New("lora: link lost")

	// ErrMalformedMessage is reported for lines that look like events but cannot be decoded.
	ErrMalformedMessage = errors.New("lora: malformed message")

	// ErrAlreadyRunning is returned when Run is called on a bridge that has already run.
	ErrAlreadyRunning = errors.New("lora: bridge already running")

	// ErrDispatcherClosed is reported for events that arrive after the dispatcher closed.
	ErrDispatcherClosed = errors.New("lora: dispatcher closed")

	// ErrResourceMissing is reported when a configured sound resource cannot be found.
	ErrResourceMissing = errors.New("lora: alert resource missing")

	// ErrSerialOpen is returned when the serial port cannot be opened.
	ErrSerialOpen = errors.New("lora: serial port open failed")
)
