package lora

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/tarm/serial"
)

// SerialConfig describes the UART the gateway is attached to.
type SerialConfig struct {
	Port        string
	Baud        int
	ReadTimeout time.Duration
}

// SerialSource is a ByteSource backed by a serial port (8N1).
type SerialSource struct {
	port *serial.Port
	name string

	closeOnce sync.Once
	closeErr  error
}

// OpenSerial opens the port described by cfg.
//
// Reads on the returned source block for at most cfg.ReadTimeout and
// report (0, nil) when nothing arrived.
func OpenSerial(cfg SerialConfig) (*SerialSource, error) {
	if cfg.Port == "" {
		return nil, fmt.Errorf("%w: no port configured", ErrSerialOpen)
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Port,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
		Size:        serial.DefaultSize,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSerialOpen, cfg.Port, err)
	}

	return &SerialSource{port: port, name: cfg.Port}, nil
}

// Name returns the port path.
func (s *SerialSource) Name() string {
	return s.name
}

// Read implements ByteSource.
//
// A read timeout surfaces from the driver as (0, io.EOF); that is reported
// as no data unless the device node has disappeared, as happens when a
// USB adapter is unplugged.
func (s *SerialSource) Read(p []byte) (int, error) {
	n, err := s.port.Read(p)
	if errors.Is(err, io.EOF) {
		if n == 0 && s.deviceGone() {
			return 0, fmt.Errorf("%s: device removed", s.name)
		}
		return n, nil
	}
	return n, err
}

// deviceGone reports whether a filesystem device node has vanished.
// Port names without a path (e.g. "COM7") are never reported as gone.
func (s *SerialSource) deviceGone() bool {
	if !strings.HasPrefix(s.name, "/") {
		return false
	}
	_, err := os.Stat(s.name)
	return errors.Is(err, os.ErrNotExist)
}

// Close closes the port. Later calls return the first result.
func (s *SerialSource) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.port.Close()
	})
	return s.closeErr
}

var _ ByteSource = (*SerialSource)(nil)
