package lora

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// Framing constants.
const (
	// DefaultMaxLineLength is used when NewFramer is given a non-positive limit.
	DefaultMaxLineLength = 256

	// readChunkSize is the size of a single read from the source.
	readChunkSize = 128
)

// ByteSource is the serial side of the bridge.
//
// Read blocks for at most the source's own read timeout. It returns
// (0, nil) when no bytes arrived in that window. Any non-nil error means
// the link is closed or broken and is fatal to the ingest loop.
type ByteSource interface {
	Read(p []byte) (int, error)
	Close() error
}

// Line is one newline-delimited record read from the source.
type Line struct {
	// Text is the line with surrounding whitespace (including "\r") removed.
	// Invalid byte sequences are replaced with U+FFFD.
	Text string

	// Raw holds the untrimmed bytes, without the terminator.
	Raw []byte

	// Invalid is set when the bytes are not valid UTF-8.
	Invalid bool

	// Overflow is set when the line exceeded the framer's limit. Raw holds
	// the first bytes; the rest of the line up to its terminator is discarded.
	Overflow bool
}

// Framer turns a stream of partial reads into complete lines.
// It is not safe for concurrent use.
type Framer struct {
	src     ByteSource
	maxLine int

	buf        []byte
	chunk      []byte
	discarding bool
	err        error
}

// NewFramer creates a framer reading from src. Lines longer than maxLine
// bytes are reported with Overflow set.
func NewFramer(src ByteSource, maxLine int) *Framer {
	if maxLine <= 0 {
		maxLine = DefaultMaxLineLength
	}
	return &Framer{
		src:     src,
		maxLine: maxLine,
		buf:     make([]byte, 0, maxLine),
		chunk:   make([]byte, readChunkSize),
	}
}

// Next returns the next complete line.
//
// ok is false when no complete line is available yet; the caller should
// wait before calling again. err is non-nil once the source has failed and
// every line completed before the failure has been returned. After an
// error, Next keeps returning the same error.
func (f *Framer) Next() (line Line, ok bool, err error) {
	if line, ok = f.take(); ok {
		return line, true, nil
	}
	if f.err != nil {
		return Line{}, false, f.err
	}

	n, readErr := f.src.Read(f.chunk)
	if n > 0 {
		f.buf = append(f.buf, f.chunk[:n]...)
	}
	if readErr != nil {
		f.err = readErr
	}

	if line, ok = f.take(); ok {
		return line, true, nil
	}
	return Line{}, false, f.err
}

// Buffered returns the number of bytes held while waiting for a terminator.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// take extracts one line from the buffer, if a complete one is present.
func (f *Framer) take() (Line, bool) {
	for {
		i := bytes.IndexByte(f.buf, '\n')

		if f.discarding {
			if i < 0 {
				f.buf = f.buf[:0]
				return Line{}, false
			}
			f.consume(i + 1)
			f.discarding = false
			continue
		}

		switch {
		case i < 0 && len(f.buf) > f.maxLine:
			line := overflowLine(f.buf[:f.maxLine])
			f.buf = f.buf[:0]
			f.discarding = true
			return line, true
		case i < 0:
			return Line{}, false
		case i > f.maxLine:
			line := overflowLine(f.buf[:f.maxLine])
			f.consume(i + 1)
			return line, true
		}

		line := newLine(f.buf[:i])
		f.consume(i + 1)
		return line, true
	}
}

// consume drops the first n bytes of the buffer.
func (f *Framer) consume(n int) {
	f.buf = append(f.buf[:0], f.buf[n:]...)
}

func newLine(raw []byte) Line {
	raw = bytes.Clone(raw)
	trimmed := bytes.TrimSpace(raw)
	valid := utf8.Valid(trimmed)

	text := string(trimmed)
	if !valid {
		text = strings.ToValidUTF8(text, "\uFFFD")
	}
	return Line{Text: text, Raw: raw, Invalid: !valid}
}

func overflowLine(head []byte) Line {
	line := newLine(head)
	line.Overflow = true
	return line
}
