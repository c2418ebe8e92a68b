package audio

import "errors"

var (
	// ErrPlayerNotFound is returned when the configured player binary cannot be found.
	ErrPlayerNotFound = errors.New("audio: player not found")

	// ErrSinkClosed is returned by Play after Close.
	ErrSinkClosed = errors.New("audio: sink closed")

	// ErrSoundNotFound is returned when a sound file does not exist.
	ErrSoundNotFound = errors.New("audio: sound file not found")
)
