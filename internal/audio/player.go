package audio

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/lora-alert/internal/process"
)

// PlayerConfig configures a PlayerSink.
type PlayerConfig struct {
	// Player is the player binary, resolved through PATH. Required.
	Player string

	// Args are passed before the sound file.
	Args []string

	// GracefulTimeout bounds how long Close waits for the player to exit
	// after SIGTERM.
	GracefulTimeout time.Duration

	// Logger is optional.
	Logger process.Logger
}

// PlayerSink plays sounds with an external command.
//
// It never runs two players at once: Play fails while a sound is playing.
type PlayerSink struct {
	runner *process.Runner
	binary string

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewPlayerSink checks that the player exists and returns a sink for it.
func NewPlayerSink(cfg PlayerConfig) (*PlayerSink, error) {
	if cfg.Player == "" {
		return nil, fmt.Errorf("%w: no player configured", ErrPlayerNotFound)
	}
	binary, err := exec.LookPath(cfg.Player)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPlayerNotFound, err)
	}

	runner := process.NewRunner(process.Config{
		Name:            "player",
		Binary:          binary,
		Args:            cfg.Args,
		GracefulTimeout: cfg.GracefulTimeout,
	})
	if cfg.Logger != nil {
		runner.SetLogger(cfg.Logger)
	}

	return &PlayerSink{runner: runner, binary: binary}, nil
}

// Binary returns the resolved player path.
func (s *PlayerSink) Binary() string {
	return s.binary
}

// Play starts the player on path and returns once it is running.
// Cancelling ctx stops the player.
func (s *PlayerSink) Play(ctx context.Context, path string) error {
	if s.closed.Load() {
		return ErrSinkClosed
	}
	return s.runner.Start(ctx, path)
}

// IsBusy reports whether a sound is still playing.
func (s *PlayerSink) IsBusy() bool {
	return s.runner.Running()
}

// Err returns the error the last player run exited with: a non-zero
// exit status, or a signal. It is nil while a sound is playing.
func (s *PlayerSink) Err() error {
	if s.runner.Running() {
		return nil
	}
	return s.runner.LastError()
}

// Close stops any playing sound. Later calls return the first result.
func (s *PlayerSink) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeErr = s.runner.Stop()
	})
	return s.closeErr
}
