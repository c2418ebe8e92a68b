package lora

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Logger interface for optional logging.
// *logging.Logger and *slog.Logger satisfy it.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// State is the ingest loop state.
type State int32

const (
	StateIdle State = iota
	StatePolling
	StateDispatching
	StateDraining
	StateTerminated
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateDispatching:
		return "dispatching"
	case StateDraining:
		return "draining"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// Source is the serial byte stream. Required.
	Source ByteSource

	// Dispatcher handles decoded events. Required.
	Dispatcher *Dispatcher

	// PollInterval is the wait between reads when no complete line is
	// available. Zero disables the wait (tests only).
	PollInterval time.Duration

	// MaxLineLength bounds buffered partial lines. Default: 256.
	MaxLineLength int

	// OnStatus is called with every status line. Optional.
	OnStatus func(text string)

	// Logger is optional structured logger.
	Logger Logger
}

// Stats is a snapshot of ingest counters.
type Stats struct {
	State       State              `json:"state"`
	LinesRead   uint64             `json:"lines_read"`
	Events      uint64             `json:"events"`
	StatusLines uint64             `json:"status_lines"`
	Suppressed  uint64             `json:"suppressed"`
	Malformed   uint64             `json:"malformed"`
	Outcomes    map[Outcome]uint64 `json:"outcomes"`
	QueueDepth  int                `json:"queue_depth"`
	Uptime      time.Duration      `json:"uptime_ns"`
}

// Bridge is the ingest loop: it reads lines from the source, decodes them
// and hands events to the dispatcher until cancelled or the link fails.
//
// Thread Safety: Run must be called once; State and Stats may be called
// from any goroutine.
type Bridge struct {
	src          ByteSource
	framer       *Framer
	dispatcher   *Dispatcher
	pollInterval time.Duration
	onStatus     func(string)

	state     atomic.Int32
	started   atomic.Bool
	startTime time.Time

	linesRead   atomic.Uint64
	events      atomic.Uint64
	statusLines atomic.Uint64
	suppressed  atomic.Uint64
	malformed   atomic.Uint64

	drainOnce sync.Once
	done      chan struct{}

	logger   Logger
	loggerMu sync.RWMutex
}

// NewBridge creates a new bridge instance.
// Call Run to begin ingesting.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("byte source is required")
	}
	if opts.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if opts.PollInterval < 0 {
		return nil, fmt.Errorf("poll interval must not be negative")
	}

	b := &Bridge{
		src:          opts.Source,
		framer:       NewFramer(opts.Source, opts.MaxLineLength),
		dispatcher:   opts.Dispatcher,
		pollInterval: opts.PollInterval,
		onStatus:     opts.OnStatus,
		startTime:    time.Now(),
		done:         make(chan struct{}),
		logger:       opts.Logger,
	}
	b.setState(StateIdle)
	return b, nil
}

// Run ingests until ctx is cancelled or the source fails, then releases the
// dispatcher's sink and the source exactly once.
//
// Returns:
//   - nil: ctx was cancelled (operator interrupt)
//   - error wrapping ErrLinkLost: the source reported an error
//   - ErrAlreadyRunning: Run was called before
func (b *Bridge) Run(ctx context.Context) error {
	if !b.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	b.dispatcher.Start(ctx)
	b.setState(StatePolling)
	b.logInfo("waiting for LoRa messages", "poll_interval", b.pollInterval, "dispatch_mode", b.dispatcher.Mode())

	err := b.loop(ctx)
	b.drain(err)
	return err
}

// loop is the Polling/Dispatching cycle.
func (b *Bridge) loop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		line, ok, err := b.framer.Next()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: %w", ErrLinkLost, err)
		}
		if !ok {
			if !b.wait(ctx) {
				return nil
			}
			continue
		}

		b.handleLine(ctx, line)
	}
}

// wait sleeps one poll interval. It returns false if ctx was cancelled.
func (b *Bridge) wait(ctx context.Context) bool {
	if b.pollInterval <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(b.pollInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// handleLine decodes one line and routes it. Per-line problems never end the loop.
func (b *Bridge) handleLine(ctx context.Context, line Line) {
	b.linesRead.Add(1)
	b.logDebug("received", "line", line.Text)

	decoded := Decode(line)
	linesTotal.WithLabelValues(decoded.Kind.String()).Inc()

	switch decoded.Kind {
	case KindEvent:
		b.events.Add(1)
		b.setState(StateDispatching)
		b.dispatcher.Dispatch(ctx, decoded.Event)
		b.setState(StatePolling)

	case KindStatus:
		b.statusLines.Add(1)
		b.logInfo("status line", "text", decoded.Text)
		if b.onStatus != nil {
			b.onStatus(decoded.Text)
		}

	case KindSuppressed:
		b.suppressed.Add(1)
		b.logDebug("line suppressed", "reason", decoded.Reason)

	case KindMalformed:
		b.malformed.Add(1)
		b.logWarn("malformed message", "raw", decoded.Text, "reason", decoded.Reason, "error", decoded.Err())
	}
}

// drain moves through Draining to Terminated, releasing resources once.
func (b *Bridge) drain(cause error) {
	b.drainOnce.Do(func() {
		b.setState(StateDraining)

		switch {
		case cause == nil:
			b.logInfo("monitoring stopped")
		case errors.Is(cause, ErrLinkLost):
			b.logError("serial link lost", "error", cause, "buffered_bytes", b.framer.Buffered())
		}

		if err := b.dispatcher.Close(); err != nil {
			b.logError("releasing alert sink", "error", err)
		}
		if err := b.src.Close(); err != nil {
			b.logError("closing serial source", "error", err)
		}
		b.logInfo("serial connection closed")

		b.setState(StateTerminated)
		close(b.done)
	})
}

// Done is closed once the bridge has reached StateTerminated.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// State returns the current ingest state.
func (b *Bridge) State() State {
	return State(b.state.Load())
}

func (b *Bridge) setState(s State) {
	b.state.Store(int32(s))
	ingestState.Set(float64(s))
}

// Stats returns a snapshot of the ingest counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		State:       b.State(),
		LinesRead:   b.linesRead.Load(),
		Events:      b.events.Load(),
		StatusLines: b.statusLines.Load(),
		Suppressed:  b.suppressed.Load(),
		Malformed:   b.malformed.Load(),
		Outcomes:    b.dispatcher.Counts(),
		QueueDepth:  b.dispatcher.QueueDepth(),
		Uptime:      time.Since(b.startTime),
	}
}

// SetLogger sets the logger for the bridge and its dispatcher.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()

	b.dispatcher.SetLogger(logger)
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, keysAndValues...)
	}
}
