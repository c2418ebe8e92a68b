package lora

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

type statusLog struct {
	mu    sync.Mutex
	lines []string
}

func (l *statusLog) add(text string) {
	l.mu.Lock()
	l.lines = append(l.lines, text)
	l.mu.Unlock()
}

func (l *statusLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

func newTestBridge(t *testing.T, src ByteSource, sink *fakeSink, poll time.Duration) (*Bridge, *reportLog, *statusLog) {
	t.Helper()
	reports := &reportLog{}
	status := &statusLog{}

	d := newTestDispatcher(t, sink, ModeSync, 0, reports)
	b, err := NewBridge(BridgeOptions{
		Source:       src,
		Dispatcher:   d,
		PollInterval: poll,
		OnStatus:     status.add,
	})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	return b, reports, status
}

func TestNewBridge_Validation(t *testing.T) {
	d := newTestDispatcher(t, &fakeSink{}, ModeSync, 0, nil)
	src := newScriptedSource(nil)

	tests := []struct {
		name string
		opts BridgeOptions
	}{
		{"missing source", BridgeOptions{Dispatcher: d}},
		{"missing dispatcher", BridgeOptions{Source: src}},
		{"negative poll", BridgeOptions{Source: src, Dispatcher: d, PollInterval: -time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewBridge(tt.opts); err == nil {
				t.Error("NewBridge() error = nil, want error")
			}
		})
	}
}

func TestBridge_Scenarios(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		wantPlayed   []string
		wantOutcome  Outcome
		wantStatus   []string
		wantMalform  uint64
		wantReported int
	}{
		{
			name:         "known device plays its alert",
			input:        "1:HELP\n",
			wantPlayed:   []string{"help1.snd"},
			wantOutcome:  OutcomePlayed,
			wantReported: 1,
		},
		{
			name:         "unmapped device",
			input:        "9:HELP\n",
			wantOutcome:  OutcomeNoDeviceMapping,
			wantReported: 1,
		},
		{
			name:       "status line",
			input:      "garbled\n",
			wantStatus: []string{"garbled"},
		},
		{
			name:         "malformed line does not stop the loop",
			input:        "1:2:HELP\n1:HELP\n",
			wantPlayed:   []string{"help1.snd"},
			wantOutcome:  OutcomePlayed,
			wantMalform:  1,
			wantReported: 1,
		},
		{
			name:  "parity error is suppressed",
			input: "Parity Error\n",
		},
		{
			name:       "blank line is a status line",
			input:      "\n",
			wantStatus: []string{""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newScriptedSource(io.EOF, tt.input)
			sink := &fakeSink{}
			b, reports, status := newTestBridge(t, src, sink, 0)

			err := b.Run(context.Background())
			if !errors.Is(err, ErrLinkLost) {
				t.Fatalf("Run() error = %v, want ErrLinkLost", err)
			}

			played, _, _ := sink.snapshot()
			if len(played) != len(tt.wantPlayed) {
				t.Errorf("played = %v, want %v", played, tt.wantPlayed)
			}

			all := reports.all()
			if len(all) != tt.wantReported {
				t.Fatalf("got %d reports, want %d", len(all), tt.wantReported)
			}
			if tt.wantReported > 0 && all[0].Outcome != tt.wantOutcome {
				t.Errorf("outcome = %q, want %q", all[0].Outcome, tt.wantOutcome)
			}

			gotStatus := status.all()
			if len(gotStatus) != len(tt.wantStatus) {
				t.Errorf("status lines = %v, want %v", gotStatus, tt.wantStatus)
			}

			if got := b.Stats().Malformed; got != tt.wantMalform {
				t.Errorf("Stats().Malformed = %d, want %d", got, tt.wantMalform)
			}
		})
	}
}

// warnRecorder is a Logger that keeps Warn calls.
type warnRecorder struct {
	mu    sync.Mutex
	warns []map[string]any
}

func (r *warnRecorder) Debug(string, ...any) {}
func (r *warnRecorder) Info(string, ...any)  {}
func (r *warnRecorder) Error(string, ...any) {}

func (r *warnRecorder) Warn(msg string, keysAndValues ...any) {
	entry := map[string]any{"msg": msg}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if k, ok := keysAndValues[i].(string); ok {
			entry[k] = keysAndValues[i+1]
		}
	}
	r.mu.Lock()
	r.warns = append(r.warns, entry)
	r.mu.Unlock()
}

func TestBridge_MalformedLineLogged(t *testing.T) {
	src := newScriptedSource(io.EOF, "abc:HELP\n")
	b, _, _ := newTestBridge(t, src, &fakeSink{}, 0)
	rec := &warnRecorder{}
	b.SetLogger(rec)

	_ = b.Run(context.Background())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, w := range rec.warns {
		if w["msg"] != "malformed message" {
			continue
		}
		if w["raw"] != "abc:HELP" || w["reason"] == "" {
			t.Errorf("log fields = %v", w)
		}
		err, _ := w["error"].(error)
		if !errors.Is(err, ErrMalformedMessage) {
			t.Errorf("error field = %v, want ErrMalformedMessage", w["error"])
		}
		return
	}
	t.Fatalf("no malformed message warning in %v", rec.warns)
}

func TestBridge_LinkLostReleasesOnce(t *testing.T) {
	src := newScriptedSource(io.ErrClosedPipe, "1:HELP\n")
	sink := &fakeSink{}
	b, _, _ := newTestBridge(t, src, sink, 0)

	if b.State() != StateIdle {
		t.Errorf("initial State() = %v, want idle", b.State())
	}

	err := b.Run(context.Background())
	if !errors.Is(err, ErrLinkLost) || !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("Run() error = %v, want ErrLinkLost wrapping the source error", err)
	}

	select {
	case <-b.Done():
	default:
		t.Fatal("Done() not closed after Run returned")
	}
	if b.State() != StateTerminated {
		t.Errorf("State() = %v, want terminated", b.State())
	}
	if src.closeCount() != 1 {
		t.Errorf("source closed %d times, want 1", src.closeCount())
	}
	if _, _, closes := sink.snapshot(); closes != 1 {
		t.Errorf("sink closed %d times, want 1", closes)
	}

	if err := b.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run() error = %v, want ErrAlreadyRunning", err)
	}
	if src.closeCount() != 1 {
		t.Errorf("source closed again by second Run")
	}
}

func TestBridge_CancelStopsCleanly(t *testing.T) {
	src := newScriptedSource(nil, "ready\n", "1:HELP\n")
	sink := &fakeSink{}
	b, _, _ := newTestBridge(t, src, sink, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- b.Run(ctx)
	}()

	waitFor(t, 2*time.Second, func() bool {
		return b.Stats().Events == 1 && b.State() == StatePolling
	})
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run() error = %v, want nil on cancellation", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	if b.State() != StateTerminated {
		t.Errorf("State() = %v, want terminated", b.State())
	}
	if src.closeCount() != 1 {
		t.Errorf("source closed %d times, want 1", src.closeCount())
	}
	if _, _, closes := sink.snapshot(); closes != 1 {
		t.Errorf("sink closed %d times, want 1", closes)
	}
}

func TestBridge_CancelDuringPlayback(t *testing.T) {
	const poll = 50 * time.Millisecond

	for _, mode := range []Mode{ModeSync, ModeQueue} {
		t.Run(string(mode), func(t *testing.T) {
			src := newScriptedSource(nil, "1:HELP\n")
			sink := &fakeSink{busyFor: 10 * time.Second}

			d, err := NewDispatcher(DispatcherOptions{
				Lookup:       testCatalog(t),
				Sink:         sink,
				Mode:         mode,
				QueueSize:    4,
				PollInterval: poll,
				Resolve:      testResolver,
			})
			if err != nil {
				t.Fatalf("NewDispatcher() error = %v", err)
			}
			b, err := NewBridge(BridgeOptions{Source: src, Dispatcher: d, PollInterval: poll})
			if err != nil {
				t.Fatalf("NewBridge() error = %v", err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			errCh := make(chan error, 1)
			go func() {
				errCh <- b.Run(ctx)
			}()

			waitFor(t, 2*time.Second, func() bool {
				played, _, _ := sink.snapshot()
				return len(played) == 1
			})
			if !sink.IsBusy() {
				t.Fatal("sink not busy after playback started")
			}

			start := time.Now()
			cancel()

			select {
			case err := <-errCh:
				if err != nil {
					t.Errorf("Run() error = %v, want nil on cancellation", err)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("Run did not return after cancellation")
			}

			if elapsed := time.Since(start); elapsed > 4*poll {
				t.Errorf("Run returned %v after cancel, want within a few poll intervals (%v)", elapsed, poll)
			}
			if _, _, closes := sink.snapshot(); closes != 1 {
				t.Errorf("sink closed %d times, want 1", closes)
			}
			if src.closeCount() != 1 {
				t.Errorf("source closed %d times, want 1", src.closeCount())
			}
			if b.State() != StateTerminated {
				t.Errorf("State() = %v, want terminated", b.State())
			}
		})
	}
}

func TestBridge_Stats(t *testing.T) {
	input := "ready\n1:HELP\n9:HELP\n1:2:X\nparity error\n\n"
	src := newScriptedSource(io.EOF, input)
	b, _, _ := newTestBridge(t, src, &fakeSink{}, 0)

	_ = b.Run(context.Background())

	stats := b.Stats()
	if stats.LinesRead != 6 {
		t.Errorf("LinesRead = %d, want 6", stats.LinesRead)
	}
	if stats.Events != 2 {
		t.Errorf("Events = %d, want 2", stats.Events)
	}
	if stats.StatusLines != 2 {
		t.Errorf("StatusLines = %d, want 2", stats.StatusLines)
	}
	if stats.Suppressed != 1 {
		t.Errorf("Suppressed = %d, want 1", stats.Suppressed)
	}
	if stats.Malformed != 1 {
		t.Errorf("Malformed = %d, want 1", stats.Malformed)
	}
	if stats.Outcomes[OutcomePlayed] != 1 || stats.Outcomes[OutcomeNoDeviceMapping] != 1 {
		t.Errorf("Outcomes = %v", stats.Outcomes)
	}

	fields := stats.Fields()
	if fields["events"] != uint64(2) {
		t.Errorf("Fields()[events] = %v, want 2", fields["events"])
	}
	if fields["outcome_played"] != uint64(1) {
		t.Errorf("Fields()[outcome_played] = %v, want 1", fields["outcome_played"])
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateIdle:        "idle",
		StatePolling:     "polling",
		StateDispatching: "dispatching",
		StateDraining:    "draining",
		StateTerminated:  "terminated",
		State(9):         "state(9)",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int32(s), got, want)
		}
		text, _ := s.MarshalText()
		if string(text) != want {
			t.Errorf("MarshalText() = %q, want %q", text, want)
		}
	}
}
