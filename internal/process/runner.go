package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Status represents the state of the most recent run.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"
	StatusFailed  Status = "failed"
)

// defaultGracefulTimeout is used when Config.GracefulTimeout is zero.
const defaultGracefulTimeout = 2 * time.Second

// ErrAlreadyRunning is returned by Start while a previous run is active.
var ErrAlreadyRunning = errors.New("process: already running")

// Config holds configuration for a Runner.
type Config struct {
	// Name is a human-readable identifier for logging.
	Name string

	// Binary is the executable, resolved through PATH if not absolute.
	Binary string

	// Args are passed before the per-run arguments given to Start.
	Args []string

	// Env are additional environment variables (key=value format).
	// If nil, inherits from parent process.
	Env []string

	// WorkDir is the working directory for the process.
	// If empty, inherits from parent process.
	WorkDir string

	// GracefulTimeout is how long to wait after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration
}

// Logger defines the logging interface for the runner.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Runner starts a command and tracks it until it exits.
//
// Thread Safety: All methods are safe for concurrent use.
type Runner struct {
	config Config

	mu        sync.RWMutex
	cmd       *exec.Cmd
	status    Status
	lastError error
	startTime time.Time
	done      chan struct{}

	logger   Logger
	loggerMu sync.RWMutex
}

// NewRunner creates a runner with the given configuration.
func NewRunner(cfg Config) *Runner {
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = defaultGracefulTimeout
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Binary
	}

	return &Runner{
		config: cfg,
		status: StatusStopped,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the runner.
func (r *Runner) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.loggerMu.Lock()
	r.logger = logger
	r.loggerMu.Unlock()
}

func (r *Runner) log() Logger {
	r.loggerMu.RLock()
	defer r.loggerMu.RUnlock()
	return r.logger
}

// Start launches the command with Config.Args followed by args and
// returns once it is running. Cancelling ctx stops the process the same
// way Stop does.
func (r *Runner) Start(ctx context.Context, args ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status == StatusRunning {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, r.config.Name)
	}

	argv := append(append([]string(nil), r.config.Args...), args...)
	cmd := exec.CommandContext(ctx, r.config.Binary, argv...) //nolint:gosec // Binary comes from operator config

	// Create a new process group so we can signal all children on shutdown
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return signalGroup(cmd, syscall.SIGTERM)
	}
	cmd.WaitDelay = r.config.GracefulTimeout

	if r.config.Env != nil {
		cmd.Env = append(os.Environ(), r.config.Env...)
	}
	if r.config.WorkDir != "" {
		cmd.Dir = r.config.WorkDir
	}

	cmd.Stdout = &logWriter{runner: r, stream: "stdout"}
	cmd.Stderr = &logWriter{runner: r, stream: "stderr"}

	if err := cmd.Start(); err != nil {
		r.status = StatusFailed
		r.lastError = fmt.Errorf("starting %s: %w", r.config.Name, err)
		return r.lastError
	}

	r.cmd = cmd
	r.status = StatusRunning
	r.lastError = nil
	r.startTime = time.Now()
	r.done = make(chan struct{})

	r.log().Debug("process started",
		"name", r.config.Name,
		"pid", cmd.Process.Pid,
		"args", argv,
	)

	go r.wait(cmd, r.done)
	return nil
}

// wait reaps the process and records how it ended.
func (r *Runner) wait(cmd *exec.Cmd, done chan struct{}) {
	err := cmd.Wait()

	r.mu.Lock()
	elapsed := time.Since(r.startTime)
	if err != nil {
		r.status = StatusFailed
		r.lastError = fmt.Errorf("%s: %w", r.config.Name, err)
	} else {
		r.status = StatusStopped
	}
	r.mu.Unlock()

	if err != nil {
		r.log().Warn("process exited with error",
			"name", r.config.Name,
			"error", err,
			"duration", elapsed,
		)
	} else {
		r.log().Debug("process exited", "name", r.config.Name, "duration", elapsed)
	}

	close(done)
}

// Running reports whether a run is in progress.
func (r *Runner) Running() bool {
	return r.Status() == StatusRunning
}

// Wait blocks until the current run exits or ctx is done. It returns the
// run's exit error, or ctx.Err(). With no run started it returns nil.
func (r *Runner) Wait(ctx context.Context) error {
	r.mu.RLock()
	done := r.done
	r.mu.RUnlock()

	if done == nil {
		return nil
	}

	select {
	case <-done:
		return r.LastError()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop ends the current run.
// It sends SIGTERM to the process group, then SIGKILL after GracefulTimeout.
func (r *Runner) Stop() error {
	r.mu.RLock()
	cmd := r.cmd
	done := r.done
	running := r.status == StatusRunning
	r.mu.RUnlock()

	if !running || cmd == nil || done == nil {
		return nil
	}

	if err := signalGroup(cmd, syscall.SIGTERM); err != nil {
		r.log().Warn("failed to send SIGTERM to process group", "name", r.config.Name, "error", err)
	}

	select {
	case <-done:
		return nil
	case <-time.After(r.config.GracefulTimeout):
		r.log().Warn("graceful stop timeout, sending SIGKILL",
			"name", r.config.Name,
			"timeout", r.config.GracefulTimeout,
		)
	}

	if err := signalGroup(cmd, syscall.SIGKILL); err != nil {
		return fmt.Errorf("killing process group %s: %w", r.config.Name, err)
	}

	<-done
	return nil
}

// signalGroup signals the process group created via Setpgid.
// An already-exited group is not an error.
func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	err := syscall.Kill(-cmd.Process.Pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

// Status returns the status of the most recent run.
func (r *Runner) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// LastError returns the error the most recent run ended with.
func (r *Runner) LastError() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastError
}

// PID returns the process ID of the current run, or 0 if not running.
func (r *Runner) PID() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.status == StatusRunning && r.cmd != nil && r.cmd.Process != nil {
		return r.cmd.Process.Pid
	}
	return 0
}

// logWriter forwards child output to the logger, one record per line.
type logWriter struct {
	runner *Runner
	stream string
}

func (w *logWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if line == "" {
			continue
		}
		w.runner.log().Debug("process output",
			"name", w.runner.config.Name,
			"stream", w.stream,
			"output", line,
		)
	}
	return len(p), nil
}
