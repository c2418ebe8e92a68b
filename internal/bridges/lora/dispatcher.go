package lora

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/lora-alert/internal/catalog"
)

// Dispatch constants.
const (
	// DefaultPollInterval is the gateway firmware's polling cadence.
	DefaultPollInterval = 100 * time.Millisecond

	// minIdleCheck bounds how often the sink is polled when the configured
	// interval is zero.
	minIdleCheck = time.Millisecond
)

// Mode selects how playback is scheduled.
type Mode string

const (
	// ModeSync plays each alert on the caller's goroutine and returns once the sink is idle.
	ModeSync Mode = "sync"

	// ModeQueue hands alerts to a single worker through a bounded FIFO queue.
	ModeQueue Mode = "queue"
)

// Outcome is the result of dispatching one event.
type Outcome string

const (
	// OutcomePlayed means the sink accepted the alert and has finished with it.
	OutcomePlayed Outcome = "played"

	// OutcomeNoDeviceMapping means the device ID is not in the registry.
	OutcomeNoDeviceMapping Outcome = "no_device_mapping"

	// OutcomeNoAlertMapping means the location has no alert for the message type.
	OutcomeNoAlertMapping Outcome = "no_alert_mapping"

	// OutcomeResourceMissing means an alert is configured but its file is not reachable.
	OutcomeResourceMissing Outcome = "resource_missing"

	// OutcomePlaybackError means the sink refused to start playback.
	OutcomePlaybackError Outcome = "playback_error"

	// OutcomeQueued means the alert was accepted by the queue; a second
	// report follows once it has been played or has failed.
	OutcomeQueued Outcome = "queued"

	// OutcomeDropped means the queue stayed full for a whole poll interval,
	// or the dispatcher was closing.
	OutcomeDropped Outcome = "dropped"
)

// AlertSink is the single audio output.
type AlertSink interface {
	// Play begins playback of resource and returns once it has started.
	Play(ctx context.Context, resource string) error

	// IsBusy reports whether playback is still in progress.
	IsBusy() bool

	// Err returns the error the last finished playback ended with, or nil.
	Err() error

	// Close stops any playback and releases the output.
	Close() error
}

// Lookup resolves events through the device and alert tables.
// *catalog.Catalog satisfies it.
type Lookup interface {
	Location(id catalog.DeviceID) (catalog.Location, bool)
	Resource(loc catalog.Location, msgType catalog.MessageType) (string, bool)
}

// ResourceResolver maps a configured resource to a playable path.
// It returns an error when the resource is not reachable.
type ResourceResolver func(resource string) (string, error)

// DispatchReport describes what happened to one event.
type DispatchReport struct {
	ID       string           `json:"id"`
	Event    Event            `json:"event"`
	Location catalog.Location `json:"location,omitempty"`
	Resource string           `json:"resource,omitempty"`
	Outcome  Outcome          `json:"outcome"`
	Err      error            `json:"-"`
	Time     time.Time        `json:"time"`
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	// Lookup resolves device IDs and alert rules. Required.
	Lookup Lookup

	// Sink is the audio output. Required.
	Sink AlertSink

	// Mode is ModeSync (default) or ModeQueue.
	Mode Mode

	// QueueSize is the queue capacity in ModeQueue. Default: 8.
	QueueSize int

	// PollInterval is how often the sink is polled while playing, and the
	// longest Dispatch waits for queue space.
	PollInterval time.Duration

	// Resolve checks and resolves resources. Default: os.Stat on the resource.
	Resolve ResourceResolver

	// OnReport is called for every report, from the goroutine that produced it.
	OnReport func(DispatchReport)

	// Logger is optional.
	Logger Logger
}

type playJob struct {
	report DispatchReport
	path   string

	// accepted is closed once the queued report has been delivered, so
	// the final report never overtakes it.
	accepted chan struct{}
}

// Dispatcher resolves events and drives the AlertSink.
//
// At most one playback is active at a time. In ModeQueue alerts are
// played in the order Dispatch accepted them.
//
// Thread Safety: All methods are safe for concurrent use.
type Dispatcher struct {
	lookup   Lookup
	sink     AlertSink
	mode     Mode
	interval time.Duration
	resolve  ResourceResolver
	onReport func(DispatchReport)

	// playMu is held for the whole of a playback.
	playMu sync.Mutex

	queue chan playJob

	counts   map[Outcome]uint64
	countsMu sync.Mutex

	ctx       context.Context
	cancel    context.CancelFunc
	startOnce sync.Once
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error

	logger   Logger
	loggerMu sync.RWMutex
}

// NewDispatcher creates a dispatcher. In ModeQueue, call Start before Dispatch.
func NewDispatcher(opts DispatcherOptions) (*Dispatcher, error) {
	if opts.Lookup == nil {
		return nil, fmt.Errorf("lookup is required")
	}
	if opts.Sink == nil {
		return nil, fmt.Errorf("alert sink is required")
	}

	mode := opts.Mode
	if mode == "" {
		mode = ModeSync
	}
	if mode != ModeSync && mode != ModeQueue {
		return nil, fmt.Errorf("unknown dispatch mode %q", mode)
	}

	resolve := opts.Resolve
	if resolve == nil {
		resolve = statResolver
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Dispatcher{
		lookup:   opts.Lookup,
		sink:     opts.Sink,
		mode:     mode,
		interval: opts.PollInterval,
		resolve:  resolve,
		onReport: opts.OnReport,
		counts:   make(map[Outcome]uint64),
		ctx:      ctx,
		cancel:   cancel,
		logger:   opts.Logger,
	}

	if mode == ModeQueue {
		size := opts.QueueSize
		if size <= 0 {
			size = 8
		}
		d.queue = make(chan playJob, size)
	}

	return d, nil
}

// Start launches the playback worker in ModeQueue. It is a no-op in ModeSync
// and on repeated calls. The worker stops when ctx is cancelled or Close is called.
func (d *Dispatcher) Start(ctx context.Context) {
	if d.mode != ModeQueue {
		return
	}
	d.startOnce.Do(func() {
		d.wg.Add(1)
		go d.worker(ctx)
	})
}

// Mode returns the scheduling mode.
func (d *Dispatcher) Mode() Mode {
	return d.mode
}

// Dispatch resolves ev and plays (ModeSync) or enqueues (ModeQueue) its alert.
//
// In ModeSync the call returns once the sink is idle again or ctx is done.
// In ModeQueue it blocks for at most one poll interval.
// Every outcome is also delivered to OnReport.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) Outcome {
	job, outcome := d.prepare(ev)
	if outcome != "" {
		return outcome
	}

	if d.ctx.Err() != nil {
		return d.drop(job, ErrDispatcherClosed)
	}

	if d.mode == ModeSync {
		return d.play(ctx, job)
	}
	return d.enqueue(ctx, job)
}

// prepare resolves the event. A non-empty outcome means it was already reported.
func (d *Dispatcher) prepare(ev Event) (playJob, Outcome) {
	report := DispatchReport{
		ID:    uuid.NewString(),
		Event: ev,
		Time:  time.Now().UTC(),
	}

	loc, ok := d.lookup.Location(ev.DeviceID)
	if !ok {
		report.Outcome = OutcomeNoDeviceMapping
		d.report(report)
		return playJob{}, report.Outcome
	}
	report.Location = loc

	resource, ok := d.lookup.Resource(loc, ev.Type)
	if !ok {
		report.Outcome = OutcomeNoAlertMapping
		d.report(report)
		return playJob{}, report.Outcome
	}
	report.Resource = resource

	path, err := d.resolve(resource)
	if err != nil {
		report.Outcome = OutcomeResourceMissing
		report.Err = err
		d.report(report)
		return playJob{}, report.Outcome
	}

	return playJob{report: report, path: path}, ""
}

// enqueue offers job to the worker, waiting at most one poll interval.
func (d *Dispatcher) enqueue(ctx context.Context, job playJob) Outcome {
	job.accepted = make(chan struct{})

	select {
	case d.queue <- job:
		return d.queued(job)
	default:
	}

	timer := time.NewTimer(d.interval)
	defer timer.Stop()

	select {
	case d.queue <- job:
		return d.queued(job)
	case <-timer.C:
		return d.drop(job, fmt.Errorf("queue full for %s", d.interval))
	case <-ctx.Done():
		return d.drop(job, ctx.Err())
	case <-d.ctx.Done():
		return d.drop(job, ErrDispatcherClosed)
	}
}

func (d *Dispatcher) queued(job playJob) Outcome {
	defer close(job.accepted)

	queueDepth.Set(float64(len(d.queue)))
	r := job.report
	r.Outcome = OutcomeQueued
	d.report(r)
	return OutcomeQueued
}

func (d *Dispatcher) drop(job playJob, cause error) Outcome {
	r := job.report
	r.Outcome = OutcomeDropped
	r.Err = cause
	d.report(r)
	return OutcomeDropped
}

// worker plays queued alerts one at a time, in queue order.
func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.ctx.Done():
			return
		case job := <-d.queue:
			queueDepth.Set(float64(len(d.queue)))
			<-job.accepted
			if d.ctx.Err() != nil {
				d.drop(job, ErrDispatcherClosed)
				return
			}
			d.play(d.ctx, job)
		}
	}
}

// play starts the sink and waits for it to go idle.
func (d *Dispatcher) play(ctx context.Context, job playJob) Outcome {
	d.playMu.Lock()
	defer d.playMu.Unlock()

	r := job.report
	if err := d.sink.Play(ctx, job.path); err != nil {
		r.Outcome = OutcomePlaybackError
		r.Err = err
		d.report(r)
		return r.Outcome
	}

	started := time.Now()
	d.waitIdle(ctx)
	playbackDuration.Observe(time.Since(started).Seconds())

	if !d.sink.IsBusy() {
		if err := d.sink.Err(); err != nil {
			r.Outcome = OutcomePlaybackError
			r.Err = err
			d.report(r)
			return r.Outcome
		}
	}

	r.Outcome = OutcomePlayed
	d.report(r)
	return r.Outcome
}

// waitIdle polls the sink until it is idle or ctx is done.
func (d *Dispatcher) waitIdle(ctx context.Context) {
	interval := d.interval
	if interval < minIdleCheck {
		interval = minIdleCheck
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for d.sink.IsBusy() {
		select {
		case <-ctx.Done():
			return
		case <-d.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// report records and publishes a dispatch report.
func (d *Dispatcher) report(r DispatchReport) {
	d.countsMu.Lock()
	d.counts[r.Outcome]++
	d.countsMu.Unlock()

	dispatchTotal.WithLabelValues(string(r.Outcome)).Inc()

	attrs := []any{
		"report_id", r.ID,
		"device_id", r.Event.DeviceID,
		"message_type", r.Event.Type,
		"outcome", r.Outcome,
	}
	if r.Location != "" {
		attrs = append(attrs, "location", r.Location)
	}
	if r.Resource != "" {
		attrs = append(attrs, "resource", r.Resource)
	}

	switch r.Outcome {
	case OutcomePlayed, OutcomeQueued:
		d.logInfo("alert "+string(r.Outcome), attrs...)
	case OutcomePlaybackError:
		d.logError("alert playback failed", append(attrs, "error", r.Err)...)
	default:
		if r.Err != nil {
			attrs = append(attrs, "error", r.Err)
		}
		d.logWarn("alert not played", attrs...)
	}

	if d.onReport != nil {
		d.onReport(r)
	}
}

// Counts returns a snapshot of outcome counters.
func (d *Dispatcher) Counts() map[Outcome]uint64 {
	d.countsMu.Lock()
	defer d.countsMu.Unlock()

	out := make(map[Outcome]uint64, len(d.counts))
	for k, v := range d.counts {
		out[k] = v
	}
	return out
}

// QueueDepth returns the number of alerts waiting in ModeQueue.
func (d *Dispatcher) QueueDepth() int {
	if d.queue == nil {
		return 0
	}
	return len(d.queue)
}

// Close stops the worker, discards alerts still queued and releases the sink.
// The sink is closed exactly once; later calls return the first result.
func (d *Dispatcher) Close() error {
	d.closeOnce.Do(func() {
		d.cancel()
		d.wg.Wait()

		d.discardQueued()

		if err := d.sink.Close(); err != nil {
			d.closeErr = fmt.Errorf("closing alert sink: %w", err)
		}
	})
	return d.closeErr
}

func (d *Dispatcher) discardQueued() {
	if d.queue == nil {
		return
	}
	for {
		select {
		case job := <-d.queue:
			<-job.accepted
			d.drop(job, ErrDispatcherClosed)
		default:
			queueDepth.Set(0)
			return
		}
	}
}

// statResolver accepts a resource if it exists as a regular file.
func statResolver(resource string) (string, error) {
	info, err := os.Stat(resource)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrResourceMissing, resource)
		}
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrResourceMissing, resource)
	}
	return resource, nil
}

// SetLogger sets the logger for this dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.loggerMu.Lock()
	d.logger = logger
	d.loggerMu.Unlock()
}

func (d *Dispatcher) getLogger() Logger {
	d.loggerMu.RLock()
	defer d.loggerMu.RUnlock()
	return d.logger
}

func (d *Dispatcher) logInfo(msg string, keysAndValues ...any) {
	if logger := d.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (d *Dispatcher) logWarn(msg string, keysAndValues ...any) {
	if logger := d.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (d *Dispatcher) logError(msg string, keysAndValues ...any) {
	if logger := d.getLogger(); logger != nil {
		logger.Error(msg, keysAndValues...)
	}
}
