package lora

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// defaultHealthInterval is used when no interval is configured.
const defaultHealthInterval = 30 * time.Second

// HealthPublisher is the interface for publishing health messages.
// *mqtt.Client satisfies it.
type HealthPublisher interface {
	// Publish sends a message to a topic with the specified QoS and retention.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// IsConnected returns true if the publisher is connected.
	IsConnected() bool
}

// StatsProvider supplies ingest counters. *Bridge satisfies it.
type StatsProvider interface {
	Stats() Stats
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	// BridgeID identifies this bridge in health messages.
	BridgeID string

	// Version is the bridge software version.
	Version string

	// Interval is how often to report. Default: 30 seconds.
	Interval time.Duration

	// Stats supplies the counters. Required.
	Stats StatsProvider

	// Publisher is optional; without it only OnStats is called.
	Publisher HealthPublisher

	// OnStats receives every snapshot, e.g. for time-series storage. Optional.
	OnStats func(Stats)
}

// HealthReporter publishes bridge health at a fixed interval.
type HealthReporter struct {
	bridgeID  string
	version   string
	interval  time.Duration
	stats     StatsProvider
	publisher HealthPublisher
	onStats   func(Stats)

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewHealthReporter creates a new health reporter. Call Start to begin reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultHealthInterval
	}

	return &HealthReporter{
		bridgeID:  cfg.BridgeID,
		version:   cfg.Version,
		interval:  interval,
		stats:     cfg.Stats,
		publisher: cfg.Publisher,
		onStats:   cfg.OnStats,
		done:      make(chan struct{}),
	}
}

// Start begins periodic reporting until ctx is cancelled or Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // Best-effort during shutdown
		h.publish(HealthStopping, "bridge stopped")
	})
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publish(HealthStarting, "bridge starting")
}

// PublishNow reports the current status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publish(status, reason)
}

// LWTPayload returns the offline message for the broker to publish on
// the health topic if the bridge vanishes.
func (h *HealthReporter) LWTPayload() ([]byte, error) {
	return json.Marshal(NewLWTMessage(h.bridgeID))
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logError("failed to publish initial health", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.stats != nil {
		switch h.stats.Stats().State {
		case StateDraining, StateTerminated:
			return HealthStopping, "ingest loop stopped"
		case StateIdle:
			return HealthStarting, ""
		}
	}

	if h.publisher != nil && !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}

	return HealthHealthy, ""
}

// publish sends one health message (QoS 1, retained) and hands the
// snapshot to OnStats.
func (h *HealthReporter) publish(status HealthStatus, reason string) error {
	var stats Stats
	if h.stats != nil {
		stats = h.stats.Stats()
	}

	if h.onStats != nil {
		h.onStats(stats)
	}

	if h.publisher == nil || !h.publisher.IsConnected() {
		return nil
	}

	msg := NewHealthMessage(h.bridgeID, h.version, status, stats)
	msg.Reason = reason

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.publisher.Publish(HealthTopic(), payload, 1, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
