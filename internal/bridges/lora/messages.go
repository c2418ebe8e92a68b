package lora

import (
	"time"

	"github.com/nerrad567/lora-alert/internal/catalog"
	"github.com/nerrad567/lora-alert/internal/infrastructure/mqtt"
)

// MQTT payloads published by the bridge. All timestamps are UTC.

// AlertMessage reports the outcome of one dispatched event.
// Topic: loralert/alert/{device_id}
// QoS: configured, Retained: No
type AlertMessage struct {
	// ID correlates the queued and final reports of one event.
	ID string `json:"id"`

	// Timestamp is when the event was decoded.
	Timestamp time.Time `json:"timestamp"`

	DeviceID    catalog.DeviceID    `json:"device_id"`
	MessageType catalog.MessageType `json:"message_type"`
	Location    catalog.Location    `json:"location,omitempty"`
	Resource    string              `json:"resource,omitempty"`

	// Outcome is one of played, no_device_mapping, no_alert_mapping,
	// resource_missing, playback_error, queued or dropped.
	Outcome Outcome `json:"outcome"`

	// Error explains failed outcomes.
	Error string `json:"error,omitempty"`
}

// NewAlertMessage converts a dispatch report for publishing.
func NewAlertMessage(r DispatchReport) AlertMessage {
	msg := AlertMessage{
		ID:          r.ID,
		Timestamp:   r.Time,
		DeviceID:    r.Event.DeviceID,
		MessageType: r.Event.Type,
		Location:    r.Location,
		Resource:    r.Resource,
		Outcome:     r.Outcome,
	}
	if r.Err != nil {
		msg.Error = r.Err.Error()
	}
	return msg
}

// StatusMessage carries one gateway status line.
// Topic: loralert/status
type StatusMessage struct {
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
}

// NewStatusMessage stamps a status line with the current time.
func NewStatusMessage(text string) StatusMessage {
	return StatusMessage{Timestamp: time.Now().UTC(), Text: text}
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy indicates the bridge is ingesting normally.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the bridge runs but output is impaired.
	HealthDegraded HealthStatus = "degraded"

	// HealthOffline indicates the bridge vanished (from LWT).
	HealthOffline HealthStatus = "offline"

	// HealthStarting indicates the bridge is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the bridge is draining or has terminated.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports bridge status and counters.
// Topic: loralert/health
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Bridge        string            `json:"bridge"`
	Timestamp     time.Time         `json:"timestamp"`
	Status        HealthStatus      `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	State         State             `json:"state"`
	Statistics    *BridgeStatistics `json:"statistics,omitempty"`
	Reason        string            `json:"reason,omitempty"`
}

// BridgeStatistics contains ingest counters.
type BridgeStatistics struct {
	LinesRead   uint64             `json:"lines_read"`
	Events      uint64             `json:"events"`
	StatusLines uint64             `json:"status_lines"`
	Suppressed  uint64             `json:"suppressed"`
	Malformed   uint64             `json:"malformed"`
	Outcomes    map[Outcome]uint64 `json:"outcomes"`
	QueueDepth  int                `json:"queue_depth"`
}

// NewHealthMessage builds a health message from a stats snapshot.
func NewHealthMessage(bridgeID, version string, status HealthStatus, stats Stats) HealthMessage {
	return HealthMessage{
		Bridge:        bridgeID,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       version,
		UptimeSeconds: int64(stats.Uptime.Seconds()),
		State:         stats.State,
		Statistics: &BridgeStatistics{
			LinesRead:   stats.LinesRead,
			Events:      stats.Events,
			StatusLines: stats.StatusLines,
			Suppressed:  stats.Suppressed,
			Malformed:   stats.Malformed,
			Outcomes:    stats.Outcomes,
			QueueDepth:  stats.QueueDepth,
		},
	}
}

// NewLWTMessage creates the health payload a broker publishes when the
// bridge disappears.
func NewLWTMessage(bridgeID string) HealthMessage {
	return HealthMessage{
		Bridge:    bridgeID,
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "unexpected_disconnect",
	}
}

// Fields flattens the counters for time-series storage.
func (s Stats) Fields() map[string]any {
	fields := map[string]any{
		"lines_read":     s.LinesRead,
		"events":         s.Events,
		"status_lines":   s.StatusLines,
		"suppressed":     s.Suppressed,
		"malformed":      s.Malformed,
		"queue_depth":    s.QueueDepth,
		"uptime_seconds": int64(s.Uptime.Seconds()),
	}
	for outcome, n := range s.Outcomes {
		fields["outcome_"+string(outcome)] = n
	}
	return fields
}

// AlertTopic returns the topic for reports about deviceID.
func AlertTopic(id catalog.DeviceID) string {
	return mqtt.Topics{}.Alert(id.String())
}

// StatusTopic returns the topic for gateway status lines.
func StatusTopic() string {
	return mqtt.Topics{}.Status()
}

// HealthTopic returns the retained health topic.
func HealthTopic() string {
	return mqtt.Topics{}.Health()
}
