package lora

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestNewAlertMessage(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := DispatchReport{
		ID:       "3f1c",
		Event:    Event{DeviceID: 1, Type: "HELP"},
		Location: "Bar1",
		Resource: "help1.snd",
		Outcome:  OutcomePlaybackError,
		Err:      errors.New("aplay: exit status 1"),
		Time:     now,
	}

	msg := NewAlertMessage(r)
	if msg.Error != "aplay: exit status 1" {
		t.Errorf("Error = %q", msg.Error)
	}

	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}

	want := map[string]any{
		"id":           "3f1c",
		"device_id":    float64(1),
		"message_type": "HELP",
		"location":     "Bar1",
		"resource":     "help1.snd",
		"outcome":      "playback_error",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
}

func TestNewAlertMessage_OmitsEmpty(t *testing.T) {
	msg := NewAlertMessage(DispatchReport{
		ID:      "a",
		Event:   Event{DeviceID: 9, Type: "HELP"},
		Outcome: OutcomeNoDeviceMapping,
	})

	b, _ := json.Marshal(msg)
	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"location", "resource", "error"} {
		if _, ok := got[k]; ok {
			t.Errorf("%s present in %s", k, b)
		}
	}
}

func TestTopics(t *testing.T) {
	if got := AlertTopic(7); got != "loralert/alert/7" {
		t.Errorf("AlertTopic(7) = %q", got)
	}
	if got := StatusTopic(); got != "loralert/status" {
		t.Errorf("StatusTopic() = %q", got)
	}
	if got := HealthTopic(); got != "loralert/health" {
		t.Errorf("HealthTopic() = %q", got)
	}
}

func TestNewStatusMessage(t *testing.T) {
	msg := NewStatusMessage("gateway ready")
	if msg.Text != "gateway ready" || msg.Timestamp.IsZero() {
		t.Errorf("NewStatusMessage() = %+v", msg)
	}
}
