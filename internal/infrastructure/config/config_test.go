package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
serial:
  port: "/dev/ttyACM0"
  baud: 9600
  read_timeout: 40ms
ingest:
  poll_interval: 100ms
dispatch:
  mode: queue
  queue_size: 4
audio:
  sounds_dir: "/srv/sounds"
tables:
  devices:
    - id: 7
      location: KITCHEN
    - id: 12
      location: GARAGE
  alerts:
    KITCHEN:
      SMOKE: smoke_kitchen.wav
    GARAGE:
      DOOR: door.wav
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Serial.Port != "/dev/ttyACM0" {
		t.Errorf("Serial.Port = %q, want %q", cfg.Serial.Port, "/dev/ttyACM0")
	}
	if cfg.Serial.ReadTimeout != 40*time.Millisecond {
		t.Errorf("Serial.ReadTimeout = %v, want 40ms", cfg.Serial.ReadTimeout)
	}
	if cfg.Dispatch.Mode != DispatchQueue {
		t.Errorf("Dispatch.Mode = %q, want %q", cfg.Dispatch.Mode, DispatchQueue)
	}
	if len(cfg.Tables.Devices) != 2 {
		t.Fatalf("len(Tables.Devices) = %d, want 2", len(cfg.Tables.Devices))
	}
	if cfg.Tables.Devices[0].ID != 7 || cfg.Tables.Devices[0].Location != "KITCHEN" {
		t.Errorf("Tables.Devices[0] = %+v, want {7 KITCHEN}", cfg.Tables.Devices[0])
	}
	if got := cfg.Tables.Alerts["KITCHEN"]["SMOKE"]; got != "smoke_kitchen.wav" {
		t.Errorf("Tables.Alerts[KITCHEN][SMOKE] = %q, want smoke_kitchen.wav", got)
	}
	// Unset keys keep their defaults.
	if cfg.Audio.Player != "aplay" {
		t.Errorf("Audio.Player = %q, want aplay", cfg.Audio.Player)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "serial: [unclosed"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
dispatch:
  mode: parallel
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	if !strings.Contains(err.Error(), "dispatch.mode") {
		t.Errorf("error %q does not mention dispatch.mode", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing serial port",
			mutate:  func(c *Config) { c.Serial.Port = "" },
			wantErr: "serial.port",
		},
		{
			name:    "zero baud",
			mutate:  func(c *Config) { c.Serial.Baud = 0 },
			wantErr: "serial.baud",
		},
		{
			name: "read timeout longer than poll interval",
			mutate: func(c *Config) {
				c.Serial.ReadTimeout = time.Second
				c.Ingest.PollInterval = 100 * time.Millisecond
			},
			wantErr: "must not exceed ingest.poll_interval",
		},
		{
			name: "sub-tenth read timeout still waits 100ms",
			mutate: func(c *Config) {
				c.Serial.ReadTimeout = 20 * time.Millisecond
				c.Ingest.PollInterval = 50 * time.Millisecond
			},
			wantErr: "the port waits 100ms per read",
		},
		{
			name: "read timeout equal to poll interval after rounding",
			mutate: func(c *Config) {
				c.Serial.ReadTimeout = 150 * time.Millisecond
				c.Ingest.PollInterval = 100 * time.Millisecond
			},
		},
		{
			name:    "zero poll interval",
			mutate:  func(c *Config) { c.Ingest.PollInterval = 0 },
			wantErr: "ingest.poll_interval",
		},
		{
			name:    "zero max line length",
			mutate:  func(c *Config) { c.Ingest.MaxLineLength = 0 },
			wantErr: "ingest.max_line_length",
		},
		{
			name:    "unknown dispatch mode",
			mutate:  func(c *Config) { c.Dispatch.Mode = "parallel" },
			wantErr: "dispatch.mode",
		},
		{
			name: "queue mode without capacity",
			mutate: func(c *Config) {
				c.Dispatch.Mode = DispatchQueue
				c.Dispatch.QueueSize = 0
			},
			wantErr: "dispatch.queue_size",
		},
		{
			name:    "missing player",
			mutate:  func(c *Config) { c.Audio.Player = "" },
			wantErr: "audio.player",
		},
		{
			name: "duplicate device id",
			mutate: func(c *Config) {
				c.Tables.Devices = []DeviceEntry{{ID: 1, Location: "A"}, {ID: 1, Location: "B"}}
			},
			wantErr: "duplicate id 1",
		},
		{
			name: "device without location",
			mutate: func(c *Config) {
				c.Tables.Devices = []DeviceEntry{{ID: 3}}
			},
			wantErr: "id 3 has no location",
		},
		{
			name: "empty sound file",
			mutate: func(c *Config) {
				c.Tables.Alerts = map[string]map[string]string{"A": {"SMOKE": ""}}
			},
			wantErr: "empty sound file",
		},
		{
			name:    "unknown table source",
			mutate:  func(c *Config) { c.Tables.Source = "ldap" },
			wantErr: "tables.source",
		},
		{
			name: "database source without path",
			mutate: func(c *Config) {
				c.Tables.Source = TablesFromDatabase
				c.Database.Path = ""
			},
			wantErr: "database.path",
		},
		{
			name: "invalid QoS",
			mutate: func(c *Config) {
				c.MQTT.Enabled = true
				c.MQTT.QoS = 3
			},
			wantErr: "mqtt.qos",
		},
		{
			name: "invalid API port",
			mutate: func(c *Config) {
				c.API.Enabled = true
				c.API.Port = 70000
			},
			wantErr: "api.port",
		},
		{
			name: "influx without url",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
			},
			wantErr: "influxdb.url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateAggregatesErrors(t *testing.T) {
	cfg := defaultConfig()
	cfg.Serial.Port = ""
	cfg.Audio.Player = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error")
	}
	if !strings.Contains(err.Error(), "serial.port") || !strings.Contains(err.Error(), "audio.player") {
		t.Errorf("Validate() error = %q, want both problems reported", err)
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("LORALERT_SERIAL_PORT", "COM7")
	t.Setenv("LORALERT_SERIAL_BAUD", "19200")
	t.Setenv("LORALERT_SOUNDS_DIR", "/opt/sounds")
	t.Setenv("LORALERT_DATABASE_PATH", "/custom/path.db")
	t.Setenv("LORALERT_MQTT_HOST", "mqtt.example.com")
	t.Setenv("LORALERT_MQTT_USERNAME", "testuser")
	t.Setenv("LORALERT_MQTT_PASSWORD", "testpass")
	t.Setenv("LORALERT_INFLUXDB_TOKEN", "secret-token")

	applyEnvOverrides(cfg)

	if cfg.Serial.Port != "COM7" {
		t.Errorf("Serial.Port = %q, want %q", cfg.Serial.Port, "COM7")
	}
	if cfg.Serial.Baud != 19200 {
		t.Errorf("Serial.Baud = %d, want 19200", cfg.Serial.Baud)
	}
	if cfg.Audio.SoundsDir != "/opt/sounds" {
		t.Errorf("Audio.SoundsDir = %q, want %q", cfg.Audio.SoundsDir, "/opt/sounds")
	}
	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
}

func TestApplyEnvOverrides_BadBaudIgnored(t *testing.T) {
	cfg := defaultConfig()
	t.Setenv("LORALERT_SERIAL_BAUD", "fast")

	applyEnvOverrides(cfg)

	if cfg.Serial.Baud != 9600 {
		t.Errorf("Serial.Baud = %d, want default 9600", cfg.Serial.Baud)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Serial.Baud != 9600 {
		t.Errorf("defaultConfig Serial.Baud = %d, want 9600", cfg.Serial.Baud)
	}
	if cfg.Ingest.PollInterval != 100*time.Millisecond {
		t.Errorf("defaultConfig Ingest.PollInterval = %v, want 100ms", cfg.Ingest.PollInterval)
	}
	if cfg.Dispatch.Mode != DispatchSync {
		t.Errorf("defaultConfig Dispatch.Mode = %q, want %q", cfg.Dispatch.Mode, DispatchSync)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
}

func TestSerialConfig_EffectiveReadTimeout(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want time.Duration
	}{
		{0, 0},
		{time.Millisecond, 100 * time.Millisecond},
		{50 * time.Millisecond, 100 * time.Millisecond},
		{100 * time.Millisecond, 100 * time.Millisecond},
		{250 * time.Millisecond, 200 * time.Millisecond},
		{time.Second, time.Second},
		{time.Minute, 25500 * time.Millisecond},
	}
	for _, tt := range tests {
		got := SerialConfig{ReadTimeout: tt.in}.EffectiveReadTimeout()
		if got != tt.want {
			t.Errorf("EffectiveReadTimeout(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
