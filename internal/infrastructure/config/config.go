package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Dispatch modes.
const (
	// DispatchSync blocks the ingest loop until the previous alert finished playing.
	DispatchSync = "sync"

	// DispatchQueue hands alerts to a single playback worker through a bounded FIFO queue.
	DispatchQueue = "queue"
)

// Table sources.
const (
	// TablesFromConfig reads the device and alert tables from this file.
	TablesFromConfig = "config"

	// TablesFromDatabase reads the device and alert tables from SQLite.
	TablesFromDatabase = "database"
)

// Config is the root configuration structure for the LoRa alert bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Serial    SerialConfig    `yaml:"serial"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Audio     AudioConfig     `yaml:"audio"`
	Tables    TablesConfig    `yaml:"tables"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Health    HealthConfig    `yaml:"health"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SerialConfig describes the UART the LoRa gateway is attached to.
type SerialConfig struct {
	// Port is the device path (e.g. "/dev/ttyUSB0", "COM7").
	Port string `yaml:"port"`

	// Baud is the line speed. The gateway firmware uses 9600.
	Baud int `yaml:"baud"`

	// ReadTimeout bounds a single read on the port.
	// Must not exceed ingest.poll_interval.
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// EffectiveReadTimeout is how long a read on the port actually blocks.
// The serial driver counts in whole tenths of a second (1 to 255), so
// shorter timeouts round up to 100ms and longer ones round down.
func (s SerialConfig) EffectiveReadTimeout() time.Duration {
	if s.ReadTimeout <= 0 {
		return 0
	}
	tenths := s.ReadTimeout / (100 * time.Millisecond)
	switch {
	case tenths < 1:
		tenths = 1
	case tenths > 255:
		tenths = 255
	}
	return tenths * 100 * time.Millisecond
}

// IngestConfig controls the ingest loop.
type IngestConfig struct {
	// PollInterval is how long the loop sleeps when no complete line is available.
	PollInterval time.Duration `yaml:"poll_interval"`

	// MaxLineLength caps the bytes buffered while waiting for a line terminator.
	MaxLineLength int `yaml:"max_line_length"`
}

// DispatchConfig controls how alerts are scheduled onto the audio output.
type DispatchConfig struct {
	// Mode is "sync" or "queue".
	Mode string `yaml:"mode"`

	// QueueSize is the number of alerts that may wait for the channel in queue mode.
	QueueSize int `yaml:"queue_size"`
}

// AudioConfig configures the external player used for alert playback.
type AudioConfig struct {
	// Player is the executable that plays one sound file and exits (e.g. "aplay").
	Player string `yaml:"player"`

	// Args are passed before the sound file path.
	Args []string `yaml:"args"`

	// SoundsDir is the base directory for relative sound paths.
	SoundsDir string `yaml:"sounds_dir"`

	// GracefulTimeout is how long a running player gets after SIGTERM on shutdown.
	GracefulTimeout time.Duration `yaml:"graceful_timeout"`
}

// TablesConfig holds the static lookup tables.
type TablesConfig struct {
	// Source is "config" (use Devices/Alerts below) or "database".
	Source string `yaml:"source"`

	// Devices maps remote node IDs to locations.
	Devices []DeviceEntry `yaml:"devices"`

	// Alerts maps location -> message type -> sound file.
	Alerts map[string]map[string]string `yaml:"alerts"`
}

// DeviceEntry is a single row of the device table.
type DeviceEntry struct {
	ID       uint64 `yaml:"id"`
	Location string `yaml:"location"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP status server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains live alert feed settings.
type WebSocketConfig struct {
	Path         string `yaml:"path"`
	PingInterval int    `yaml:"ping_interval"`
	PongTimeout  int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// HealthConfig controls periodic health and statistics reporting.
type HealthConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: LORALERT_SECTION_KEY
// For example: LORALERT_SERIAL_PORT, LORALERT_MQTT_HOST
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with the gateway's factory settings.
func defaultConfig() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:        "/dev/ttyUSB0",
			Baud:        9600,
			ReadTimeout: 50 * time.Millisecond,
		},
		Ingest: IngestConfig{
			PollInterval:  100 * time.Millisecond,
			MaxLineLength: 256,
		},
		Dispatch: DispatchConfig{
			Mode:      DispatchSync,
			QueueSize: 8,
		},
		Audio: AudioConfig{
			Player:          "aplay",
			Args:            []string{"-q"},
			SoundsDir:       "./sounds",
			GracefulTimeout: 2 * time.Second,
		},
		Tables: TablesConfig{
			Source: TablesFromConfig,
		},
		Database: DatabaseConfig{
			Path:        "./data/loralert.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "loralert",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:         "/api/v1/ws",
			PingInterval: 30,
			PongTimeout:  10,
		},
		Health: HealthConfig{
			Interval: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LORALERT_SERIAL_PORT"); v != "" {
		cfg.Serial.Port = v
	}
	if v := os.Getenv("LORALERT_SERIAL_BAUD"); v != "" {
		if baud, err := strconv.Atoi(v); err == nil {
			cfg.Serial.Baud = baud
		}
	}
	if v := os.Getenv("LORALERT_SOUNDS_DIR"); v != "" {
		cfg.Audio.SoundsDir = v
	}
	if v := os.Getenv("LORALERT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("LORALERT_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("LORALERT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("LORALERT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("LORALERT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []string

	if c.Serial.Port == "" {
		errs = append(errs, "serial.port is required")
	}
	if c.Serial.Baud <= 0 {
		errs = append(errs, "serial.baud must be positive")
	}
	if c.Serial.ReadTimeout <= 0 {
		errs = append(errs, "serial.read_timeout must be positive")
	}

	if c.Ingest.PollInterval <= 0 {
		errs = append(errs, "ingest.poll_interval must be positive")
	} else if rt := c.Serial.EffectiveReadTimeout(); rt > c.Ingest.PollInterval {
		errs = append(errs, fmt.Sprintf("serial.read_timeout must not exceed ingest.poll_interval (the port waits %v per read)", rt))
	}
	if c.Ingest.MaxLineLength <= 0 {
		errs = append(errs, "ingest.max_line_length must be positive")
	}

	switch c.Dispatch.Mode {
	case DispatchSync:
	case DispatchQueue:
		if c.Dispatch.QueueSize < 1 {
			errs = append(errs, "dispatch.queue_size must be at least 1 in queue mode")
		}
	default:
		errs = append(errs, fmt.Sprintf("dispatch.mode %q must be %q or %q", c.Dispatch.Mode, DispatchSync, DispatchQueue))
	}

	if c.Audio.Player == "" {
		errs = append(errs, "audio.player is required")
	}

	errs = append(errs, c.Tables.validate(c.Database)...)

	if c.MQTT.Enabled && (c.MQTT.QoS < 0 || c.MQTT.QoS > 2) {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validate checks the lookup tables.
func (t TablesConfig) validate(db DatabaseConfig) []string {
	var errs []string

	switch t.Source {
	case TablesFromConfig:
	case TablesFromDatabase:
		if db.Path == "" {
			errs = append(errs, "database.path is required when tables.source is database")
		}
		return errs
	default:
		return append(errs, fmt.Sprintf("tables.source %q must be %q or %q", t.Source, TablesFromConfig, TablesFromDatabase))
	}

	seen := make(map[uint64]bool, len(t.Devices))
	for _, d := range t.Devices {
		if seen[d.ID] {
			errs = append(errs, fmt.Sprintf("tables.devices: duplicate id %d", d.ID))
		}
		seen[d.ID] = true
		if d.Location == "" {
			errs = append(errs, fmt.Sprintf("tables.devices: id %d has no location", d.ID))
		}
	}

	for location, rules := range t.Alerts {
		for msgType, file := range rules {
			if strings.TrimSpace(msgType) == "" {
				errs = append(errs, fmt.Sprintf("tables.alerts.%s: empty message type", location))
			}
			if file == "" {
				errs = append(errs, fmt.Sprintf("tables.alerts.%s.%s: empty sound file", location, msgType))
			}
		}
	}

	return errs
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
