// LoRa Alert - serial gateway to audio alert bridge
//
// loralert reads "<device-id>:<MESSAGE_TYPE>" lines from a LoRa receiver on a
// serial port, maps each device to a location and each location/type pair to
// a sound file, and plays the sound on the local audio output. Dispatch
// results are optionally published to MQTT, exposed over a read-only HTTP
// API and recorded in InfluxDB.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	_ "github.com/nerrad567/lora-alert/migrations"

	"github.com/nerrad567/lora-alert/internal/api"
	"github.com/nerrad567/lora-alert/internal/audio"
	"github.com/nerrad567/lora-alert/internal/bridges/lora"
	"github.com/nerrad567/lora-alert/internal/catalog"
	"github.com/nerrad567/lora-alert/internal/infrastructure/config"
	"github.com/nerrad567/lora-alert/internal/infrastructure/database"
	"github.com/nerrad567/lora-alert/internal/infrastructure/influxdb"
	"github.com/nerrad567/lora-alert/internal/infrastructure/logging"
	"github.com/nerrad567/lora-alert/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context cancelled by SIGINT/SIGTERM
//
// Returns:
//   - error: nil after an operator interrupt, otherwise the failure that
//     stopped the bridge (including loss of the serial link)
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting LoRa alert bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	defer log.Close() //nolint:errcheck // best effort on exit
	log.Info("configuration loaded", "path", configPath)

	// Lookup tables
	var db *database.DB
	if cfg.Tables.Source == config.TablesFromDatabase {
		db, err = openDatabase(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
	}

	cat, err := loadCatalog(ctx, cfg, db, log)
	if err != nil {
		return err
	}
	devices, rules := cat.Len()
	log.Info("lookup tables loaded", "source", cfg.Tables.Source, "devices", devices, "alerts", rules)

	// Optional MQTT
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// Optional InfluxDB
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	// Audio output
	sink, err := audio.NewPlayerSink(audio.PlayerConfig{
		Player:          cfg.Audio.Player,
		Args:            cfg.Audio.Args,
		GracefulTimeout: cfg.Audio.GracefulTimeout,
		Logger:          log.Component("audio"),
	})
	if err != nil {
		return fmt.Errorf("opening audio output: %w", err)
	}
	defer sink.Close() //nolint:errcheck // idempotent; released by the bridge on the normal path
	log.Info("audio output ready", "player", sink.Binary(), "sounds_dir", cfg.Audio.SoundsDir)

	fanout := &reportFanout{log: log}
	if mqttClient != nil {
		fanout.mqtt = mqttClient
	}

	dispatcher, err := lora.NewDispatcher(lora.DispatcherOptions{
		Lookup:       cat,
		Sink:         sink,
		Mode:         lora.Mode(cfg.Dispatch.Mode),
		QueueSize:    cfg.Dispatch.QueueSize,
		PollInterval: cfg.Ingest.PollInterval,
		Resolve:      audio.FileChecker(cfg.Audio.SoundsDir),
		OnReport:     fanout.report,
		Logger:       log.Component("dispatch"),
	})
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}
	defer dispatcher.Close() //nolint:errcheck // idempotent

	// Serial link
	src, err := lora.OpenSerial(lora.SerialConfig{
		Port:        cfg.Serial.Port,
		Baud:        cfg.Serial.Baud,
		ReadTimeout: cfg.Serial.ReadTimeout,
	})
	if err != nil {
		return err
	}
	defer src.Close() //nolint:errcheck // idempotent
	log.Info("serial connection opened", "port", src.Name(), "baud", cfg.Serial.Baud)

	bridge, err := lora.NewBridge(lora.BridgeOptions{
		Source:        src,
		Dispatcher:    dispatcher,
		PollInterval:  cfg.Ingest.PollInterval,
		MaxLineLength: cfg.Ingest.MaxLineLength,
		OnStatus:      fanout.status,
		Logger:        log.Component("ingest"),
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}

	// Optional HTTP API
	if cfg.API.Enabled {
		deps := api.Deps{
			Config:  cfg.API,
			WS:      cfg.WebSocket,
			Logger:  log.Component("api"),
			Catalog: cat,
			Stats:   bridge,
			Version: version,
		}
		if mqttClient != nil {
			deps.MQTT = mqttClient
		}
		apiServer, apiErr := api.New(deps)
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		fanout.setAPI(apiServer)
	}

	// Health and statistics reporting
	reporter := newHealthReporter(cfg, bridge, mqttClient, influxClient)
	reporter.SetLogger(log.Component("health"))
	if pubErr := reporter.PublishStarting(); pubErr != nil {
		log.Warn("publishing starting status failed", "error", pubErr)
	}
	reporter.Start(ctx)
	defer reporter.Stop()

	log.Info("initialisation complete")

	if err := bridge.Run(ctx); err != nil {
		if errors.Is(err, lora.ErrLinkLost) {
			return fmt.Errorf("serial port %s: %w", src.Name(), err)
		}
		return err
	}

	log.Info("LoRa alert bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses LORALERT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("LORALERT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openDatabase opens SQLite and applies pending migrations.
func openDatabase(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", db.Path())
	return db, nil
}

// loadCatalog builds the lookup tables from the configured source.
//
// With tables.source "database", any devices or alerts listed in the YAML
// file replace the stored tables first.
func loadCatalog(ctx context.Context, cfg *config.Config, db *database.DB, log *logging.Logger) (*catalog.Catalog, error) {
	fromConfig, err := catalog.FromConfig(cfg.Tables)
	if err != nil {
		return nil, fmt.Errorf("building lookup tables: %w", err)
	}
	if db == nil {
		return fromConfig, nil
	}

	repo := catalog.NewSQLiteRepository(db.DB)
	if devices, rules := fromConfig.Len(); devices > 0 || rules > 0 {
		if err := repo.ReplaceAll(ctx, fromConfig); err != nil {
			return nil, fmt.Errorf("seeding lookup tables: %w", err)
		}
		log.Info("lookup tables seeded from config", "devices", devices, "alerts", rules)
	}

	cat, err := catalog.LoadRepository(ctx, repo)
	if err != nil {
		return nil, fmt.Errorf("loading lookup tables: %w", err)
	}
	return cat, nil
}

// newHealthReporter wires the reporter to whichever outputs are enabled.
func newHealthReporter(cfg *config.Config, stats lora.StatsProvider, mqttClient *mqtt.Client, influxClient *influxdb.Client) *lora.HealthReporter {
	bridgeID := cfg.MQTT.Broker.ClientID
	rc := lora.HealthReporterConfig{
		BridgeID: bridgeID,
		Version:  version,
		Interval: cfg.Health.Interval,
		Stats:    stats,
	}
	if mqttClient != nil {
		rc.Publisher = mqttClient
	}
	if influxClient != nil {
		rc.OnStats = func(s lora.Stats) {
			influxClient.WriteIngestStats(bridgeID, s.Fields())
		}
	}
	return lora.NewHealthReporter(rc)
}

// healthCheck verifies the enabled infrastructure connections.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database (may be nil when tables come from the config file)
//   - mqttClient: MQTT client (may be nil if disabled)
//   - influxClient: InfluxDB client (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// alertPublisher is the part of *mqtt.Client used for dispatch reports.
type alertPublisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// alertRecorder is the part of *api.Server used for dispatch reports.
type alertRecorder interface {
	RecordReport(r lora.DispatchReport)
	RecordStatus(text string)
}

// reportFanout forwards dispatch reports and status lines to MQTT and the
// HTTP API. Either output may be absent.
type reportFanout struct {
	mqtt alertPublisher
	log  *logging.Logger

	api   alertRecorder
	apiMu sync.RWMutex
}

func (f *reportFanout) setAPI(r alertRecorder) {
	f.apiMu.Lock()
	f.api = r
	f.apiMu.Unlock()
}

func (f *reportFanout) recorder() alertRecorder {
	f.apiMu.RLock()
	defer f.apiMu.RUnlock()
	return f.api
}

func (f *reportFanout) report(r lora.DispatchReport) {
	if f.mqtt != nil {
		if err := f.mqtt.PublishJSON(lora.AlertTopic(r.Event.DeviceID), lora.NewAlertMessage(r), false); err != nil {
			f.log.Warn("publishing alert report failed", "device_id", r.Event.DeviceID, "error", err)
		}
	}
	if rec := f.recorder(); rec != nil {
		rec.RecordReport(r)
	}
}

func (f *reportFanout) status(text string) {
	if f.mqtt != nil {
		if err := f.mqtt.PublishJSON(lora.StatusTopic(), lora.NewStatusMessage(text), false); err != nil {
			f.log.Warn("publishing status line failed", "error", err)
		}
	}
	if rec := f.recorder(); rec != nil {
		rec.RecordStatus(text)
	}
}
