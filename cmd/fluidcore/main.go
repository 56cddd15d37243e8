// FluidCore - Liquid Handler Execution Engine
//
// This is the main entry point for the FluidCore service. FluidCore turns
// worklist scripts and structured batch operations into validated pipetting
// actions, tracks instrument and labware state, and rejects physically
// impossible operations before they reach hardware.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/meridianlab/fluidcore/migrations"

	"github.com/meridianlab/fluidcore/internal/api"
	"github.com/meridianlab/fluidcore/internal/audit"
	"github.com/meridianlab/fluidcore/internal/auth"
	"github.com/meridianlab/fluidcore/internal/backend"
	"github.com/meridianlab/fluidcore/internal/engine"
	"github.com/meridianlab/fluidcore/internal/infrastructure/config"
	"github.com/meridianlab/fluidcore/internal/infrastructure/database"
	"github.com/meridianlab/fluidcore/internal/infrastructure/influxdb"
	"github.com/meridianlab/fluidcore/internal/infrastructure/logging"
	"github.com/meridianlab/fluidcore/internal/infrastructure/mqtt"
	"github.com/meridianlab/fluidcore/internal/instrument"
	"github.com/meridianlab/fluidcore/internal/runlog"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // startup wiring: each component initialised in sequence
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting FluidCore",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Seed the initial admin account on first boot
	userRepo := auth.NewUserRepository(db.DB)
	if _, seedErr := auth.SeedAdmin(ctx, userRepo, log.Logger); seedErr != nil {
		return fmt.Errorf("seeding admin account: %w", seedErr)
	}

	// Connect to MQTT broker (required for the mqtt backend, otherwise
	// optional: it relays instrument health to WebSocket clients)
	var mqttClient *mqtt.Client
	if cfg.Instrument.Backend == config.BackendMQTT || cfg.MQTT.Broker.Host != "" {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			if cfg.Instrument.Backend == config.BackendMQTT {
				return fmt.Errorf("connecting to MQTT: %w", err)
			}
			log.Warn("MQTT unavailable, continuing without health relay", "error", err)
		}
	}
	if mqttClient != nil {
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Build the action port
	port, closePort, err := buildPort(cfg, mqttClient, log)
	if err != nil {
		return fmt.Errorf("building action port: %w", err)
	}
	if closePort != nil {
		defer closePort()
	}

	// Build the execution engine
	eng, err := engine.New(engineConfig(cfg), port)
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	eng.SetLogger(log.With("component", "engine"))
	if influxClient != nil {
		eng.SetTelemetry(influxClient)
	}
	log.Info("engine initialised",
		"backend", cfg.Instrument.Backend,
		"channels", cfg.Instrument.NumChannels,
	)

	// Run persistence and audit trail
	runRepo := runlog.NewSQLiteRepository(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	// Start the API server
	server, err := api.New(api.Deps{
		Config:       cfg.API,
		WS:           cfg.WebSocket,
		Security:     cfg.Security,
		Worklist:     cfg.Worklist,
		InstrumentID: cfg.Instrument.ID,
		Logger:       log.With("component", "api"),
		Engine:       eng,
		Runs:         runRepo,
		Users:        userRepo,
		Audit:        auditRepo,
		MQTT:         mqttClient,
		Telemetry:    influxClient,
		Version:      version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	// The hub broadcasts engine events to WebSocket clients
	eng.SetNotifier(server.Hub())

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Action port (mqtt bridge)
	// 3. InfluxDB (if enabled)
	// 4. MQTT (if connected)
	// 5. Database

	log.Info("FluidCore stopped")
	return nil
}

// engineConfig maps the instrument section onto the engine's initial
// state: channel count, policies, and any pre-seeded deck state for an
// instrument resuming mid-protocol.
func engineConfig(cfg *config.Config) engine.Config {
	ec := engine.Config{
		NumChannels:          cfg.Instrument.NumChannels,
		EnforceCapacity:      cfg.Instrument.EnforceCapacity,
		SkipAdvisoryFailures: cfg.Instrument.SkipAdvisoryFailures,
		PreloadedTips:        cfg.Instrument.PreloadedTips,
	}
	if len(cfg.Instrument.SeedVolumes) > 0 {
		ec.SeedVolumes = make(map[instrument.WellRef]float64, len(cfg.Instrument.SeedVolumes))
		for _, sv := range cfg.Instrument.SeedVolumes {
			ec.SeedVolumes[instrument.WellRef{Plate: sv.Plate, Well: sv.Well}] = sv.Volume
		}
	}
	if len(cfg.Instrument.Capacities) > 0 {
		ec.Capacities = make(map[instrument.WellRef]float64, len(cfg.Instrument.Capacities))
		for _, wc := range cfg.Instrument.Capacities {
			ec.Capacities[instrument.WellRef{Plate: wc.Plate, Well: wc.Well}] = wc.Capacity
		}
	}
	return ec
}

// buildPort constructs the action port selected by instrument.backend.
//
// Returns the port, an optional cleanup function, and an error.
func buildPort(cfg *config.Config, mqttClient *mqtt.Client, log *logging.Logger) (engine.ActionPort, func(), error) {
	switch cfg.Instrument.Backend {
	case config.BackendSimulator, "":
		sim := backend.NewSimulator(cfg.Instrument.RealTime)
		sim.SetLogger(log.With("component", "simulator"))
		log.Info("simulator port ready", "real_time", cfg.Instrument.RealTime)
		return sim, nil, nil

	case config.BackendMQTT:
		if mqttClient == nil {
			return nil, nil, fmt.Errorf("mqtt backend requires a broker connection")
		}
		ackTimeout := time.Duration(cfg.Instrument.AckTimeout) * time.Second
		bridge, err := backend.NewBridge(mqttClient, cfg.Instrument.ID, byte(cfg.MQTT.QoS), ackTimeout) //nolint:gosec // G115: QoS is 0-2, validated by config
		if err != nil {
			return nil, nil, fmt.Errorf("creating mqtt bridge: %w", err)
		}
		bridge.SetLogger(log.With("component", "bridge"))
		if err := bridge.Start(); err != nil {
			return nil, nil, fmt.Errorf("starting mqtt bridge: %w", err)
		}
		log.Info("mqtt bridge port ready", "instrument", cfg.Instrument.ID)
		cleanup := func() {
			log.Info("closing mqtt bridge")
			if closeErr := bridge.Close(); closeErr != nil {
				log.Error("error closing mqtt bridge", "error", closeErr)
			}
		}
		return bridge, cleanup, nil

	default:
		return nil, nil, fmt.Errorf("unknown backend %q: must be %q or %q",
			cfg.Instrument.Backend, config.BackendSimulator, config.BackendMQTT)
	}
}

// getConfigPath returns the configuration file path.
// Uses FLUIDCORE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("FLUIDCORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	// Check database
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	// Check MQTT (if connected)
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	// Check InfluxDB (if enabled)
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
