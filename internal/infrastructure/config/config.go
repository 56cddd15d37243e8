package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for fluidcore.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Lab        LabConfig        `yaml:"lab"`
	Instrument InstrumentConfig `yaml:"instrument"`
	Worklist   WorklistConfig   `yaml:"worklist"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
	Security   SecurityConfig   `yaml:"security"`
}

// LabConfig contains deployment-site information.
type LabConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// InstrumentConfig contains the liquid handler settings the engine is
// built from.
type InstrumentConfig struct {
	// ID identifies the instrument on the message bus.
	ID string `yaml:"id"`

	// NumChannels is the pipetting head's channel count.
	NumChannels int `yaml:"num_channels"`

	// EnforceCapacity enables overflow rejection for wells with a
	// configured capacity.
	EnforceCapacity bool `yaml:"enforce_capacity"`

	// SkipAdvisoryFailures selects skip-and-continue for wash/break device
	// failures instead of fail-fast.
	SkipAdvisoryFailures bool `yaml:"skip_advisory_failures"`

	// Backend selects the action port: "simulator" or "mqtt".
	Backend string `yaml:"backend"`

	// RealTime paces the simulator with nominal durations instead of
	// confirming instantly. Ignored by the mqtt backend.
	RealTime bool `yaml:"real_time"`

	// AckTimeout is the mqtt backend's per-command acknowledgement
	// timeout in seconds. Zero selects the built-in default.
	AckTimeout int `yaml:"ack_timeout"`

	// PreloadedTips lists channels that already carry a tip at startup,
	// for an instrument resuming mid-protocol.
	PreloadedTips []int `yaml:"preloaded_tips"`

	// SeedVolumes pre-fills wells at startup, in microlitres.
	SeedVolumes []SeedVolume `yaml:"seed_volumes"`

	// Capacities sets per-well capacities checked when enforce_capacity
	// is on.
	Capacities []WellCapacity `yaml:"capacities"`
}

// SeedVolume pre-fills one well at startup.
type SeedVolume struct {
	Plate  string  `yaml:"plate"`
	Well   string  `yaml:"well"`
	Volume float64 `yaml:"volume"`
}

// WellCapacity caps one well's volume for overflow checking.
type WellCapacity struct {
	Plate    string  `yaml:"plate"`
	Well     string  `yaml:"well"`
	Capacity float64 `yaml:"capacity"`
}

// WorklistConfig contains worklist parsing settings.
type WorklistConfig struct {
	// DefaultChannel is the channel assigned to commands parsed from text
	// worklists, which carry no channel information.
	DefaultChannel int `yaml:"default_channel"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
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
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
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

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// JWTConfig contains JWT token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// RateLimitConfig contains rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
}

// Backend kinds accepted by instrument.backend.
const (
	BackendSimulator = "simulator"
	BackendMQTT      = "mqtt"
)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: FLUIDCORE_SECTION_KEY
// For example: FLUIDCORE_DATABASE_PATH, FLUIDCORE_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Lab: LabConfig{
			ID:       "lab-001",
			Name:     "fluidcore",
			Timezone: "UTC",
		},
		Instrument: InstrumentConfig{
			ID:          "fluent-01",
			NumChannels: 8,
			Backend:     BackendSimulator,
		},
		Database: DatabaseConfig{
			Path:        "./data/fluidcore.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "fluidcore-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 15,
			},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 100,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: FLUIDCORE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("FLUIDCORE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Instrument
	if v := os.Getenv("FLUIDCORE_INSTRUMENT_ID"); v != "" {
		cfg.Instrument.ID = v
	}
	if v := os.Getenv("FLUIDCORE_INSTRUMENT_BACKEND"); v != "" {
		cfg.Instrument.Backend = v
	}

	// MQTT
	if v := os.Getenv("FLUIDCORE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("FLUIDCORE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("FLUIDCORE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("FLUIDCORE_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("FLUIDCORE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security - JWT secret (IMPORTANT: always override in production)
	if v := os.Getenv("FLUIDCORE_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Lab validation
	if c.Lab.ID == "" {
		errs = append(errs, "lab.id is required")
	}

	// Instrument validation
	if c.Instrument.ID == "" {
		errs = append(errs, "instrument.id is required")
	}
	if c.Instrument.NumChannels < 1 {
		errs = append(errs, "instrument.num_channels must be at least 1")
	}
	switch c.Instrument.Backend {
	case BackendSimulator, BackendMQTT:
	default:
		errs = append(errs, fmt.Sprintf("instrument.backend must be %q or %q", BackendSimulator, BackendMQTT))
	}
	for _, ch := range c.Instrument.PreloadedTips {
		if ch < 0 || ch >= c.Instrument.NumChannels {
			errs = append(errs, fmt.Sprintf("instrument.preloaded_tips: channel %d out of range", ch))
		}
	}
	for i, sv := range c.Instrument.SeedVolumes {
		if sv.Plate == "" || sv.Well == "" {
			errs = append(errs, fmt.Sprintf("instrument.seed_volumes[%d]: plate and well are required", i))
		}
		if sv.Volume < 0 {
			errs = append(errs, fmt.Sprintf("instrument.seed_volumes[%d]: volume must not be negative", i))
		}
	}
	for i, wc := range c.Instrument.Capacities {
		if wc.Plate == "" || wc.Well == "" {
			errs = append(errs, fmt.Sprintf("instrument.capacities[%d]: plate and well are required", i))
		}
		if wc.Capacity <= 0 {
			errs = append(errs, fmt.Sprintf("instrument.capacities[%d]: capacity must be positive", i))
		}
	}

	// Worklist validation
	if c.Worklist.DefaultChannel < 0 || c.Worklist.DefaultChannel >= c.Instrument.NumChannels {
		errs = append(errs, "worklist.default_channel must name a valid channel")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Security validation - JWT secret is REQUIRED
	// A forged token would let an attacker drive a physical liquid handler,
	// so weak secrets are rejected outright.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set FLUIDCORE_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
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
