package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_ValidConfig(t *testing.T) {
	// Create a temporary config file
	content := `
lab:
  id: "test-lab"
instrument:
  id: "fluent-test"
  num_channels: 8
  backend: "simulator"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8080
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Lab.ID != "test-lab" {
		t.Errorf("Lab.ID = %q, want %q", cfg.Lab.ID, "test-lab")
	}

	if cfg.Instrument.ID != "fluent-test" {
		t.Errorf("Instrument.ID = %q, want %q", cfg.Instrument.ID, "fluent-test")
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}

	if cfg.MQTT.Broker.Host != "localhost" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "localhost")
	}
}

func TestLoad_SeedState(t *testing.T) {
	content := `
lab:
  id: "test-lab"
instrument:
  id: "fluent-test"
  num_channels: 4
  backend: "simulator"
  preloaded_tips: [0, 2]
  seed_volumes:
    - { plate: Source_96, well: A1, volume: 200 }
    - { plate: Source_96, well: A2, volume: 150.5 }
  capacities:
    - { plate: Dest_96, well: B1, capacity: 300 }
database:
  path: "/tmp/test.db"
api:
  port: 8080
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := cfg.Instrument.PreloadedTips; len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Errorf("PreloadedTips = %v, want [0 2]", got)
	}
	if len(cfg.Instrument.SeedVolumes) != 2 {
		t.Fatalf("SeedVolumes = %d entries, want 2", len(cfg.Instrument.SeedVolumes))
	}
	sv := cfg.Instrument.SeedVolumes[1]
	if sv.Plate != "Source_96" || sv.Well != "A2" || sv.Volume != 150.5 {
		t.Errorf("SeedVolumes[1] = %+v, want Source_96 A2 150.5", sv)
	}
	if len(cfg.Instrument.Capacities) != 1 || cfg.Instrument.Capacities[0].Capacity != 300 {
		t.Errorf("Capacities = %+v, want one entry of 300", cfg.Instrument.Capacities)
	}
}

func TestValidate_SeedState(t *testing.T) {
	base := func() *Config {
		cfg := defaultConfig()
		cfg.Security.JWT.Secret = "test-secret-key-at-least-32-chars!"
		return cfg
	}

	cfg := base()
	cfg.Instrument.PreloadedTips = []int{8}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() accepted a preloaded tip beyond num_channels")
	}

	cfg = base()
	cfg.Instrument.SeedVolumes = []SeedVolume{{Plate: "P", Well: "A1", Volume: -10}}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() accepted a negative seed volume")
	}

	cfg = base()
	cfg.Instrument.SeedVolumes = []SeedVolume{{Plate: "", Well: "A1", Volume: 10}}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() accepted a seed volume without a plate")
	}

	cfg = base()
	cfg.Instrument.Capacities = []WellCapacity{{Plate: "P", Well: "A1", Capacity: 0}}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() accepted a zero well capacity")
	}

	cfg = base()
	cfg.Instrument.PreloadedTips = []int{0, 7}
	cfg.Instrument.SeedVolumes = []SeedVolume{{Plate: "P", Well: "A1", Volume: 100}}
	cfg.Instrument.Capacities = []WellCapacity{{Plate: "P", Well: "A1", Capacity: 200}}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() rejected valid seed state: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
lab:
  id: ""
database:
  path: "/tmp/test.db"
api:
  port: 8080
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty lab.id, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	// validJWTSecret is a secret that meets the 32-character minimum requirement
	validJWTSecret := "test-secret-key-at-least-32-chars!"

	// validBase is a correct configuration used as the template for each case.
	validBase := func() *Config {
		return &Config{
			Lab: LabConfig{ID: "lab-001"},
			Instrument: InstrumentConfig{
				ID:          "fluent-01",
				NumChannels: 8,
				Backend:     BackendSimulator,
			},
			Database: DatabaseConfig{Path: "/data/fluidcore.db"},
			MQTT:     MQTTConfig{QoS: 1},
			API:      APIConfig{Port: 8080},
			Security: SecurityConfig{JWT: JWTConfig{Secret: validJWTSecret}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing lab ID",
			mutate:  func(c *Config) { c.Lab.ID = "" },
			wantErr: true,
		},
		{
			name:    "missing instrument ID",
			mutate:  func(c *Config) { c.Instrument.ID = "" },
			wantErr: true,
		},
		{
			name:    "zero channels",
			mutate:  func(c *Config) { c.Instrument.NumChannels = 0 },
			wantErr: true,
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Instrument.Backend = "serial" },
			wantErr: true,
		},
		{
			name:    "default channel out of range",
			mutate:  func(c *Config) { c.Worklist.DefaultChannel = 8 },
			wantErr: true,
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "invalid port low",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: true,
		},
		{
			name:    "invalid port high",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "missing JWT secret",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "" },
			wantErr: true,
		},
		{
			name:    "JWT secret too short",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "short" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validBase()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
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

	// Set environment variables
	t.Setenv("FLUIDCORE_DATABASE_PATH", "/custom/path.db")
	t.Setenv("FLUIDCORE_INSTRUMENT_ID", "fluent-99")
	t.Setenv("FLUIDCORE_INSTRUMENT_BACKEND", "mqtt")
	t.Setenv("FLUIDCORE_MQTT_HOST", "mqtt.example.com")
	t.Setenv("FLUIDCORE_MQTT_USERNAME", "testuser")
	t.Setenv("FLUIDCORE_MQTT_PASSWORD", "testpass")
	t.Setenv("FLUIDCORE_API_HOST", "192.168.1.1")
	t.Setenv("FLUIDCORE_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("FLUIDCORE_JWT_SECRET", "jwt-secret")

	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}

	if cfg.Instrument.ID != "fluent-99" {
		t.Errorf("Instrument.ID = %q, want %q", cfg.Instrument.ID, "fluent-99")
	}

	if cfg.Instrument.Backend != BackendMQTT {
		t.Errorf("Instrument.Backend = %q, want %q", cfg.Instrument.Backend, BackendMQTT)
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

	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}

	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}

	if cfg.Security.JWT.Secret != "jwt-secret" {
		t.Errorf("Security.JWT.Secret = %q, want %q", cfg.Security.JWT.Secret, "jwt-secret")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Lab.ID == "" {
		t.Error("defaultConfig should have non-empty Lab.ID")
	}

	if cfg.Instrument.NumChannels != 8 {
		t.Errorf("defaultConfig Instrument.NumChannels = %d, want 8", cfg.Instrument.NumChannels)
	}

	if cfg.Instrument.Backend != BackendSimulator {
		t.Errorf("defaultConfig Instrument.Backend = %q, want %q", cfg.Instrument.Backend, BackendSimulator)
	}

	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}

	if cfg.API.Port != 8080 {
		t.Errorf("defaultConfig API.Port = %d, want 8080", cfg.API.Port)
	}
}
