// Package influxdb provides InfluxDB connectivity for fluidcore.
//
// It wraps the official influxdb-client-go v2 library with fluidcore-specific
// patterns for connection management, metric writing, and health monitoring.
//
// # Purpose
//
// This package handles time-series data storage for:
//   - Command execution timing (nominal durations, simulated clock)
//   - Well volume tracking across liquid transfers
//   - Run summaries for throughput analysis
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "meridianlab",
//	    Bucket: "fluidcore",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Write command telemetry
//	client.WriteCommandDuration("aspirate", "success", 500*time.Millisecond, clock)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
// This reduces network overhead for high-frequency telemetry data.
package influxdb
