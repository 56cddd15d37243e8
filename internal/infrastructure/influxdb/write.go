package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteCommandDuration writes an executed command's timing measurement.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - kind: Command kind (e.g., "aspirate", "pickup_tip")
//   - outcome: Execution outcome (e.g., "success", "device_failed")
//   - duration: Nominal duration of the command
//   - clock: Simulated clock after the command
func (c *Client) WriteCommandDuration(kind, outcome string, duration, clock time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"command_execution",
		map[string]string{
			"kind":    kind,
			"outcome": outcome,
		},
		map[string]interface{}{
			"duration_ms": float64(duration.Milliseconds()),
			"clock_ms":    float64(clock.Milliseconds()),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteWellVolume writes a well's volume after a liquid transfer.
//
// Parameters:
//   - plate: Plate identifier (e.g., "Source_96")
//   - well: Well identifier within the plate (e.g., "A1")
//   - volume: Current volume in microlitres
func (c *Client) WriteWellVolume(plate, well string, volume float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"well_volume",
		map[string]string{
			"plate": plate,
			"well":  well,
		},
		map[string]interface{}{
			"volume_ul": volume,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteRunSummary writes the aggregate measurements for a finished run.
//
// Parameters:
//   - runID: The run's identifier
//   - status: Final run status (e.g., "completed", "aborted")
//   - commands: Number of commands executed
//   - clock: Final simulated clock
func (c *Client) WriteRunSummary(runID, status string, commands int, clock time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"run_summary",
		map[string]string{
			"run_id": runID,
			"status": status,
		},
		map[string]interface{}{
			"commands": commands,
			"clock_ms": float64(clock.Milliseconds()),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// RecordCommand adapts WriteCommandDuration to the engine's telemetry
// interface.
func (c *Client) RecordCommand(kind, outcome string, duration, clock time.Duration) {
	c.WriteCommandDuration(kind, outcome, duration, clock)
}

// RecordWellVolume adapts WriteWellVolume to the engine's telemetry
// interface.
func (c *Client) RecordWellVolume(plate, well string, volume float64) {
	c.WriteWellVolume(plate, well, volume)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "core-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
