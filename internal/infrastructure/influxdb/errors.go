package influxdb

import "errors"

// Telemetry is best-effort: callers check ErrDisabled at startup to
// decide whether to run without it, and health reporting distinguishes
// "never configured" from "configured but down".
var (
	ErrNotConnected     = errors.New("influxdb: not connected")
	ErrConnectionFailed = errors.New("influxdb: connection failed")
	ErrDisabled         = errors.New("influxdb: disabled in configuration")
)
