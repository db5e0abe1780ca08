package influxdb

import "errors"

// Sentinel errors for telemetry operations.
//
// Writes never return errors; they are reported asynchronously through
// the callback set with SetOnError.
var (
	// ErrDisabled is returned by Connect when influxdb.enabled is false.
	// Callers run without telemetry in that case.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrConnectionFailed indicates the startup ping failed.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrNotConnected is returned by HealthCheck after Close.
	ErrNotConnected = errors.New("influxdb: not connected")
)
