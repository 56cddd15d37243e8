// Package backend provides action port implementations for the execution
// engine.
//
// Simulator is the in-process port: it confirms every command instantly (or
// paced in real time) and supports fault injection for testing failure
// handling. Bridge is the MQTT port: it publishes commands to an external
// instrument bridge process and awaits correlated acknowledgements, so the
// same engine can drive simulated and physical hardware unchanged.
package backend
