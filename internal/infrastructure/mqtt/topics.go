package mqtt

import "fmt"

// Topic prefixes for the fluidcore message bus.
//
// Instrument topics use the flat scheme: fluidcore/{category}/{instrument}.
// The engine publishes commands and the instrument bridge processes publish
// acknowledgements and state, keeping the core decoupled from vendor
// firmware protocols.
const (
	// TopicPrefix is the base for all fluidcore topics.
	TopicPrefix = "fluidcore"

	// TopicPrefixCore is the base for core-published event topics.
	TopicPrefixCore = "fluidcore/core"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "fluidcore/system"
)

// Topics provides builders for fluidcore MQTT topics. Using these helpers
// keeps topic naming consistent across the codebase.
//
//	topics := mqtt.Topics{}
//	cmdTopic := topics.InstrumentCommand("fluent-01")
//	// Returns: "fluidcore/command/fluent-01"
type Topics struct{}

// InstrumentCommand returns the topic for commands to an instrument bridge.
//
// Example: fluidcore/command/fluent-01
func (Topics) InstrumentCommand(instrumentID string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, instrumentID)
}

// InstrumentAck returns the topic for command acknowledgements from an
// instrument bridge.
//
// Example: fluidcore/ack/fluent-01
func (Topics) InstrumentAck(instrumentID string) string {
	return fmt.Sprintf("%s/ack/%s", TopicPrefix, instrumentID)
}

// InstrumentState returns the topic for state reports from an instrument
// bridge (deck scans, tip rack levels).
//
// Example: fluidcore/state/fluent-01
func (Topics) InstrumentState(instrumentID string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefix, instrumentID)
}

// InstrumentHealth returns the topic for instrument bridge health status.
//
// Example: fluidcore/health/fluent-01
func (Topics) InstrumentHealth(instrumentID string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, instrumentID)
}

// CoreRunEvent returns the topic for run lifecycle events published by the
// core (started, completed, aborted).
//
// Example: fluidcore/core/run/3f2a.../completed
func (Topics) CoreRunEvent(runID, event string) string {
	return fmt.Sprintf("%s/run/%s/%s", TopicPrefixCore, runID, event)
}

// CoreEvent returns the topic for general core events.
//
// Example: fluidcore/core/event/command_executed
func (Topics) CoreEvent(eventType string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefixCore, eventType)
}

// SystemStatus returns the system status topic used for online/offline
// presence and the Last Will message.
//
// Example: fluidcore/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllInstrumentAcks returns a pattern matching acknowledgements from all
// instruments.
//
// Pattern: fluidcore/ack/+
func (Topics) AllInstrumentAcks() string {
	return fmt.Sprintf("%s/ack/+", TopicPrefix)
}

// AllInstrumentStates returns a pattern matching all instrument state
// reports.
//
// Pattern: fluidcore/state/+
func (Topics) AllInstrumentStates() string {
	return fmt.Sprintf("%s/state/+", TopicPrefix)
}

// AllInstrumentHealth returns a pattern matching all instrument health
// updates.
//
// Pattern: fluidcore/health/+
func (Topics) AllInstrumentHealth() string {
	return fmt.Sprintf("%s/health/+", TopicPrefix)
}

// AllTopics returns a pattern matching all fluidcore topics.
// Use with caution, this receives all traffic.
//
// Pattern: fluidcore/#
func (Topics) AllTopics() string {
	return "fluidcore/#"
}
