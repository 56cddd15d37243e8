package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meridianlab/fluidcore/internal/engine"
	"github.com/meridianlab/fluidcore/internal/infrastructure/mqtt"
	"github.com/meridianlab/fluidcore/internal/instrument"
)

// MQTTClient is the broker interface the bridge needs. Satisfied by
// *mqtt.Client.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error

	// Unsubscribe removes a subscription.
	Unsubscribe(topic string) error
}

// defaultAckTimeout bounds how long the bridge waits for an instrument
// acknowledgement before declaring the command failed.
const defaultAckTimeout = 10 * time.Second

// commandMessage is the wire format published to the instrument bridge.
// A batch is one message; the bridge process performs all commands as a
// single physical action and returns one acknowledgement.
type commandMessage struct {
	ID        string               `json:"id"`
	Commands  []instrument.Command `json:"commands"`
	Timestamp time.Time            `json:"timestamp"`
}

// ackMessage is the wire format received on the acknowledgement topic.
type ackMessage struct {
	ID         string `json:"id"`
	OK         bool   `json:"ok"`
	Reason     string `json:"reason,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

// Bridge is the MQTT action port. Commands are published to
// fluidcore/command/{instrument} and confirmed by correlated
// acknowledgements on fluidcore/ack/{instrument}.
type Bridge struct {
	client       MQTTClient
	instrumentID string
	qos          byte
	ackTimeout   time.Duration
	logger       Logger

	mu      sync.Mutex
	pending map[string]chan ackMessage
}

// NewBridge creates an MQTT bridge port for one instrument. ackTimeout
// bounds the wait per command; zero selects the default.
func NewBridge(client MQTTClient, instrumentID string, qos byte, ackTimeout time.Duration) (*Bridge, error) {
	if client == nil {
		return nil, fmt.Errorf("backend: mqtt client is required")
	}
	if instrumentID == "" {
		return nil, fmt.Errorf("backend: instrument id is required")
	}
	if ackTimeout <= 0 {
		ackTimeout = defaultAckTimeout
	}
	return &Bridge{
		client:       client,
		instrumentID: instrumentID,
		qos:          qos,
		ackTimeout:   ackTimeout,
		logger:       noopLogger{},
		pending:      make(map[string]chan ackMessage),
	}, nil
}

// SetLogger sets the bridge's logger.
func (b *Bridge) SetLogger(logger Logger) {
	if logger != nil {
		b.logger = logger
	}
}

// Start subscribes to the instrument's acknowledgement topic. Call before
// handing the bridge to an engine.
func (b *Bridge) Start() error {
	topic := mqtt.Topics{}.InstrumentAck(b.instrumentID)
	if err := b.client.Subscribe(topic, b.qos, b.handleAck); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	return nil
}

// Close unsubscribes from the acknowledgement topic.
func (b *Bridge) Close() error {
	topic := mqtt.Topics{}.InstrumentAck(b.instrumentID)
	return b.client.Unsubscribe(topic)
}

// Perform publishes a single command and awaits its acknowledgement.
func (b *Bridge) Perform(ctx context.Context, cmd instrument.Command) engine.Outcome {
	return b.dispatch(ctx, []instrument.Command{cmd})
}

// PerformBatch publishes a batch as one message and awaits one
// acknowledgement covering the whole physical action.
func (b *Bridge) PerformBatch(ctx context.Context, cmds []instrument.Command) engine.Outcome {
	return b.dispatch(ctx, cmds)
}

func (b *Bridge) dispatch(ctx context.Context, cmds []instrument.Command) engine.Outcome {
	msg := commandMessage{
		ID:        uuid.NewString(),
		Commands:  cmds,
		Timestamp: time.Now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return engine.Failed(fmt.Sprintf("encoding command: %v", err))
	}

	ack := make(chan ackMessage, 1)
	b.mu.Lock()
	b.pending[msg.ID] = ack
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, msg.ID)
		b.mu.Unlock()
	}()

	topic := mqtt.Topics{}.InstrumentCommand(b.instrumentID)
	if err := b.client.Publish(topic, payload, b.qos, false); err != nil {
		return engine.Failed(fmt.Sprintf("publishing command: %v", err))
	}

	timer := time.NewTimer(b.ackTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return engine.Failed("cancelled awaiting acknowledgement")
	case <-timer.C:
		b.logger.Warn("acknowledgement timeout",
			"instrument", b.instrumentID, "command_id", msg.ID, "timeout", b.ackTimeout)
		return engine.Failed(fmt.Sprintf("no acknowledgement within %v", b.ackTimeout))
	case a := <-ack:
		if !a.OK {
			return engine.Failed(a.Reason)
		}
		return engine.Succeeded(time.Duration(a.DurationMS) * time.Millisecond)
	}
}

// handleAck routes an acknowledgement to the waiting dispatch by command ID.
// Acks with no waiter (late arrivals after timeout) are dropped.
func (b *Bridge) handleAck(topic string, payload []byte) error {
	var a ackMessage
	if err := json.Unmarshal(payload, &a); err != nil {
		return fmt.Errorf("decoding acknowledgement on %s: %w", topic, err)
	}
	if a.ID == "" {
		return fmt.Errorf("acknowledgement on %s missing command id", topic)
	}

	b.mu.Lock()
	ch, ok := b.pending[a.ID]
	b.mu.Unlock()
	if !ok {
		b.logger.Debug("dropping unmatched acknowledgement", "command_id", a.ID)
		return nil
	}

	select {
	case ch <- a:
	default:
	}
	return nil
}
