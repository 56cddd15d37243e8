package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/meridianlab/fluidcore/internal/infrastructure/config"
)

// Bus timings and limits. Command and ack payloads are small JSON
// documents; anything near the payload cap is a misbehaving bridge, not
// a legitimately larger message.
const (
	connectTimeout    = 10 * time.Second
	tokenTimeout      = 5 * time.Second
	disconnectQuiesce = 1000 // milliseconds
	keepAlive         = 60 * time.Second
	maxQoS            = 2
	maxPayloadSize    = 1 << 20
)

// MessageHandler receives messages from the instrument bus. Paho invokes
// handlers on its own goroutines; a handler that blocks holds up every
// acknowledgement behind it.
type MessageHandler func(topic string, payload []byte) error

// Logger is the subset of logging.Logger the client reports through.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// subscription is what the client needs to restore a topic after the
// broker connection drops and comes back.
type subscription struct {
	qos     byte
	handler MessageHandler
}

// Client is fluidcore's end of the instrument message bus. It carries
// engine commands out to instrument bridges and their acknowledgements,
// state reports and health beacons back in.
//
// All methods are safe for concurrent use. Subscriptions survive broker
// reconnects: the client re-subscribes every tracked topic when the
// session comes back.
type Client struct {
	paho pahomqtt.Client
	cfg  config.MQTTConfig

	mu           sync.RWMutex
	connected    bool
	subs         map[string]subscription
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// presence is the retained document on the system status topic. The
// broker publishes the Last Will variant when the core drops off without
// a clean shutdown, so bridges and dashboards can tell a crash from a
// restart.
type presence struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

func presencePayload(status, clientID, reason string) []byte {
	doc, _ := json.Marshal(presence{
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return doc
}

// Connect dials the broker and returns a ready client.
//
// The connection carries a Last Will on the system status topic, retries
// with exponential backoff between cfg.Reconnect.InitialDelay and
// MaxDelay, and enforces TLS 1.2+ when cfg.Broker.TLS is set.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{
		cfg:  cfg,
		subs: make(map[string]subscription),
	}

	opts := brokerOptions(cfg)
	opts.SetWill(Topics{}.SystemStatus(),
		string(presencePayload("offline", cfg.Broker.ClientID, "unexpected_disconnect")), 1, true)
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) { c.sessionUp() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.sessionDown(err) })

	c.paho = pahomqtt.NewClient(opts)
	token := c.paho.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnect handler runs asynchronously; mark connected here so
	// IsConnected is true as soon as Connect returns.
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	return c, nil
}

// brokerOptions maps the fluidcore MQTT section onto paho options.
func brokerOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	return opts
}

// sessionUp runs on every (re)connect: restore subscriptions, announce
// presence, then hand off to the caller's callback.
func (c *Client) sessionUp() {
	c.mu.Lock()
	c.connected = true
	subs := make(map[string]subscription, len(c.subs))
	for topic, sub := range c.subs {
		subs[topic] = sub
	}
	callback := c.onConnect
	c.mu.Unlock()

	for topic, sub := range subs {
		// Errors here are retried on the next reconnect.
		c.paho.Subscribe(topic, sub.qos, c.wrapHandler(sub.handler))
	}

	c.paho.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true,
		presencePayload("online", c.cfg.Broker.ClientID, ""))

	if callback != nil {
		callback()
	}
}

func (c *Client) sessionDown(err error) {
	c.mu.Lock()
	c.connected = false
	callback := c.onDisconnect
	c.mu.Unlock()

	if callback != nil {
		callback(err)
	}
}

// Close announces a graceful shutdown on the status topic, then
// disconnects with a quiesce period for in-flight publishes. Closing a
// never-connected client is a no-op.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}

	if c.IsConnected() {
		token := c.paho.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true,
			presencePayload("offline", c.cfg.Broker.ClientID, "graceful_shutdown"))
		token.WaitTimeout(tokenTimeout)
	}

	c.paho.Disconnect(disconnectQuiesce)

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	return nil
}

// HealthCheck reports whether the bus connection is alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.paho.IsConnected()
}

// SetOnConnect registers a callback invoked on connect and every
// reconnect, after subscriptions are restored.
func (c *Client) SetOnConnect(callback func()) {
	c.mu.Lock()
	c.onConnect = callback
	c.mu.Unlock()
}

// SetOnDisconnect registers a callback invoked when the connection is
// lost, with the cause.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.mu.Lock()
	c.onDisconnect = callback
	c.mu.Unlock()
}

// SetLogger sets the logger for handler errors and recovered panics.
// Without one, handler failures are dropped silently.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

// wrapHandler adapts a MessageHandler to paho, recovering panics so one
// bad ack cannot take down the bus loop.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("panic in bus handler", "topic", msg.Topic(), "panic", r)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("bus handler failed", "topic", msg.Topic(), "error", err)
			}
		}
	}
}
