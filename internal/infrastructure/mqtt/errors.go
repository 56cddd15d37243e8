package mqtt

import "errors"

// Sentinel errors for bus operations, matched with errors.Is. The bridge
// port maps ErrNotConnected onto a device failure so a broker outage
// never aborts engine state.
var (
	ErrNotConnected      = errors.New("mqtt: client not connected")
	ErrConnectionFailed  = errors.New("mqtt: connection failed")
	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS rejects QoS levels outside 0-2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic rejects empty topics before they reach the broker.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")
)
