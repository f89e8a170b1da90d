package mqtt

import "errors"

// Domain-specific errors for MQTT operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when publishing or subscribing without a live connection.
	ErrNotConnected = errors.New("mqtt: session not connected")

	// ErrClosed is returned by operations on a session after Close.
	ErrClosed = errors.New("mqtt: session closed")

	// ErrConnectionFailed wraps each failed connection attempt reported to OnError.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed is returned when a publish operation fails.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed is returned when a subscribe operation fails.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrInvalidTopic is returned when an empty topic is provided.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")

	// ErrInvalidOptions is returned by NewDialer callers when Options are incomplete.
	ErrInvalidOptions = errors.New("mqtt: invalid options")
)
