package protocol

import "errors"

// Errors returned by the codec.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrMalformedPayload is returned when a payload is not a valid message.
	ErrMalformedPayload = errors.New("protocol: malformed payload")

	// ErrEmptyCommand is returned when encoding a control command with no devices.
	ErrEmptyCommand = errors.New("protocol: control command has no devices")
)
