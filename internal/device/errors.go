package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a UUID is not in the registry.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrInvalidProperty is returned when a property record cannot be decoded.
	ErrInvalidProperty = errors.New("device: invalid property")

	// ErrNoProperties is returned when a write carries no property records.
	ErrNoProperties = errors.New("device: no properties")
)
