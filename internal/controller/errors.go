package controller

import "errors"

// Domain errors for the controller package.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned by writes while the client is not Connected.
	// Nothing is queued.
	ErrNotConnected = errors.New("controller: not connected")

	// ErrDiscarded resolves writes that were queued when the connection was
	// lost or closed before their batch was published.
	ErrDiscarded = errors.New("controller: queued update discarded")

	// ErrUnauthorized marks transport errors caused by rejected credentials.
	ErrUnauthorized = errors.New("controller: not authorized")

	// ErrInvalidCredentials is returned when a username or token is unusable.
	ErrInvalidCredentials = errors.New("controller: invalid credentials")

	// ErrInvalidOptions is returned by New for incomplete Options.
	ErrInvalidOptions = errors.New("controller: invalid options")
)
