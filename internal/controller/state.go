package controller

// State is the connection state of a Client.
type State int

// Connection states. A Client starts Uninitialized.
const (
	StateUninitialized State = iota
	StateDisconnected
	StateConnecting
	StateConnected
	StateDisconnecting
	StateError
)

var stateNames = [...]string{
	StateUninitialized: "uninitialized",
	StateDisconnected:  "disconnected",
	StateConnecting:    "connecting",
	StateConnected:     "connected",
	StateDisconnecting: "disconnecting",
	StateError:         "error",
}

// String returns the lower-case state name.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalText encodes the state by name for JSON APIs.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// States lists every state, in declaration order.
func States() []State {
	return []State{
		StateUninitialized, StateDisconnected, StateConnecting,
		StateConnected, StateDisconnecting, StateError,
	}
}
