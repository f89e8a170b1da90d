package controller

// Logger defines the logging interface used by the Client.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Observer receives counters for events that are absorbed internally and
// never surfaced through subscriptions.
type Observer interface {
	MessageReceived(controllerID, kind string)
	DecodeFailed(controllerID, channel string)
	UnknownDevice(controllerID string)
	SnapshotApplied(controllerID string, devices int)
	BatchPublished(controllerID string, updates int, err error)
}

type noopObserver struct{}

func (noopObserver) MessageReceived(string, string)    {}
func (noopObserver) DecodeFailed(string, string)       {}
func (noopObserver) UnknownDevice(string)              {}
func (noopObserver) SnapshotApplied(string, int)       {}
func (noopObserver) BatchPublished(string, int, error) {}
