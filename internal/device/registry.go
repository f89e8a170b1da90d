package device

import (
	"sync"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
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

// Registry is the in-memory device list of one controller.
//
// It is replaced wholesale by Replace when a snapshot arrives and mutated in
// place by Apply for each status update. Devices handed out are deep copies.
//
// All public methods are thread-safe.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*Device
	order   []string // snapshot order
	logger  Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		devices: make(map[string]*Device),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.logger = logger
}

// Replace clears the registry and loads devices in the given order.
//
// Devices without a UUID are skipped. A UUID listed twice keeps its first
// position and its last definition. Duplicate property keys inside one
// device are collapsed.
//
// Returns copies of the stored devices in snapshot order.
func (r *Registry) Replace(devices []Device) []Device {
	next := make(map[string]*Device, len(devices))
	order := make([]string, 0, len(devices))

	for i := range devices {
		d := devices[i].DeepCopy()
		if d.UUID == "" {
			r.logger.Warn("skipping device without uuid", "name", d.Name)
			continue
		}
		d.Properties = d.Properties.Normalize()
		if _, dup := next[d.UUID]; !dup {
			order = append(order, d.UUID)
		}
		next[d.UUID] = d
	}

	out := make([]Device, 0, len(order))
	for _, id := range order {
		out = append(out, *next[id].DeepCopy())
	}

	r.mu.Lock()
	r.devices = next
	r.order = order
	r.mu.Unlock()

	r.logger.Debug("device registry replaced", "count", len(order))
	return out
}

// Apply merges a partial update into the cached device.
//
// When the update carries as many records as the cached device and only
// keys the device already declares, it is a full-property push and the
// cached list is replaced wholesale. Otherwise records are merged key-wise:
// existing keys are overwritten and unseen keys appended.
//
// Returns a copy of the post-merge device, or false when the UUID is unknown
// (the registry is left untouched).
func (r *Registry) Apply(u Update) (Device, bool) {
	incoming := u.Properties.Normalize()

	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[u.UUID]
	if !ok {
		return Device{}, false
	}

	if len(incoming) == len(d.Properties) && d.Properties.Covers(incoming) {
		d.Properties = incoming.Clone()
	} else {
		d.Properties = d.Properties.Merge(incoming)
	}

	return *d.DeepCopy(), true
}

// Get retrieves a device by UUID.
// Returns ErrDeviceNotFound if the device does not exist.
// The returned device is a deep copy; callers can safely modify it.
func (r *Registry) Get(uuid string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[uuid]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return d.DeepCopy(), nil
}

// List returns all devices in snapshot order.
// The returned devices are deep copies; callers can safely modify them.
func (r *Registry) List() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]Device, 0, len(r.order))
	for _, id := range r.order {
		devices = append(devices, *r.devices[id].DeepCopy())
	}
	return devices
}

// ByTypeAndModel returns the devices of type t whose model is one of models.
// With no models given, every device of type t matches.
func (r *Registry) ByTypeAndModel(t Type, models ...Model) []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var devices []Device
	for _, id := range r.order {
		d := r.devices[id]
		if d.Type != t || !matchesModel(d.Model, models) {
			continue
		}
		devices = append(devices, *d.DeepCopy())
	}
	return devices
}

func matchesModel(m Model, models []Model) bool {
	if len(models) == 0 {
		return true
	}
	for _, want := range models {
		if m == want {
			return true
		}
	}
	return false
}

// Len returns the number of devices in the registry.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
