package availability

import (
	"time"

	"github.com/nerrad567/nhc-bridge/internal/device"
)

// Reason explains why a device is unavailable.
type Reason string

// Unavailability reasons, checked in this order.
const (
	ReasonControllerNotFound Reason = "controller not found"
	ReasonControllerOffline  Reason = "controller offline"
	ReasonDeviceNotFound     Reason = "device not found in the controller list"
)

// Controller is the view of one controller needed for availability checks.
// *controller.Client satisfies it.
type Controller interface {
	Available() bool
	ByTypeAndModel(t device.Type, models ...device.Model) []device.Device
}

// Source resolves controllers by ID.
type Source interface {
	Controller(id string) (Controller, bool)
}

// SourceFunc adapts a lookup function to Source.
type SourceFunc func(id string) (Controller, bool)

// Controller implements Source.
func (f SourceFunc) Controller(id string) (Controller, bool) { return f(id) }

// Target identifies a device a consumer depends on.
type Target struct {
	ControllerID string       `json:"controller_id"`
	UUID         string       `json:"uuid"`
	Type         device.Type  `json:"type"`
	Model        device.Model `json:"model"`
}

func (t Target) key() string { return t.ControllerID + "/" + t.UUID }

// Status is the outcome of one availability check.
type Status struct {
	Target
	Available bool      `json:"available"`
	Reason    Reason    `json:"reason,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Check evaluates one target. The device is looked up by its type and model,
// so a device whose classification changed counts as missing.
func Check(src Source, t Target) Status {
	st := Status{Target: t, CheckedAt: time.Now()}

	c, ok := src.Controller(t.ControllerID)
	if !ok || c == nil {
		st.Reason = ReasonControllerNotFound
		return st
	}
	if !c.Available() {
		st.Reason = ReasonControllerOffline
		return st
	}
	var models []device.Model
	if t.Model != "" {
		models = append(models, t.Model)
	}
	for _, d := range c.ByTypeAndModel(t.Type, models...) {
		if d.UUID == t.UUID {
			st.Available = true
			return st
		}
	}
	st.Reason = ReasonDeviceNotFound
	return st
}
