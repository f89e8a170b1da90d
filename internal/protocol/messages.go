package protocol

import (
	"encoding/json"

	"github.com/nerrad567/nhc-bridge/internal/device"
)

// Method names used on the wire.
const (
	MethodDevicesList    = "devices.list"
	MethodDevicesControl = "devices.control"
	MethodDevicesStatus  = "devices.status"
)

// envelope is the outer shape shared by every message.
type envelope struct {
	Method string            `json:"Method"`
	Params []json.RawMessage `json:"Params,omitempty"`
}

// listParams is the first Params entry of a devices.list response.
type listParams struct {
	Devices []device.Device `json:"Devices"`
}

// updateParams is the first Params entry of devices.status and
// devices.control messages.
type updateParams struct {
	Devices []device.Update `json:"Devices"`
}

// Kind classifies a decoded inbound message.
type Kind int

// Inbound message kinds.
const (
	KindUnknown Kind = iota
	KindListResponse
	KindStatusEvent
)

// String returns the kind name used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindListResponse:
		return "list_response"
	case KindStatusEvent:
		return "status_event"
	default:
		return "unknown"
	}
}

// Inbound is a decoded message from the controller.
type Inbound struct {
	Kind   Kind
	Method string

	// Devices is set for KindListResponse.
	Devices []device.Device

	// Updates is set for KindStatusEvent.
	Updates []device.Update
}
