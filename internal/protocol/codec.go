package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/nerrad567/nhc-bridge/internal/device"
)

// EncodeListRequest returns the devices.list request payload.
func EncodeListRequest() []byte {
	// Static payload; marshalling cannot fail.
	data, _ := json.Marshal(envelope{Method: MethodDevicesList}) //nolint:errcheck // constant input
	return data
}

// EncodeControl returns a devices.control payload listing updates in order.
//
// Returns ErrEmptyCommand when updates is empty.
func EncodeControl(updates []device.Update) ([]byte, error) {
	if len(updates) == 0 {
		return nil, ErrEmptyCommand
	}

	params, err := json.Marshal(updateParams{Devices: updates})
	if err != nil {
		return nil, fmt.Errorf("encoding control params: %w", err)
	}

	data, err := json.Marshal(envelope{
		Method: MethodDevicesControl,
		Params: []json.RawMessage{params},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding control command: %w", err)
	}
	return data, nil
}

// Decode parses a payload received on topic.
//
// List responses are only recognised on the response topic and status events
// only on the event topic; anything else decodes to KindUnknown. A missing
// Params or Devices entry yields an empty list, as the controller sends for
// an installation without devices.
//
// Returns an error wrapping ErrMalformedPayload when the payload is not JSON
// of the expected shape.
func Decode(topic string, payload []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Inbound{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	in := Inbound{Method: env.Method}

	switch {
	case topic == TopicResponse && env.Method == MethodDevicesList:
		var p listParams
		if err := decodeFirstParam(env.Params, &p); err != nil {
			return Inbound{}, err
		}
		in.Kind = KindListResponse
		in.Devices = p.Devices
		if in.Devices == nil {
			in.Devices = []device.Device{}
		}

	case topic == TopicEvent && env.Method == MethodDevicesStatus:
		var p updateParams
		if err := decodeFirstParam(env.Params, &p); err != nil {
			return Inbound{}, err
		}
		in.Kind = KindStatusEvent
		in.Updates = p.Devices
	}

	return in, nil
}

func decodeFirstParam(params []json.RawMessage, v any) error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params[0], v); err != nil {
		return fmt.Errorf("%w: params: %w", ErrMalformedPayload, err)
	}
	return nil
}
