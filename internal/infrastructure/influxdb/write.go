package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the bridge.
const (
	MeasurementDeviceProperty     = "nhc_device_property"
	MeasurementDeviceAvailability = "nhc_device_availability"
	MeasurementControllerState    = "nhc_controller_state"
)

// DeviceSample is one numeric property reading of a device.
type DeviceSample struct {
	ControllerID string
	UUID         string
	Name         string
	Type         string
	Property     string
	Value        float64
	Time         time.Time
}

// WriteDeviceSample records a numeric device property. Non-blocking.
//
// Example:
//
//	client.WriteDeviceSample(influxdb.DeviceSample{
//	    ControllerID: "home", UUID: uuid, Property: "AmbientTemperature", Value: 21.5,
//	})
func (c *Client) WriteDeviceSample(s DeviceSample) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(devicePoint(s))
}

// WriteAvailability records a device availability transition.
func (c *Client) WriteAvailability(controllerID, uuid string, available bool, reason string, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(availabilityPoint(controllerID, uuid, available, reason, at))
}

// WriteControllerState records a controller connection state change.
func (c *Client) WriteControllerState(controllerID, state string, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(controllerStatePoint(controllerID, state, at))
}

func devicePoint(s DeviceSample) *write.Point {
	tags := map[string]string{
		"controller": s.ControllerID,
		"device":     s.UUID,
		"property":   s.Property,
	}
	if s.Name != "" {
		tags["name"] = s.Name
	}
	if s.Type != "" {
		tags["type"] = s.Type
	}
	return write.NewPoint(MeasurementDeviceProperty, tags,
		map[string]interface{}{"value": s.Value}, timestamp(s.Time))
}

func availabilityPoint(controllerID, uuid string, available bool, reason string, at time.Time) *write.Point {
	fields := map[string]interface{}{"available": available}
	if reason != "" {
		fields["reason"] = reason
	}
	return write.NewPoint(MeasurementDeviceAvailability,
		map[string]string{"controller": controllerID, "device": uuid},
		fields, timestamp(at))
}

func controllerStatePoint(controllerID, state string, at time.Time) *write.Point {
	return write.NewPoint(MeasurementControllerState,
		map[string]string{"controller": controllerID},
		map[string]interface{}{"state": state}, timestamp(at))
}

func timestamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
