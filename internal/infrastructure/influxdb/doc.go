// Package influxdb writes controller telemetry to InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and health checks.
//
// # Measurements
//
//   - nhc_device_property: numeric device properties (temperature, power, ...)
//   - nhc_device_availability: availability transitions
//   - nhc_controller_state: connection state changes
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteDeviceSample(influxdb.DeviceSample{
//	    ControllerID: "home", UUID: uuid, Property: "ElectricalPower", Value: 230,
//	})
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
//
// # Error Handling
//
// Writes are non-blocking; batch failures are delivered to the SetOnError
// callback wrapped in ErrWriteFailed. Connection and health check errors are
// returned directly.
package influxdb
