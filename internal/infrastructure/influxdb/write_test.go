package influxdb

import (
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/nhc-bridge/internal/infrastructure/config"
)

func tagsOf(p *write.Point) map[string]string {
	out := make(map[string]string)
	for _, t := range p.TagList() {
		out[t.Key] = t.Value
	}
	return out
}

func fieldsOf(p *write.Point) map[string]interface{} {
	out := make(map[string]interface{})
	for _, f := range p.FieldList() {
		out[f.Key] = f.Value
	}
	return out
}

// =============================================================================
// Point Construction Tests
// =============================================================================

func TestDevicePoint(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		sample   DeviceSample
		wantTags map[string]string
	}{
		{
			name: "all tags",
			sample: DeviceSample{
				ControllerID: "home", UUID: "abc", Name: "Kitchen", Type: "light",
				Property: "Brightness", Value: 40, Time: at,
			},
			wantTags: map[string]string{
				"controller": "home", "device": "abc", "property": "Brightness",
				"name": "Kitchen", "type": "light",
			},
		},
		{
			name: "empty name and type omitted",
			sample: DeviceSample{
				ControllerID: "home", UUID: "abc", Property: "ElectricalPower", Value: 230.5, Time: at,
			},
			wantTags: map[string]string{
				"controller": "home", "device": "abc", "property": "ElectricalPower",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := devicePoint(tt.sample)
			if p.Name() != MeasurementDeviceProperty {
				t.Errorf("Name() = %q, want %q", p.Name(), MeasurementDeviceProperty)
			}
			tags := tagsOf(p)
			if len(tags) != len(tt.wantTags) {
				t.Errorf("tags = %v, want %v", tags, tt.wantTags)
			}
			for k, v := range tt.wantTags {
				if tags[k] != v {
					t.Errorf("tag %s = %q, want %q", k, tags[k], v)
				}
			}
			if got := fieldsOf(p)["value"]; got != tt.sample.Value {
				t.Errorf("value = %v, want %v", got, tt.sample.Value)
			}
			if !p.Time().Equal(at) {
				t.Errorf("Time() = %v, want %v", p.Time(), at)
			}
		})
	}
}

func TestAvailabilityPoint(t *testing.T) {
	p := availabilityPoint("home", "abc", false, "controller offline", time.Time{})

	if p.Name() != MeasurementDeviceAvailability {
		t.Errorf("Name() = %q", p.Name())
	}
	fields := fieldsOf(p)
	if fields["available"] != false {
		t.Errorf("available = %v, want false", fields["available"])
	}
	if fields["reason"] != "controller offline" {
		t.Errorf("reason = %v", fields["reason"])
	}
	if p.Time().IsZero() {
		t.Error("zero timestamp should default to now")
	}

	p = availabilityPoint("home", "abc", true, "", time.Now())
	if _, ok := fieldsOf(p)["reason"]; ok {
		t.Error("empty reason should not be written")
	}
}

func TestControllerStatePoint(t *testing.T) {
	p := controllerStatePoint("home", "connected", time.Now())
	if p.Name() != MeasurementControllerState {
		t.Errorf("Name() = %q", p.Name())
	}
	if tagsOf(p)["controller"] != "home" {
		t.Errorf("tags = %v", tagsOf(p))
	}
	if fieldsOf(p)["state"] != "connected" {
		t.Errorf("fields = %v", fieldsOf(p))
	}
}

// =============================================================================
// Configuration Tests
// =============================================================================

func TestBatchSettings(t *testing.T) {
	tests := []struct {
		name          string
		batchSize     int
		flushInterval int
		wantSize      int
		wantInterval  int
	}{
		{"configured", 500, 2, 500, 2},
		{"zero uses defaults", 0, 0, defaultBatchSize, defaultFlushInterval},
		{"negative uses defaults", -5, -1, defaultBatchSize, defaultFlushInterval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size, interval := batchSettings(config.InfluxDBConfig{
				BatchSize: tt.batchSize, FlushInterval: tt.flushInterval,
			})
			if size != tt.wantSize || interval != tt.wantInterval {
				t.Errorf("batchSettings() = (%d, %d), want (%d, %d)", size, interval, tt.wantSize, tt.wantInterval)
			}
		})
	}
}

func TestNilClient(t *testing.T) {
	var c *Client
	if c.IsConnected() {
		t.Error("nil client reports connected")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
	c.WriteDeviceSample(DeviceSample{ControllerID: "home"})
	c.WriteAvailability("home", "abc", true, "", time.Now())
	c.WriteControllerState("home", "connected", time.Now())
	c.Flush()
}
