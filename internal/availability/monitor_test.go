package availability

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/nhc-bridge/internal/device"
)

// mockController is a controllable Controller for testing.
type mockController struct {
	mu        sync.Mutex
	available bool
	devices   []device.Device
}

func (c *mockController) Available() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.available
}

func (c *mockController) ByTypeAndModel(t device.Type, models ...device.Model) []device.Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []device.Device
	for _, d := range c.devices {
		if d.Type != t {
			continue
		}
		if len(models) == 0 {
			out = append(out, d)
			continue
		}
		for _, m := range models {
			if d.Model == m {
				out = append(out, d)
				break
			}
		}
	}
	return out
}

func (c *mockController) set(available bool, devices ...device.Device) {
	c.mu.Lock()
	c.available = available
	c.devices = devices
	c.mu.Unlock()
}

func sourceOf(controllers map[string]*mockController) Source {
	return SourceFunc(func(id string) (Controller, bool) {
		c, ok := controllers[id]
		if !ok {
			return nil, false
		}
		return c, true
	})
}

var (
	hall   = device.Device{UUID: "a", Type: device.TypeRelay, Model: device.ModelLight}
	target = Target{ControllerID: "home", UUID: "a", Type: device.TypeRelay, Model: device.ModelLight}
)

// =============================================================================
// Check Tests
// =============================================================================

func TestCheck(t *testing.T) {
	tests := []struct {
		name       string
		controller *mockController
		target     Target
		want       bool
		reason     Reason
	}{
		{
			name:   "controller not found",
			target: Target{ControllerID: "gone", UUID: "a", Type: device.TypeRelay, Model: device.ModelLight},
			reason: ReasonControllerNotFound,
		},
		{
			name:       "controller offline",
			controller: &mockController{available: false, devices: []device.Device{hall}},
			target:     target,
			reason:     ReasonControllerOffline,
		},
		{
			name:       "device missing",
			controller: &mockController{available: true},
			target:     target,
			reason:     ReasonDeviceNotFound,
		},
		{
			name: "device model changed",
			controller: &mockController{available: true, devices: []device.Device{
				{UUID: "a", Type: device.TypeRelay, Model: device.ModelSocket},
			}},
			target: target,
			reason: ReasonDeviceNotFound,
		},
		{
			name:       "available",
			controller: &mockController{available: true, devices: []device.Device{hall}},
			target:     target,
			want:       true,
		},
		{
			name:       "available without model",
			controller: &mockController{available: true, devices: []device.Device{hall}},
			target:     Target{ControllerID: "home", UUID: "a", Type: device.TypeRelay},
			want:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			controllers := map[string]*mockController{}
			if tt.controller != nil {
				controllers["home"] = tt.controller
			}

			st := Check(sourceOf(controllers), tt.target)
			if st.Available != tt.want {
				t.Errorf("Available = %v, want %v", st.Available, tt.want)
			}
			if st.Reason != tt.reason {
				t.Errorf("Reason = %q, want %q", st.Reason, tt.reason)
			}
			if st.CheckedAt.IsZero() {
				t.Error("CheckedAt not set")
			}
		})
	}
}

// =============================================================================
// Monitor Tests
// =============================================================================

func TestMonitor_ReportsTransitionsOnly(t *testing.T) {
	ctrl := &mockController{available: true, devices: []device.Device{hall}}
	m := NewMonitor(sourceOf(map[string]*mockController{"home": ctrl}), time.Hour)

	var got []Status
	m.OnChange(func(st Status) { got = append(got, st) })
	m.Track(target)

	m.CheckNow()
	m.CheckNow()
	if len(got) != 1 || !got[0].Available {
		t.Fatalf("after two checks got %+v, want one available status", got)
	}

	ctrl.set(false, hall)
	m.CheckNow()
	ctrl.set(true)
	m.CheckNow()
	ctrl.set(true, hall)
	m.CheckNow()

	want := []Reason{"", ReasonControllerOffline, ReasonDeviceNotFound, ""}
	if len(got) != len(want) {
		t.Fatalf("reported %d statuses, want %d: %+v", len(got), len(want), got)
	}
	for i, r := range want {
		if got[i].Reason != r || got[i].Available != (r == "") {
			t.Errorf("status[%d] = %+v, want reason %q", i, got[i], r)
		}
	}
}

func TestMonitor_UntrackAndStatus(t *testing.T) {
	ctrl := &mockController{available: true, devices: []device.Device{hall}}
	m := NewMonitor(sourceOf(map[string]*mockController{"home": ctrl}), 0)
	if m.interval != DefaultInterval {
		t.Errorf("interval = %v, want DefaultInterval", m.interval)
	}

	m.Track(target)
	m.Track(Target{ControllerID: "home", UUID: "b", Type: device.TypeDimmer})
	m.CheckNow()

	if st, ok := m.Status("home", "a"); !ok || !st.Available {
		t.Errorf("Status(a) = %+v, %v", st, ok)
	}
	if st, ok := m.Status("home", "b"); !ok || st.Reason != ReasonDeviceNotFound {
		t.Errorf("Status(b) = %+v, %v", st, ok)
	}

	all := m.Statuses()
	if len(all) != 2 || all[0].UUID != "a" || all[1].UUID != "b" {
		t.Errorf("Statuses() = %+v, want a then b", all)
	}

	m.Untrack("home", "b")
	if _, ok := m.Status("home", "b"); ok {
		t.Error("Status(b) still present after Untrack")
	}
	if changed := m.CheckNow(); len(changed) != 0 {
		t.Errorf("CheckNow() after Untrack reported %+v", changed)
	}
}

func TestMonitor_StartStop(t *testing.T) {
	ctrl := &mockController{available: true, devices: []device.Device{hall}}
	m := NewMonitor(sourceOf(map[string]*mockController{"home": ctrl}), 10*time.Millisecond)

	changes := make(chan Status, 10)
	m.OnChange(func(st Status) { changes <- st })
	m.Track(target)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	select {
	case st := <-changes:
		if !st.Available {
			t.Errorf("initial status = %+v, want available", st)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no initial status")
	}

	ctrl.set(false, hall)
	select {
	case st := <-changes:
		if st.Reason != ReasonControllerOffline {
			t.Errorf("status = %+v, want controller offline", st)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("offline transition not reported")
	}

	m.Stop()
	m.Stop()
}
