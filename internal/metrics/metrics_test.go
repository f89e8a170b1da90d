package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nerrad567/nhc-bridge/internal/availability"
	"github.com/nerrad567/nhc-bridge/internal/controller"
)

func TestCollector_Observer(t *testing.T) {
	c := NewCollector()

	c.MessageReceived("home", "status_event")
	c.MessageReceived("home", "status_event")
	c.MessageReceived("home", "list_response")
	c.DecodeFailed("home", "evt")
	c.UnknownDevice("home")
	c.SnapshotApplied("home", 12)
	c.BatchPublished("home", 3, nil)
	c.BatchPublished("home", 2, errors.New("timeout"))

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"status events", testutil.ToFloat64(c.messages.WithLabelValues("home", "status_event")), 2},
		{"list responses", testutil.ToFloat64(c.messages.WithLabelValues("home", "list_response")), 1},
		{"decode failures", testutil.ToFloat64(c.decodeFailures.WithLabelValues("home", "evt")), 1},
		{"unknown devices", testutil.ToFloat64(c.unknownDevices.WithLabelValues("home")), 1},
		{"snapshots", testutil.ToFloat64(c.snapshots.WithLabelValues("home")), 1},
		{"devices", testutil.ToFloat64(c.devices.WithLabelValues("home")), 12},
		{"batches ok", testutil.ToFloat64(c.batches.WithLabelValues("home", "ok")), 1},
		{"batches error", testutil.ToFloat64(c.batches.WithLabelValues("home", "error")), 1},
		{"updates", testutil.ToFloat64(c.updates.WithLabelValues("home")), 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestCollector_ObserveState(t *testing.T) {
	c := NewCollector()
	c.ObserveState("home", controller.StateConnecting)
	c.ObserveState("home", controller.StateConnected)

	for _, s := range controller.States() {
		want := 0.0
		if s == controller.StateConnected {
			want = 1
		}
		if got := testutil.ToFloat64(c.state.WithLabelValues("home", s.String())); got != want {
			t.Errorf("state{%s} = %v, want %v", s, got, want)
		}
	}
}

func TestCollector_ObserveAvailability(t *testing.T) {
	c := NewCollector()
	st := availability.Status{Target: availability.Target{ControllerID: "home", UUID: "a"}, Available: true}
	c.ObserveAvailability(st)
	if got := testutil.ToFloat64(c.deviceAvailable.WithLabelValues("home", "a")); got != 1 {
		t.Errorf("device_available = %v, want 1", got)
	}

	st.Available = false
	st.Reason = availability.ReasonControllerOffline
	c.ObserveAvailability(st)
	if got := testutil.ToFloat64(c.deviceAvailable.WithLabelValues("home", "a")); got != 0 {
		t.Errorf("device_available = %v, want 0", got)
	}
}

func TestHandler(t *testing.T) {
	c := NewCollector()
	c.SnapshotApplied("home", 4)
	reg := NewRegistry(c)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`nhcbridge_controller_devices{controller="home"} 4`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
