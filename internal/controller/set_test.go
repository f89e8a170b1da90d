package controller

import (
	"errors"
	"testing"

	"github.com/nerrad567/nhc-bridge/internal/device"
	"github.com/nerrad567/nhc-bridge/internal/protocol"
)

func TestSet_AddGetList(t *testing.T) {
	s := NewSet()
	home, _, _ := newTestClient(t, Options{ID: "home"})
	office, _, _ := newTestClient(t, Options{ID: "office"})

	for _, c := range []*Client{home, office} {
		if err := s.Add(c); err != nil {
			t.Fatalf("Add(%s) error = %v", c.ID(), err)
		}
	}
	if err := s.Add(home); !errors.Is(err, ErrDuplicateController) {
		t.Errorf("Add(duplicate) error = %v, want ErrDuplicateController", err)
	}

	if got, ok := s.Get("office"); !ok || got != office {
		t.Errorf("Get(office) = %v, %v", got, ok)
	}
	if _, ok := s.Get("garage"); ok {
		t.Error("Get(garage) found a client")
	}

	list := s.List()
	if len(list) != 2 || list[0] != home || list[1] != office || s.Len() != 2 {
		t.Errorf("List() = %v, want [home office]", list)
	}
}

func TestSet_ConnectAllAndFanIn(t *testing.T) {
	s := NewSet()
	home, homeDialer, _ := newTestClient(t, Options{ID: "home"})
	office, officeDialer, _ := newTestClient(t, Options{ID: "office"})
	_ = s.Add(home)
	_ = s.Add(office)

	type change struct {
		controller string
		uuid       string
	}
	var devices []change
	var states []string
	s.OnDeviceChange(func(id string, d device.Device) { devices = append(devices, change{id, d.UUID}) })
	cancel := s.OnStateChange(func(id string, st State, _ string) { states = append(states, id+":"+st.String()) })

	if err := s.ConnectAll(); err != nil {
		t.Fatalf("ConnectAll() error = %v", err)
	}

	homeDialer.last().connect()
	homeDialer.last().deliver(protocol.TopicResponse, snapshotAB)
	officeDialer.last().connect()
	officeDialer.last().deliver(protocol.TopicEvent, statusEvent("a", "Status", "On"))

	want := []change{{"home", "a"}, {"home", "b"}}
	if len(devices) != len(want) {
		t.Fatalf("device changes = %v, want %v", devices, want)
	}
	for i := range want {
		if devices[i] != want[i] {
			t.Errorf("device change[%d] = %v, want %v", i, devices[i], want[i])
		}
	}

	cancel()
	s.DisconnectAll()
	for _, st := range states {
		if st == "home:disconnected" || st == "office:disconnected" {
			t.Errorf("state %s delivered after cancel", st)
		}
	}
	if !homeDialer.last().isClosed() || !officeDialer.last().isClosed() {
		t.Error("DisconnectAll() left a session open")
	}
}

func TestSet_ConnectAllJoinsErrors(t *testing.T) {
	s := NewSet()
	dialErr := errors.New("dial refused")
	broken, _, _ := newTestClient(t, Options{ID: "broken", Dialer: &mockDialer{err: dialErr}})
	healthy, d, _ := newTestClient(t, Options{ID: "healthy"})
	_ = s.Add(broken)
	_ = s.Add(healthy)

	err := s.ConnectAll()
	if !errors.Is(err, dialErr) {
		t.Fatalf("ConnectAll() error = %v, want dial error", err)
	}
	if d.count() != 1 {
		t.Errorf("healthy client sessions = %d, want 1", d.count())
	}
}
