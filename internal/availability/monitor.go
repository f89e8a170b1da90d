package availability

import (
	"context"
	"sort"
	"sync"
	"time"
)

// DefaultInterval is the re-check period.
const DefaultInterval = 10 * time.Second

// Logger defines the logging interface used by the Monitor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}

// Monitor periodically re-checks tracked devices and reports transitions.
//
// A target's first check always reports. After that only changes of
// availability or reason are reported.
type Monitor struct {
	source   Source
	interval time.Duration

	mu       sync.Mutex
	targets  map[string]Target
	last     map[string]Status
	handlers []func(Status)
	logger   Logger

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewMonitor creates a monitor over src. interval <= 0 uses DefaultInterval.
func NewMonitor(src Source, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		source:   src,
		interval: interval,
		targets:  make(map[string]Target),
		last:     make(map[string]Status),
		logger:   noopLogger{},
		done:     make(chan struct{}),
	}
}

// SetLogger sets the logger for this monitor.
func (m *Monitor) SetLogger(logger Logger) {
	m.mu.Lock()
	m.logger = logger
	m.mu.Unlock()
}

// OnChange registers fn for availability transitions. Call before Start.
func (m *Monitor) OnChange(fn func(Status)) {
	m.mu.Lock()
	m.handlers = append(m.handlers, fn)
	m.mu.Unlock()
}

// Track adds or updates a target. Tracking the same device again keeps its
// last reported status.
func (m *Monitor) Track(t Target) {
	m.mu.Lock()
	m.targets[t.key()] = t
	m.mu.Unlock()
}

// Untrack stops checking a target.
func (m *Monitor) Untrack(controllerID, uuid string) {
	k := Target{ControllerID: controllerID, UUID: uuid}.key()
	m.mu.Lock()
	delete(m.targets, k)
	delete(m.last, k)
	m.mu.Unlock()
}

// Start begins periodic checking. Call Stop to shut down.
//
// Parameters:
//   - ctx: Context for cancellation (checking stops when cancelled)
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go m.loop(ctx)
}

// Stop halts checking and waits for the loop to exit.
// Safe to call multiple times.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
		m.wg.Wait()
	})
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.CheckNow()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case <-ticker.C:
			m.CheckNow()
		}
	}
}

// CheckNow checks every target once and reports transitions. It returns the
// statuses that changed.
func (m *Monitor) CheckNow() []Status {
	m.mu.Lock()
	targets := make([]Target, 0, len(m.targets))
	for _, t := range m.targets {
		targets = append(targets, t)
	}
	m.mu.Unlock()

	var changed []Status
	for _, t := range targets {
		st := Check(m.source, t)

		m.mu.Lock()
		if _, tracked := m.targets[t.key()]; !tracked {
			m.mu.Unlock()
			continue
		}
		prev, seen := m.last[t.key()]
		m.last[t.key()] = st
		m.mu.Unlock()

		if seen && prev.Available == st.Available && prev.Reason == st.Reason {
			continue
		}
		changed = append(changed, st)
	}

	sortStatuses(changed)

	m.mu.Lock()
	handlers := append(([]func(Status))(nil), m.handlers...)
	logger := m.logger
	m.mu.Unlock()

	for _, st := range changed {
		if st.Available {
			logger.Info("device available", "controller", st.ControllerID, "uuid", st.UUID)
		} else {
			logger.Info("device unavailable", "controller", st.ControllerID, "uuid", st.UUID, "reason", string(st.Reason))
		}
		for _, fn := range handlers {
			fn(st)
		}
	}
	return changed
}

// Statuses returns the last status of every checked target.
func (m *Monitor) Statuses() []Status {
	m.mu.Lock()
	out := make([]Status, 0, len(m.last))
	for _, st := range m.last {
		out = append(out, st)
	}
	m.mu.Unlock()
	sortStatuses(out)
	return out
}

// Status returns the last status of one target.
func (m *Monitor) Status(controllerID, uuid string) (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.last[Target{ControllerID: controllerID, UUID: uuid}.key()]
	return st, ok
}

func sortStatuses(s []Status) {
	sort.Slice(s, func(i, j int) bool { return s[i].key() < s[j].key() })
}
