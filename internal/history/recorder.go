package history

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/nhc-bridge/internal/device"
	"github.com/nerrad567/nhc-bridge/internal/infrastructure/influxdb"
)

// Recorder defaults.
const (
	DefaultQueueSize     = 1024
	DefaultPruneInterval = time.Hour

	writeTimeout = 5 * time.Second
)

// Logger is the logging interface used by the recorder.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Telemetry receives numeric property samples. *influxdb.Client satisfies it.
type Telemetry interface {
	WriteDeviceSample(s influxdb.DeviceSample)
}

// numericProperties are forwarded to Telemetry when their value parses as a
// number.
var numericProperties = map[string]struct{}{
	device.PropBrightness:         {},
	device.PropPosition:           {},
	device.PropAmbientTemperature: {},
	device.PropHumidity:           {},
	device.PropElectricalPower:    {},
}

// Options configures a Recorder. Repository and Telemetry are both optional.
type Options struct {
	Repository Repository
	Telemetry  Telemetry

	// Retention prunes older rows every PruneInterval. Zero disables pruning.
	Retention     time.Duration
	PruneInterval time.Duration

	QueueSize int
	Logger    Logger
}

type deviceKey struct {
	controllerID string
	uuid         string
}

// Recorder turns full device pushes into property change history.
//
// Each pushed device is diffed against the last properties seen for it, so a
// periodic snapshot that repeats unchanged values records nothing. Rows are
// written by a background goroutine; when its queue is full the change is
// dropped and logged.
//
// Thread Safety: Observe is safe for concurrent use.
type Recorder struct {
	repo          Repository
	telemetry     Telemetry
	retention     time.Duration
	pruneInterval time.Duration
	logger        Logger

	mu     sync.Mutex
	last   map[deviceKey]device.Properties
	queue  chan []Entry
	closed bool

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	now      func() time.Time
}

// NewRecorder creates a Recorder. Call Start to begin writing.
func NewRecorder(opts Options) *Recorder {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.PruneInterval <= 0 {
		opts.PruneInterval = DefaultPruneInterval
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	return &Recorder{
		repo:          opts.Repository,
		telemetry:     opts.Telemetry,
		retention:     opts.Retention,
		pruneInterval: opts.PruneInterval,
		logger:        opts.Logger,
		last:          make(map[deviceKey]device.Properties),
		queue:         make(chan []Entry, opts.QueueSize),
		stop:          make(chan struct{}),
		now:           time.Now,
	}
}

// Start launches the writer and, when retention is set, the pruner.
func (r *Recorder) Start(ctx context.Context) {
	if r.repo == nil {
		return
	}
	r.wg.Add(1)
	go r.writeLoop()

	if r.retention > 0 {
		r.wg.Add(1)
		go r.pruneLoop(ctx)
	}
}

// Stop drains queued changes and stops background work. Observe calls after
// Stop are ignored.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.queue)
		r.mu.Unlock()
		close(r.stop)
	})
	r.wg.Wait()
}

// Observe records the properties of d that changed since it was last seen.
// Its signature matches controller.Set.OnDeviceChange.
func (r *Recorder) Observe(controllerID string, d device.Device) {
	at := r.now().UTC()
	k := deviceKey{controllerID: controllerID, uuid: d.UUID}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	changed := r.last[k].Diff(d.Properties)
	r.last[k] = d.Properties.Clone()
	if len(changed) == 0 {
		r.mu.Unlock()
		return
	}

	entries := make([]Entry, 0, len(changed))
	for _, p := range changed {
		entries = append(entries, Entry{
			ControllerID: controllerID,
			UUID:         d.UUID,
			DeviceName:   d.Name,
			Property:     p.Key,
			Value:        p.Value,
			RecordedAt:   at,
		})
	}
	if r.repo != nil {
		select {
		case r.queue <- entries:
		default:
			r.logger.Warn("history queue full, dropping changes",
				"controller", controllerID, "uuid", d.UUID, "count", len(entries))
		}
	}
	r.mu.Unlock()

	if r.telemetry != nil {
		for _, p := range changed {
			v, ok := numericValue(p.Key, p.Value)
			if !ok {
				continue
			}
			r.telemetry.WriteDeviceSample(influxdb.DeviceSample{
				ControllerID: controllerID,
				UUID:         d.UUID,
				Name:         d.Name,
				Type:         string(d.Type),
				Property:     p.Key,
				Value:        v,
				Time:         at,
			})
		}
	}
}

func (r *Recorder) writeLoop() {
	defer r.wg.Done()
	for entries := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := r.repo.Insert(ctx, entries); err != nil {
			r.logger.Error("recording property history failed",
				"uuid", entries[0].UUID, "count", len(entries), "error", err)
		}
		cancel()
	}
}

func (r *Recorder) pruneLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.pruneInterval)
	defer ticker.Stop()

	r.prune(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			r.prune(ctx)
		}
	}
}

func (r *Recorder) prune(ctx context.Context) {
	cutoff := r.now().Add(-r.retention)
	n, err := r.repo.Prune(ctx, cutoff)
	if err != nil {
		r.logger.Error("pruning property history failed", "error", err)
		return
	}
	if n > 0 {
		r.logger.Info("property history pruned", "rows", n, "cutoff", cutoff)
	}
}

// numericValue converts a property value to a telemetry sample. Status maps
// On/Off to 1/0.
func numericValue(key, value string) (float64, bool) {
	if key == device.PropStatus {
		switch value {
		case "On":
			return 1, true
		case "Off":
			return 0, true
		}
		return 0, false
	}
	if _, ok := numericProperties[key]; !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
