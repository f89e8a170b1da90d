// Package metrics exposes controller, registry and availability metrics to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/nhc-bridge/internal/availability"
	"github.com/nerrad567/nhc-bridge/internal/controller"
)

const namespace = "nhcbridge"

// Collector holds the bridge's Prometheus metrics. It implements
// controller.Observer and prometheus.Collector.
type Collector struct {
	state           *prometheus.GaugeVec
	devices         *prometheus.GaugeVec
	messages        *prometheus.CounterVec
	decodeFailures  *prometheus.CounterVec
	unknownDevices  *prometheus.CounterVec
	snapshots       *prometheus.CounterVec
	batches         *prometheus.CounterVec
	updates         *prometheus.CounterVec
	deviceAvailable *prometheus.GaugeVec
}

var _ controller.Observer = (*Collector)(nil)

// NewCollector creates the bridge metrics.
func NewCollector() *Collector {
	return &Collector{
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "controller_state",
			Help:      "Connection state of each controller (1 for the current state)",
		}, []string{"controller", "state"}),
		devices: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "controller_devices",
			Help:      "Devices in the registry after the last snapshot",
		}, []string{"controller"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Inbound messages by decoded kind",
		}, []string{"controller", "kind"}),
		decodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_failures_total",
			Help:      "Inbound payloads that could not be decoded, by topic channel",
		}, []string{"controller", "channel"}),
		unknownDevices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unknown_device_updates_total",
			Help:      "Status updates for UUIDs absent from the registry",
		}, []string{"controller"}),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_applied_total",
			Help:      "devices.list snapshots applied to the registry",
		}, []string{"controller"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "control_batches_total",
			Help:      "devices.control commands by publish result",
		}, []string{"controller", "result"}),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "control_device_updates_total",
			Help:      "Per-device updates carried by published control commands",
		}, []string{"controller"}),
		deviceAvailable: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_available",
			Help:      "Device availability (1=available, 0=unavailable)",
		}, []string{"controller", "uuid"}),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.state.Describe(ch)
	c.devices.Describe(ch)
	c.messages.Describe(ch)
	c.decodeFailures.Describe(ch)
	c.unknownDevices.Describe(ch)
	c.snapshots.Describe(ch)
	c.batches.Describe(ch)
	c.updates.Describe(ch)
	c.deviceAvailable.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.state.Collect(ch)
	c.devices.Collect(ch)
	c.messages.Collect(ch)
	c.decodeFailures.Collect(ch)
	c.unknownDevices.Collect(ch)
	c.snapshots.Collect(ch)
	c.batches.Collect(ch)
	c.updates.Collect(ch)
	c.deviceAvailable.Collect(ch)
}

// MessageReceived implements controller.Observer.
func (c *Collector) MessageReceived(controllerID, kind string) {
	c.messages.WithLabelValues(controllerID, kind).Inc()
}

// DecodeFailed implements controller.Observer.
func (c *Collector) DecodeFailed(controllerID, channel string) {
	c.decodeFailures.WithLabelValues(controllerID, channel).Inc()
}

// UnknownDevice implements controller.Observer.
func (c *Collector) UnknownDevice(controllerID string) {
	c.unknownDevices.WithLabelValues(controllerID).Inc()
}

// SnapshotApplied implements controller.Observer.
func (c *Collector) SnapshotApplied(controllerID string, devices int) {
	c.snapshots.WithLabelValues(controllerID).Inc()
	c.devices.WithLabelValues(controllerID).Set(float64(devices))
}

// BatchPublished implements controller.Observer.
func (c *Collector) BatchPublished(controllerID string, updates int, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.batches.WithLabelValues(controllerID, result).Inc()
	if err == nil {
		c.updates.WithLabelValues(controllerID).Add(float64(updates))
	}
}

// ObserveState records a controller's current connection state.
func (c *Collector) ObserveState(controllerID string, current controller.State) {
	for _, s := range controller.States() {
		v := 0.0
		if s == current {
			v = 1
		}
		c.state.WithLabelValues(controllerID, s.String()).Set(v)
	}
}

// ObserveAvailability records a device availability transition.
func (c *Collector) ObserveAvailability(st availability.Status) {
	v := 0.0
	if st.Available {
		v = 1
	}
	c.deviceAvailable.WithLabelValues(st.ControllerID, st.UUID).Set(v)
}

// NewRegistry returns a registry with the Go runtime, process and given
// collectors registered.
func NewRegistry(cs ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	reg.MustRegister(cs...)
	return reg
}

// Handler exposes reg in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
