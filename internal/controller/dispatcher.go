package controller

import (
	"sync"

	"github.com/nerrad567/nhc-bridge/internal/device"
)

type eventKind int

const (
	eventDevice eventKind = iota
	eventState
)

type event struct {
	kind    eventKind
	device  device.Device
	state   State
	message string
}

type deviceSub struct {
	id uint64
	fn func(device.Device)
}

type stateSub struct {
	id uint64
	fn func(State, string)
}

// dispatcher fans registry and state changes out to subscribers.
//
// Events are queued while the client holds its lock and delivered by flush
// after the lock is released. Only one goroutine drains at a time, so
// subscribers observe events in the order they were queued and may call
// back into the client.
type dispatcher struct {
	logger Logger

	mu       sync.Mutex
	queue    []event
	draining bool
	nextID   uint64
	all      []deviceSub
	byUUID   map[string][]deviceSub
	states   []stateSub
}

func newDispatcher(logger Logger) *dispatcher {
	return &dispatcher{
		logger: logger,
		byUUID: make(map[string][]deviceSub),
	}
}

func (d *dispatcher) enqueueDevice(dev device.Device) {
	d.mu.Lock()
	d.queue = append(d.queue, event{kind: eventDevice, device: dev})
	d.mu.Unlock()
}

func (d *dispatcher) enqueueState(s State, msg string) {
	d.mu.Lock()
	d.queue = append(d.queue, event{kind: eventState, state: s, message: msg})
	d.mu.Unlock()
}

// flush delivers queued events. It returns immediately if another goroutine
// is already draining; that goroutine will deliver the new events too.
func (d *dispatcher) flush() {
	d.mu.Lock()
	if d.draining {
		d.mu.Unlock()
		return
	}
	d.draining = true

	for len(d.queue) > 0 {
		ev := d.queue[0]
		d.queue = d.queue[1:]

		var devSubs []deviceSub
		var stSubs []stateSub
		switch ev.kind {
		case eventDevice:
			devSubs = append(devSubs, d.all...)
			devSubs = append(devSubs, d.byUUID[ev.device.UUID]...)
		case eventState:
			stSubs = append(stSubs, d.states...)
		}
		d.mu.Unlock()

		for _, s := range devSubs {
			d.deliverDevice(s.fn, ev.device)
		}
		for _, s := range stSubs {
			d.deliverState(s.fn, ev.state, ev.message)
		}

		d.mu.Lock()
	}

	d.queue = nil
	d.draining = false
	d.mu.Unlock()
}

func (d *dispatcher) deliverDevice(fn func(device.Device), dev device.Device) {
	defer d.recoverSubscriber("device", dev.UUID)
	fn(*dev.DeepCopy())
}

func (d *dispatcher) deliverState(fn func(State, string), s State, msg string) {
	defer d.recoverSubscriber("state", s.String())
	fn(s, msg)
}

func (d *dispatcher) recoverSubscriber(kind, key string) {
	if r := recover(); r != nil {
		d.logger.Error("subscriber panic recovered", "event", kind, "key", key, "panic", r)
	}
}

// onDevice registers fn for every device event, or only for uuid when set.
func (d *dispatcher) onDevice(uuid string, fn func(device.Device)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	sub := deviceSub{id: d.nextID, fn: fn}
	if uuid == "" {
		d.all = append(d.all, sub)
	} else {
		d.byUUID[uuid] = append(d.byUUID[uuid], sub)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			if uuid == "" {
				d.all = removeDeviceSub(d.all, sub.id)
				return
			}
			if subs := removeDeviceSub(d.byUUID[uuid], sub.id); len(subs) > 0 {
				d.byUUID[uuid] = subs
			} else {
				delete(d.byUUID, uuid)
			}
		})
	}
}

func (d *dispatcher) onState(fn func(State, string)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	id := d.nextID
	d.states = append(d.states, stateSub{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			out := d.states[:0:0]
			for _, s := range d.states {
				if s.id != id {
					out = append(out, s)
				}
			}
			d.states = out
		})
	}
}

func removeDeviceSub(subs []deviceSub, id uint64) []deviceSub {
	out := subs[:0:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}

// subscriberCount returns the number of registered subscriptions.
func (d *dispatcher) subscriberCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.all) + len(d.states)
	for _, subs := range d.byUUID {
		n += len(subs)
	}
	return n
}
