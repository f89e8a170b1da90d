package controller

import (
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/nhc-bridge/internal/device"
	"github.com/nerrad567/nhc-bridge/internal/protocol"
)

// pendingUpdate is one caller's queued write.
type pendingUpdate struct {
	uuid       string
	properties device.Properties
	done       chan error // buffered, receives exactly one result
}

// batcher coalesces property writes into one devices.control command per
// window.
//
// It is open only while the client is Connected. The first enqueue of a
// window arms a timer; when it fires the whole queue is drained and
// published as a single command, and the timer is re-armed if writes
// arrived during the publish. Closing cancels the timer and resolves every
// queued write with ErrDiscarded.
type batcher struct {
	id       string
	delay    time.Duration
	logger   Logger
	observer Observer

	mu      sync.Mutex
	session Session // nil while closed
	gen     uint64  // bumped by open and close; stale timers compare against it
	queue   []*pendingUpdate
	timer   *time.Timer
}

func newBatcher(id string, delay time.Duration, logger Logger, observer Observer) *batcher {
	return &batcher{
		id:       id,
		delay:    delay,
		logger:   logger,
		observer: observer,
	}
}

// open starts accepting writes for sess.
func (b *batcher) open(sess Session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gen++
	b.session = sess
}

// close stops accepting writes and discards the queue without publishing.
func (b *batcher) close() {
	b.mu.Lock()
	b.gen++
	b.session = nil
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	pending := b.queue
	b.queue = nil
	b.mu.Unlock()

	if len(pending) > 0 {
		b.logger.Debug("discarding queued updates", "count", len(pending))
	}
	for _, p := range pending {
		p.done <- ErrDiscarded
	}
}

// enqueue adds a write to the current window.
//
// Returns a channel receiving the publish result, or ErrNotConnected when
// the batcher is closed.
func (b *batcher) enqueue(uuid string, props device.Properties) (<-chan error, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return nil, ErrNotConnected
	}

	p := &pendingUpdate{
		uuid:       uuid,
		properties: props.Clone(),
		done:       make(chan error, 1),
	}
	b.queue = append(b.queue, p)

	if b.timer == nil {
		b.arm(b.gen)
	}
	return p.done, nil
}

// arm schedules a flush for gen. Caller holds b.mu.
func (b *batcher) arm(gen uint64) {
	b.timer = time.AfterFunc(b.delay, func() { b.flush(gen) })
}

// flush publishes everything queued for gen.
func (b *batcher) flush(gen uint64) {
	b.mu.Lock()
	if gen != b.gen || b.session == nil {
		b.mu.Unlock()
		return
	}
	pending := b.queue
	b.queue = nil
	sess := b.session
	b.mu.Unlock()

	if len(pending) > 0 {
		err := b.publish(sess, pending)
		for _, p := range pending {
			p.done <- err
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if gen != b.gen {
		return
	}
	b.timer = nil
	if len(b.queue) > 0 {
		b.arm(gen)
	}
}

func (b *batcher) publish(sess Session, pending []*pendingUpdate) error {
	updates := coalesce(pending)

	payload, err := protocol.EncodeControl(updates)
	if err != nil {
		b.logger.Error("encoding control command failed", "error", err)
		b.observer.BatchPublished(b.id, len(updates), err)
		return err
	}

	if err := sess.Publish(protocol.TopicCommand, payload); err != nil {
		b.logger.Warn("publishing control command failed",
			"devices", len(updates),
			"writes", len(pending),
			"error", err,
		)
		b.observer.BatchPublished(b.id, len(updates), err)
		return fmt.Errorf("publishing control command: %w", err)
	}

	b.logger.Debug("control command published", "devices", len(updates), "writes", len(pending))
	b.observer.BatchPublished(b.id, len(updates), nil)
	return nil
}

// coalesce groups writes by device in first-enqueue order. Later values for
// the same key replace earlier ones.
func coalesce(pending []*pendingUpdate) []device.Update {
	index := make(map[string]int, len(pending))
	var updates []device.Update
	for _, p := range pending {
		if i, ok := index[p.uuid]; ok {
			updates[i].Properties = updates[i].Properties.Merge(p.properties)
			continue
		}
		index[p.uuid] = len(updates)
		updates = append(updates, device.Update{UUID: p.uuid, Properties: p.properties.Normalize()})
	}
	return updates
}

// pending returns the number of queued writes.
func (b *batcher) pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}
