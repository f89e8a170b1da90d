package controller

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/nhc-bridge/internal/device"
	"github.com/nerrad567/nhc-bridge/internal/protocol"
)

// =============================================================================
// Mock transport
// =============================================================================

type publishedMessage struct {
	topic   string
	payload string
}

// mockSession records calls and lets tests drive the session handlers.
type mockSession struct {
	mu           sync.Mutex
	creds        Credentials
	handlers     SessionHandlers
	opened       bool
	closed       bool
	subscribed   []string
	published    []publishedMessage
	publishErr   error
	subscribeErr error
	onPublish    func(topic string)
}

func (s *mockSession) Open() {
	s.mu.Lock()
	s.opened = true
	s.mu.Unlock()
}

func (s *mockSession) Subscribe(topic string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribeErr != nil {
		return s.subscribeErr
	}
	s.subscribed = append(s.subscribed, topic)
	return nil
}

func (s *mockSession) setSubscribeErr(err error) {
	s.mu.Lock()
	s.subscribeErr = err
	s.mu.Unlock()
}

func (s *mockSession) Publish(topic string, payload []byte) error {
	s.mu.Lock()
	s.published = append(s.published, publishedMessage{topic: topic, payload: string(payload)})
	hook := s.onPublish
	err := s.publishErr
	s.mu.Unlock()

	if hook != nil {
		hook(topic)
	}
	return err
}

func (s *mockSession) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *mockSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// connect simulates the transport establishing the session.
func (s *mockSession) connect() { s.handlers.OnConnect() }

// deliver simulates an inbound message.
func (s *mockSession) deliver(topic, payload string) { s.handlers.OnMessage(topic, []byte(payload)) }

func (s *mockSession) fail(err error) { s.handlers.OnError(err) }

func (s *mockSession) lose(err error) { s.handlers.OnClose(err) }

// messages returns published payloads whose method matches.
func (s *mockSession) messages(method string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, m := range s.published {
		if m.topic == protocol.TopicCommand && strings.Contains(m.payload, `"Method":"`+method+`"`) {
			out = append(out, m.payload)
		}
	}
	return out
}

type mockDialer struct {
	mu       sync.Mutex
	sessions []*mockSession
	err      error
}

func (d *mockDialer) NewSession(creds Credentials, handlers SessionHandlers) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	s := &mockSession{creds: creds, handlers: handlers}
	d.sessions = append(d.sessions, s)
	return s, nil
}

func (d *mockDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sessions)
}

func (d *mockDialer) last() *mockSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sessions) == 0 {
		return nil
	}
	return d.sessions[len(d.sessions)-1]
}

// =============================================================================
// Recorders
// =============================================================================

type stateChange struct {
	state State
	msg   string
}

type recorder struct {
	mu      sync.Mutex
	states  []stateChange
	devices []device.Device
}

func (r *recorder) onState(s State, msg string) {
	r.mu.Lock()
	r.states = append(r.states, stateChange{s, msg})
	r.mu.Unlock()
}

func (r *recorder) onDevice(d device.Device) {
	r.mu.Lock()
	r.devices = append(r.devices, d)
	r.mu.Unlock()
}

func (r *recorder) stateList() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]State, 0, len(r.states))
	for _, s := range r.states {
		out = append(out, s.state)
	}
	return out
}

// logRecorder keeps the messages and args logged at info level and above.
type logRecorder struct {
	noopLogger
	mu    sync.Mutex
	lines []string
}

func (l *logRecorder) record(msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	line := msg
	for _, a := range args {
		line += " " + fmt.Sprint(a)
	}
	l.lines = append(l.lines, line)
}

func (l *logRecorder) Info(msg string, args ...any)  { l.record(msg, args) }
func (l *logRecorder) Warn(msg string, args ...any)  { l.record(msg, args) }
func (l *logRecorder) Error(msg string, args ...any) { l.record(msg, args) }

func (l *logRecorder) contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

// decodeCounter records the channel of every decode failure.
type decodeCounter struct {
	noopObserver
	mu       sync.Mutex
	channels []string
}

func (o *decodeCounter) DecodeFailed(_, channel string) {
	o.mu.Lock()
	o.channels = append(o.channels, channel)
	o.mu.Unlock()
}

func (r *recorder) deviceList() []device.Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]device.Device(nil), r.devices...)
}

// =============================================================================
// Fixtures
// =============================================================================

const testToken = "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9." +
	"eyJzdWIiOiJob2JieSIsImV4cCI6NDEwMjQ0NDgwMH0." +
	"c2lnbmF0dXJl"

const snapshotAB = `{"Method":"devices.list","Params":[{"Devices":[
	{"Uuid":"a","Name":"Hall","Type":"relay","Model":"light","Online":"True","Properties":[{"Status":"Off"}]},
	{"Uuid":"b","Name":"Desk","Type":"dimmer","Model":"dimmer","Online":"True","Properties":[{"Status":"On"},{"Brightness":"20"}]}
]}]}`

func statusEvent(uuid, key, value string) string {
	return `{"Method":"devices.status","Params":[{"Devices":[{"Uuid":"` + uuid +
		`","Properties":[{"` + key + `":"` + value + `"}]}]}]}`
}

// newTestClient returns a client with a recorder subscribed to it.
func newTestClient(t *testing.T, opts Options) (*Client, *mockDialer, *recorder) {
	t.Helper()
	d := &mockDialer{}
	if opts.ID == "" {
		opts.ID = "test"
	}
	if opts.Dialer == nil {
		opts.Dialer = d
	}
	if opts.BatchDelay == 0 {
		opts.BatchDelay = time.Hour // tests flush explicitly
	}
	if opts.Credentials == (Credentials{}) {
		opts.Credentials = Credentials{Username: "hobby", Token: testToken}
	}

	c, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	rec := &recorder{}
	c.OnStateChange(rec.onState)
	c.OnDeviceChange(rec.onDevice)
	t.Cleanup(c.Disconnect)
	return c, d, rec
}

// connected drives a fresh client to Connected with snapshotAB loaded.
func connected(t *testing.T, opts Options) (*Client, *mockSession, *recorder) {
	t.Helper()
	c, d, rec := newTestClient(t, opts)
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	sess := d.last()
	sess.connect()
	sess.deliver(protocol.TopicResponse, snapshotAB)
	if s, _ := c.State(); s != StateConnected {
		t.Fatalf("State() = %v, want connected", s)
	}
	return c, sess, rec
}

// forceFlush runs the pending batch window immediately.
func (b *batcher) forceFlush() {
	b.mu.Lock()
	gen := b.gen
	b.mu.Unlock()
	b.flush(gen)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
