package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/nhc-bridge/internal/device"
	"github.com/nerrad567/nhc-bridge/internal/protocol"
)

// Defaults applied by New for zero Options fields.
const (
	DefaultRefreshInterval = 15 * time.Minute
	DefaultBatchDelay      = 50 * time.Millisecond
)

// subscribeRetryInterval bounds how long a session runs without its
// subscriptions before the client tries again.
const subscribeRetryInterval = 10 * time.Second

// authFailedMessage is the state message shown after the controller rejects
// the credentials.
const authFailedMessage = "authorization failed: check the controller username and token"

// Options configures a Client.
type Options struct {
	// ID identifies the controller in logs, metrics and API paths.
	ID string

	Credentials Credentials
	Dialer      Dialer

	// RefreshInterval is how often a new snapshot is requested while connected.
	RefreshInterval time.Duration

	// BatchDelay is the write coalescing window.
	BatchDelay time.Duration

	Logger   Logger
	Observer Observer
}

// Client keeps one controller's device registry in sync over a transport
// session and batches writes back to it.
//
// State machine:
//
//	Connect                  any state except Connecting/Connected → Connecting
//	first snapshot           Connecting, Disconnected, Error        → Connected
//	transport error          any active state                       → Error
//	transport close          any state except Error                 → Disconnected
//	Disconnect               any active state → Disconnecting       → Disconnected
//
// An authorization error also closes the session and is terminal until
// Connect is called again. Other errors leave the transport retrying.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Subscribers are called without internal locks held, in event order.
type Client struct {
	id              string
	dialer          Dialer
	refreshInterval time.Duration
	logger          Logger
	observer        Observer

	registry *device.Registry
	batcher  *batcher
	dispatch *dispatcher

	mu          sync.Mutex
	creds       Credentials
	state       State
	stateMsg    string
	session     Session
	gen         uint64 // identifies the current session; bumped when it is replaced
	subscribed  bool   // the current session holds the evt/rsp subscriptions
	refreshStop chan struct{}
}

// New creates a Client in the Uninitialized state. It does not connect.
func New(opts Options) (*Client, error) {
	if opts.ID == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidOptions)
	}
	if opts.Dialer == nil {
		return nil, fmt.Errorf("%w: dialer is required", ErrInvalidOptions)
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	if opts.BatchDelay <= 0 {
		opts.BatchDelay = DefaultBatchDelay
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}

	registry := device.NewRegistry()
	registry.SetLogger(opts.Logger)

	return &Client{
		id:              opts.ID,
		dialer:          opts.Dialer,
		refreshInterval: opts.RefreshInterval,
		logger:          opts.Logger,
		observer:        opts.Observer,
		registry:        registry,
		batcher:         newBatcher(opts.ID, opts.BatchDelay, opts.Logger, opts.Observer),
		dispatch:        newDispatcher(opts.Logger),
		creds:           opts.Credentials,
		state:           StateUninitialized,
	}, nil
}

// ID returns the controller identifier.
func (c *Client) ID() string {
	return c.id
}

// State returns the current state and its message (empty unless Error).
func (c *Client) State() (State, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.stateMsg
}

// Available reports whether the client is Connected.
func (c *Client) Available() bool {
	s, _ := c.State()
	return s == StateConnected
}

// HealthCheck returns nil while Connected.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("controller health check: %w", ctx.Err())
	default:
	}

	if s, msg := c.State(); s != StateConnected {
		if msg != "" {
			return fmt.Errorf("%w: %s (%s)", ErrNotConnected, s, msg)
		}
		return fmt.Errorf("%w: %s", ErrNotConnected, s)
	}
	return nil
}

// SetCredentials replaces the credentials used by the next Connect.
// The current session, if any, is left untouched.
func (c *Client) SetCredentials(creds Credentials) error {
	if err := creds.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.creds = creds
	c.mu.Unlock()
	return nil
}

// Connect opens a transport session. It is a no-op while Connecting or
// Connected. The session connects and reconnects in the background; progress
// is reported through state changes.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}

	old := c.session
	c.session = nil
	c.gen++
	c.subscribed = false
	gen := c.gen
	creds := c.creds
	c.stopRefreshLocked()
	c.setStateLocked(StateConnecting, "")
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}

	sess, err := c.dialer.NewSession(creds, c.handlers(gen))

	c.mu.Lock()
	if gen != c.gen {
		// Disconnect or another Connect won the race.
		c.mu.Unlock()
		if sess != nil {
			sess.Close()
		}
		c.dispatch.flush()
		return nil
	}
	if err != nil {
		c.setStateLocked(StateError, err.Error())
		c.mu.Unlock()
		c.dispatch.flush()
		return fmt.Errorf("creating session: %w", err)
	}
	c.session = sess
	c.mu.Unlock()
	c.dispatch.flush()

	c.logger.Info("connecting to controller", "username", creds.Username)
	sess.Open()
	return nil
}

// Disconnect closes the session, cancels timers and discards queued writes.
// The registry keeps its last contents. Calling it again is a no-op.
func (c *Client) Disconnect() {
	c.mu.Lock()
	switch c.state {
	case StateUninitialized, StateDisconnected, StateDisconnecting:
		c.mu.Unlock()
		return
	}

	c.setStateLocked(StateDisconnecting, "")
	sess := c.session
	c.session = nil
	c.gen++
	c.subscribed = false
	c.stopRefreshLocked()
	c.mu.Unlock()

	c.batcher.close()
	if sess != nil {
		sess.Close()
	}

	c.mu.Lock()
	if c.state == StateDisconnecting {
		c.setStateLocked(StateDisconnected, "")
	}
	c.mu.Unlock()
	c.dispatch.flush()

	c.logger.Info("disconnected from controller")
}

// Close is Disconnect, for deferred shutdown.
func (c *Client) Close() error {
	c.Disconnect()
	return nil
}

// setStateLocked records a state change and queues its notification.
// Re-entering the current state only updates the message.
func (c *Client) setStateLocked(s State, msg string) {
	prev := c.state
	c.stateMsg = msg
	if prev == s {
		return
	}
	c.state = s

	if prev == StateConnected {
		c.batcher.close()
	}

	c.logger.Debug("controller state changed", "from", prev.String(), "to", s.String(), "message", msg)
	c.dispatch.enqueueState(s, msg)
}

func (c *Client) handlers(gen uint64) SessionHandlers {
	return SessionHandlers{
		OnConnect: func() { c.handleConnect(gen) },
		OnMessage: func(topic string, payload []byte) { c.handleMessage(gen, topic, payload) },
		OnError:   func(err error) { c.handleError(gen, err) },
		OnClose:   func(err error) { c.handleClose(gen, err) },
	}
}

// current returns the session if gen is still current.
func (c *Client) current(gen uint64) (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.session == nil {
		return nil, false
	}
	return c.session, true
}

func (c *Client) handleConnect(gen uint64) {
	sess, ok := c.current(gen)
	if !ok {
		return
	}

	// A failed subscription leaves the transport up, so it never reconnects
	// on its own. The refresh loop retries until the subscriptions hold.
	if err := c.subscribe(gen, sess); err != nil {
		c.logger.Error("subscribing failed", "error", err)
		c.handleError(gen, err)
	} else {
		c.requestSnapshot(sess)
	}

	c.mu.Lock()
	if gen == c.gen {
		c.startRefreshLocked(gen)
	}
	c.mu.Unlock()
}

// subscribe takes the evt and rsp subscriptions on sess and records the
// outcome for gen.
func (c *Client) subscribe(gen uint64, sess Session) error {
	var err error
	for _, topic := range (protocol.Topics{}).Subscriptions() {
		if subErr := sess.Subscribe(topic); subErr != nil {
			err = fmt.Errorf("subscribing to %s: %w", topic, subErr)
			break
		}
	}

	c.mu.Lock()
	if gen == c.gen {
		c.subscribed = err == nil
	}
	c.mu.Unlock()
	return err
}

// requestSnapshot publishes a devices.list request. Failures are logged; the
// refresh timer retries.
func (c *Client) requestSnapshot(sess Session) {
	if err := sess.Publish(protocol.TopicCommand, protocol.EncodeListRequest()); err != nil {
		c.logger.Warn("requesting device list failed", "error", err)
		return
	}
	c.logger.Debug("device list requested")
}

// startRefreshLocked replaces any running refresh loop with one for gen.
func (c *Client) startRefreshLocked(gen uint64) {
	c.stopRefreshLocked()

	stop := make(chan struct{})
	c.refreshStop = stop
	interval := c.refreshInterval

	go func() {
		timer := time.NewTimer(c.nextRefresh(interval))
		defer timer.Stop()
		for {
			select {
			case <-stop:
				return
			case <-timer.C:
				c.refresh(gen)
				timer.Reset(c.nextRefresh(interval))
			}
		}
	}()
}

// nextRefresh shortens the period to subscribeRetryInterval while the
// subscriptions are missing.
func (c *Client) nextRefresh(interval time.Duration) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.subscribed && subscribeRetryInterval < interval {
		return subscribeRetryInterval
	}
	return interval
}

func (c *Client) stopRefreshLocked() {
	if c.refreshStop != nil {
		close(c.refreshStop)
		c.refreshStop = nil
	}
}

func (c *Client) refresh(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.session == nil {
		c.mu.Unlock()
		return
	}
	sess, subscribed, state := c.session, c.subscribed, c.state
	c.mu.Unlock()

	if !subscribed {
		if err := c.subscribe(gen, sess); err != nil {
			c.logger.Warn("retrying subscriptions failed", "error", err)
			return
		}
		c.logger.Info("subscriptions restored")
		c.requestSnapshot(sess)
		return
	}
	if state != StateConnected && state != StateConnecting {
		return
	}
	c.requestSnapshot(sess)
}

func (c *Client) handleMessage(gen uint64, topic string, payload []byte) {
	in, err := protocol.Decode(topic, payload)
	if err != nil {
		c.logger.Warn("dropping malformed message", "topic", topic, "error", err)
		c.observer.DecodeFailed(c.id, protocol.Channel(topic))
		return
	}
	c.observer.MessageReceived(c.id, in.Kind.String())

	switch in.Kind {
	case protocol.KindListResponse:
		c.applySnapshot(gen, in.Devices)
	case protocol.KindStatusEvent:
		c.applyStatus(gen, in.Updates)
	default:
		c.logger.Debug("ignoring message", "topic", topic, "method", in.Method)
	}
}

func (c *Client) applySnapshot(gen uint64, devices []device.Device) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}

	stored := c.registry.Replace(devices)
	if c.state != StateConnected {
		c.setStateLocked(StateConnected, "")
		c.batcher.open(c.session)
	}
	for _, d := range stored {
		c.dispatch.enqueueDevice(d)
	}
	c.mu.Unlock()

	c.observer.SnapshotApplied(c.id, len(stored))
	c.logger.Info("device list received", "devices", len(stored))
	for _, d := range stored {
		if !d.Type.Known() || !d.Model.Known() {
			c.logger.Info("device has unrecognised type or model", "uuid", d.UUID, "type", d.Type, "model", d.Model)
		}
	}
	c.dispatch.flush()
}

func (c *Client) applyStatus(gen uint64, updates []device.Update) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}

	for _, u := range updates {
		d, ok := c.registry.Apply(u)
		if !ok {
			c.logger.Warn("status update for unknown device", "uuid", u.UUID)
			c.observer.UnknownDevice(c.id)
			continue
		}
		c.dispatch.enqueueDevice(d)
	}
	c.mu.Unlock()

	c.dispatch.flush()
}

func (c *Client) handleError(gen uint64, err error) {
	if err == nil {
		return
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}

	if !isAuthError(err) {
		c.setStateLocked(StateError, err.Error())
		c.mu.Unlock()
		c.dispatch.flush()
		c.logger.Warn("controller connection error", "error", err)
		return
	}

	sess := c.session
	c.session = nil
	c.gen++
	c.subscribed = false
	c.stopRefreshLocked()
	c.setStateLocked(StateError, authFailedMessage)
	c.mu.Unlock()

	if sess != nil {
		sess.Close()
	}
	c.dispatch.flush()
	c.logger.Error("controller rejected credentials", "error", err)
}

func (c *Client) handleClose(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	if c.state != StateError {
		c.setStateLocked(StateDisconnected, "")
	}
	c.mu.Unlock()
	c.dispatch.flush()

	c.logger.Info("controller connection lost", "error", err)
}

// isAuthError reports whether err means the controller rejected the
// credentials.
func isAuthError(err error) bool {
	if errors.Is(err, ErrUnauthorized) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not authorized") ||
		strings.Contains(msg, "not authorised") ||
		strings.Contains(msg, "bad user name or password")
}

// =============================================================================
// Read side
// =============================================================================

// Device returns a copy of the device with uuid.
func (c *Client) Device(uuid string) (*device.Device, error) {
	return c.registry.Get(uuid)
}

// Devices returns copies of all devices in snapshot order.
func (c *Client) Devices() []device.Device {
	return c.registry.List()
}

// ByTypeAndModel returns devices of type t with one of models (any model
// when none are given). It reads the last known registry contents whatever
// the connection state.
func (c *Client) ByTypeAndModel(t device.Type, models ...device.Model) []device.Device {
	return c.registry.ByTypeAndModel(t, models...)
}

// DeviceCount returns the number of devices in the registry.
func (c *Client) DeviceCount() int {
	return c.registry.Len()
}

// =============================================================================
// Write side
// =============================================================================

// SetProperties queues a write for the next batch window and returns without
// waiting for it to be published.
//
// Returns ErrNotConnected unless Connected, device.ErrDeviceNotFound for an
// unknown UUID and device.ErrNoProperties for an empty write.
func (c *Client) SetProperties(uuid string, props ...device.Property) error {
	_, err := c.enqueue(uuid, props)
	return err
}

// SetPropertiesWait is SetProperties that waits until the batch carrying the
// write has been acknowledged by the transport.
//
// Returns ErrDiscarded if the connection was lost before publishing.
func (c *Client) SetPropertiesWait(ctx context.Context, uuid string, props ...device.Property) error {
	done, err := c.enqueue(uuid, props)
	if err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) enqueue(uuid string, props device.Properties) (<-chan error, error) {
	if len(props) == 0 {
		return nil, device.ErrNoProperties
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateConnected {
		return nil, ErrNotConnected
	}
	if _, err := c.registry.Get(uuid); err != nil {
		return nil, fmt.Errorf("%w: %s", err, uuid)
	}
	return c.batcher.enqueue(uuid, props)
}

// =============================================================================
// Subscriptions
// =============================================================================

// OnDeviceChange registers fn for every registry change: once per device
// after each snapshot and once per updated device after each status event.
// fn receives the full device. The returned func cancels the subscription.
func (c *Client) OnDeviceChange(fn func(device.Device)) func() {
	return c.dispatch.onDevice("", fn)
}

// OnDevice registers fn for changes to the device with uuid only.
func (c *Client) OnDevice(uuid string, fn func(device.Device)) func() {
	if uuid == "" {
		return func() {}
	}
	return c.dispatch.onDevice(uuid, fn)
}

// OnStateChange registers fn for connection state changes. fn is called once
// per actual change with the new state and its message.
func (c *Client) OnStateChange(fn func(State, string)) func() {
	return c.dispatch.onState(fn)
}
