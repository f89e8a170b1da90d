package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"

	"github.com/nerrad567/nhc-bridge/internal/controller"
)

var (
	_ controller.Dialer  = (*Dialer)(nil)
	_ controller.Session = (*Session)(nil)
)

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
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

// Dialer creates paho-backed sessions to one controller.
type Dialer struct {
	opts Options
}

// NewDialer validates opts and returns a Dialer.
//
// Parameters:
//   - opts: Broker address, TLS and timing settings
//
// Returns:
//   - *Dialer: Ready to create sessions
//   - error: ErrInvalidOptions if host or port are unusable
func NewDialer(opts Options) (*Dialer, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Dialer{opts: opts}, nil
}

// NewSession creates an unopened session. Nothing touches the network until
// Open is called.
func (d *Dialer) NewSession(creds controller.Credentials, handlers controller.SessionHandlers) (controller.Session, error) {
	return newSession(d.opts, creds, handlers), nil
}

type eventKind int

const (
	eventConnect eventKind = iota
	eventMessage
	eventError
	eventClose
)

type event struct {
	kind    eventKind
	topic   string
	payload []byte
	err     error
}

// Session is one MQTT connection to a controller.
//
// paho invokes its callbacks on several goroutines. Session funnels them
// into a single queue drained by one goroutine, so handlers run one at a
// time, in arrival order, and may block (for example to subscribe) without
// stalling paho's network loop.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - No handler runs after Close returns.
type Session struct {
	opts     Options
	handlers controller.SessionHandlers
	logger   Logger
	client   pahomqtt.Client
	clientID string

	mu     sync.Mutex
	opened bool
	closed bool
	events []event
	wake   chan struct{}
	stop   chan struct{}
}

func newSession(opts Options, creds controller.Credentials, handlers controller.SessionHandlers) *Session {
	s := &Session{
		opts:     opts,
		handlers: handlers,
		logger:   opts.Logger,
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}

	po := buildClientOptions(opts, creds.Username, creds.Token)
	s.clientID = po.ClientID

	po.SetOnConnectHandler(func(_ pahomqtt.Client) {
		s.post(event{kind: eventConnect})
	})
	po.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		s.post(event{kind: eventClose, err: err})
	})
	po.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		s.logger.Debug("reconnecting to controller", "broker", opts.BrokerURL())
	})

	s.client = pahomqtt.NewClient(po)
	return s
}

// ClientID returns the MQTT client identifier of this session.
func (s *Session) ClientID() string {
	return s.clientID
}

// Open starts connecting in the background. It is a no-op after the first
// call or after Close.
func (s *Session) Open() {
	s.mu.Lock()
	if s.opened || s.closed {
		s.mu.Unlock()
		return
	}
	s.opened = true
	s.mu.Unlock()

	go s.run()
	go s.connectLoop()
}

// connectLoop retries the initial connection at the reconnect interval,
// reporting every failure. Once connected, paho owns reconnection.
func (s *Session) connectLoop() {
	broker := s.opts.BrokerURL()
	for attempt := 1; ; attempt++ {
		token := s.client.Connect()
		<-token.Done() // bounded by ConnectTimeout

		err := token.Error()
		if s.isClosed() {
			if err == nil {
				s.client.Disconnect(0)
			}
			return
		}
		if err == nil {
			s.logger.Info("connected to controller", "broker", broker, "client_id", s.clientID, "attempt", attempt)
			return
		}

		err = connectError(err)
		s.logger.Warn("controller connection attempt failed", "broker", broker, "attempt", attempt, "error", err)
		s.post(event{kind: eventError, err: err})

		select {
		case <-time.After(s.opts.ReconnectInterval):
		case <-s.stop:
			return
		}
	}
}

// connectError classifies a failed connection attempt.
func connectError(err error) error {
	if errors.Is(err, packets.ErrorRefusedBadUsernameOrPassword) || errors.Is(err, packets.ErrorRefusedNotAuthorised) {
		return fmt.Errorf("%w: %w: %w", ErrConnectionFailed, controller.ErrUnauthorized, err)
	}
	return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
}

// Close stops reconnecting and drops the connection without waiting for it
// to wind down. Pending events are discarded.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.events = nil
	opened := s.opened
	close(s.stop)
	s.mu.Unlock()

	if opened {
		go s.client.Disconnect(defaultDisconnectQuiesce)
	}
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// post queues ev for the handler goroutine. It never blocks.
func (s *Session) post(ev event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.events = append(s.events, ev)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Session) next() (event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(s.events) == 0 {
		return event{}, false
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, true
}

// run delivers queued events until Close.
func (s *Session) run() {
	for {
		select {
		case <-s.stop:
			return
		case <-s.wake:
		}
		for {
			ev, ok := s.next()
			if !ok {
				break
			}
			s.dispatch(ev)
		}
	}
}

// dispatch invokes the handler for ev with panic recovery.
func (s *Session) dispatch(ev event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("MQTT handler panic recovered",
				"topic", ev.topic,
				"panic", r,
			)
		}
	}()

	switch ev.kind {
	case eventConnect:
		if s.handlers.OnConnect != nil {
			s.handlers.OnConnect()
		}
	case eventMessage:
		if s.handlers.OnMessage != nil {
			s.handlers.OnMessage(ev.topic, ev.payload)
		}
	case eventError:
		if s.handlers.OnError != nil {
			s.handlers.OnError(ev.err)
		}
	case eventClose:
		s.logger.Warn("controller connection lost", "broker", s.opts.BrokerURL(), "error", ev.err)
		if s.handlers.OnClose != nil {
			s.handlers.OnClose(ev.err)
		}
	}
}

// IsConnected reports whether the network connection is currently up.
func (s *Session) IsConnected() bool {
	return !s.isClosed() && s.client.IsConnectionOpen()
}

// waitToken waits for an acknowledgment up to the publish timeout.
func (s *Session) waitToken(token pahomqtt.Token, op error) error {
	if !token.WaitTimeout(s.opts.PublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", op, s.opts.PublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", op, err)
	}
	return nil
}
