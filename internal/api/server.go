package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/nhc-bridge/internal/availability"
	"github.com/nerrad567/nhc-bridge/internal/controller"
	"github.com/nerrad567/nhc-bridge/internal/device"
	"github.com/nerrad567/nhc-bridge/internal/history"
	"github.com/nerrad567/nhc-bridge/internal/infrastructure/config"
	"github.com/nerrad567/nhc-bridge/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HistoryReader returns recorded property history. *history.SQLiteRepository
// satisfies it.
type HistoryReader interface {
	Find(ctx context.Context, q history.Query) ([]history.Entry, error)
}

// AvailabilityReader exposes the last availability results.
// *availability.Monitor satisfies it.
type AvailabilityReader interface {
	Statuses() []availability.Status
	Status(controllerID, uuid string) (availability.Status, bool)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Logger      *logging.Logger
	Controllers ControllerSource

	// Events feeds device and state changes to WebSocket clients. Optional.
	Events EventSource

	// Optional read models.
	History      HistoryReader
	Availability AvailabilityReader

	// Metrics is mounted at MetricsPath when set.
	Metrics     http.Handler
	MetricsPath string

	Version string
}

// Server is the HTTP API server of the bridge.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg          config.APIConfig
	wsCfg        config.WebSocketConfig
	logger       *logging.Logger
	controllers  ControllerSource
	events       EventSource
	history      HistoryReader
	availability AvailabilityReader
	metrics      http.Handler
	metricsPath  string
	version      string
	startTime    time.Time

	hub    *Hub
	server *http.Server
	cancel context.CancelFunc

	mu          sync.Mutex
	unsubscribe []func()
	addr        string
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Controllers == nil {
		return nil, fmt.Errorf("controller source is required")
	}
	if deps.Metrics != nil && deps.MetricsPath == "" {
		deps.MetricsPath = "/metrics"
	}

	return &Server{
		cfg:          deps.Config,
		wsCfg:        deps.WS,
		logger:       deps.Logger,
		controllers:  deps.Controllers,
		events:       deps.Events,
		history:      deps.History,
		availability: deps.Availability,
		metrics:      deps.Metrics,
		metricsPath:  deps.MetricsPath,
		version:      deps.Version,
		startTime:    time.Now(),
		hub:          NewHub(deps.WS, deps.Logger),
	}, nil
}

// Start begins listening for HTTP connections.
//
// It subscribes to controller events for WebSocket broadcast, binds the
// listener, and serves in a background goroutine. The server can be stopped
// with Close().
//
// Returns:
//   - error: If the listener cannot be bound (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.subscribeEvents()

	s.server = &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		s.unsubscribeEvents()
		return fmt.Errorf("binding API listener: %w", err)
	}
	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	s.logger.Info("API server starting", "address", s.Addr())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	s.unsubscribeEvents()
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// =============================================================================
// Event relay
// =============================================================================

// WebSocket event channels.
const (
	ChannelDeviceChanged      = "device.changed"
	ChannelControllerState    = "controller.state"
	ChannelDeviceAvailability = "device.availability"
)

// DeviceEvent is the payload of device.changed.
type DeviceEvent struct {
	ControllerID string        `json:"controller_id"`
	Device       device.Device `json:"device"`
}

// StateEvent is the payload of controller.state.
type StateEvent struct {
	ControllerID string `json:"controller_id"`
	State        string `json:"state"`
	Message      string `json:"message,omitempty"`
}

func (s *Server) subscribeEvents() {
	if s.events == nil {
		return
	}
	unsubDevice := s.events.OnDeviceChange(s.PublishDevice)
	unsubState := s.events.OnStateChange(func(controllerID string, st controller.State, msg string) {
		s.PublishState(controllerID, st.String(), msg)
	})

	s.mu.Lock()
	s.unsubscribe = append(s.unsubscribe, unsubDevice, unsubState)
	s.mu.Unlock()
}

func (s *Server) unsubscribeEvents() {
	s.mu.Lock()
	unsub := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	for _, fn := range unsub {
		fn()
	}
}

// PublishDevice broadcasts a device change.
func (s *Server) PublishDevice(controllerID string, d device.Device) {
	s.hub.Broadcast(ChannelDeviceChanged, DeviceEvent{ControllerID: controllerID, Device: d})
}

// PublishState broadcasts a controller state change.
func (s *Server) PublishState(controllerID, state, msg string) {
	s.hub.Broadcast(ChannelControllerState, StateEvent{ControllerID: controllerID, State: state, Message: msg})
}

// PublishAvailability broadcasts an availability transition. Its signature
// matches availability.Monitor.OnChange.
func (s *Server) PublishAvailability(st availability.Status) {
	s.hub.Broadcast(ChannelDeviceAvailability, st)
}
