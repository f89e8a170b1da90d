package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/nhc-bridge/internal/controller"
	"github.com/nerrad567/nhc-bridge/internal/device"
)

// Controller is the per-controller surface driven by the API.
// *controller.Client satisfies it.
type Controller interface {
	ID() string
	State() (controller.State, string)
	DeviceCount() int
	Devices() []device.Device
	Device(uuid string) (*device.Device, error)
	ByTypeAndModel(t device.Type, models ...device.Model) []device.Device
	SetProperties(uuid string, props ...device.Property) error
	SetPropertiesWait(ctx context.Context, uuid string, props ...device.Property) error
	SetCredentials(creds controller.Credentials) error
	Connect() error
	Disconnect()
}

// ControllerSource resolves controllers by ID.
type ControllerSource interface {
	List() []Controller
	Get(id string) (Controller, bool)
}

// EventSource delivers controller events for the WebSocket stream.
// *controller.Set satisfies it.
type EventSource interface {
	OnDeviceChange(fn func(controllerID string, d device.Device)) func()
	OnStateChange(fn func(controllerID string, st controller.State, msg string)) func()
}

// SetSource adapts a *controller.Set to ControllerSource.
type SetSource struct {
	Set *controller.Set
}

// List implements ControllerSource.
func (s SetSource) List() []Controller {
	clients := s.Set.List()
	out := make([]Controller, len(clients))
	for i, c := range clients {
		out[i] = c
	}
	return out
}

// Get implements ControllerSource.
func (s SetSource) Get(id string) (Controller, bool) {
	c, ok := s.Set.Get(id)
	if !ok {
		return nil, false
	}
	return c, true
}

// ControllerView is the JSON form of a controller.
type ControllerView struct {
	ID      string `json:"id"`
	State   string `json:"state"`
	Message string `json:"message,omitempty"`
	Devices int    `json:"devices"`
}

func viewOf(c Controller) ControllerView {
	st, msg := c.State()
	return ControllerView{ID: c.ID(), State: st.String(), Message: msg, Devices: c.DeviceCount()}
}

// controllerFromRequest resolves {controllerID} or writes a 404.
func (s *Server) controllerFromRequest(w http.ResponseWriter, r *http.Request) (Controller, bool) {
	id := chi.URLParam(r, "controllerID")
	c, ok := s.controllers.Get(id)
	if !ok {
		writeNotFound(w, "controller not found: "+id)
		return nil, false
	}
	return c, true
}

// handleListControllers returns every configured controller with its state.
func (s *Server) handleListControllers(w http.ResponseWriter, _ *http.Request) {
	list := s.controllers.List()
	views := make([]ControllerView, 0, len(list))
	for _, c := range list {
		views = append(views, viewOf(c))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })
	writeJSON(w, http.StatusOK, map[string]any{"controllers": views, "count": len(views)})
}

// handleGetController returns one controller.
func (s *Server) handleGetController(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controllerFromRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(c))
}

// handleConnect starts (or restarts after an error) a controller session.
// The connection proceeds in the background.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controllerFromRequest(w, r)
	if !ok {
		return
	}
	if err := c.Connect(); err != nil {
		s.logger.Warn("controller connect failed", "controller", c.ID(), "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeUpstream, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, viewOf(c))
}

// handleDisconnect closes a controller session.
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controllerFromRequest(w, r)
	if !ok {
		return
	}
	c.Disconnect()
	writeJSON(w, http.StatusOK, viewOf(c))
}

// credentialsRequest is the body of PUT /controllers/{id}/credentials.
type credentialsRequest struct {
	Username string `json:"username"`
	Token    string `json:"token"`

	// Reconnect drops the current session and connects with the new
	// credentials.
	Reconnect bool `json:"reconnect"`
}

// handleSetCredentials replaces a controller's credentials.
func (s *Server) handleSetCredentials(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controllerFromRequest(w, r)
	if !ok {
		return
	}

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	err := c.SetCredentials(controller.Credentials{Username: req.Username, Token: req.Token})
	if errors.Is(err, controller.ErrInvalidCredentials) {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}
	if err != nil {
		writeInternalError(w, "failed to update credentials")
		return
	}
	s.logger.Info("controller credentials updated", "controller", c.ID(), "reconnect", req.Reconnect)

	if req.Reconnect {
		c.Disconnect()
		if err := c.Connect(); err != nil {
			writeError(w, http.StatusBadGateway, ErrCodeUpstream, err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, viewOf(c))
		return
	}
	writeJSON(w, http.StatusOK, viewOf(c))
}
