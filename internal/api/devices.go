package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/nhc-bridge/internal/controller"
	"github.com/nerrad567/nhc-bridge/internal/device"
)

// defaultWriteWait bounds ?wait=true property writes.
const defaultWriteWait = 10 * time.Second

// handleListDevices returns the devices of one controller.
//
// Query parameters:
//   - type: filter by device type (relay, dimmer, ...)
//   - model: filter by model; repeat or comma-separate for several.
//     Ignored without type.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controllerFromRequest(w, r)
	if !ok {
		return
	}

	var devices []device.Device
	if t := r.URL.Query().Get("type"); t != "" {
		devices = c.ByTypeAndModel(device.Type(t), parseModels(r.URL.Query()["model"])...)
	} else {
		devices = c.Devices()
	}
	if devices == nil {
		devices = []device.Device{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

func parseModels(raw []string) []device.Model {
	var models []device.Model
	for _, v := range raw {
		for _, m := range strings.Split(v, ",") {
			if m = strings.TrimSpace(m); m != "" {
				models = append(models, device.Model(m))
			}
		}
	}
	return models
}

// handleGetDevice returns one device by UUID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controllerFromRequest(w, r)
	if !ok {
		return
	}
	uuid := chi.URLParam(r, "uuid")
	d, err := c.Device(uuid)
	if err != nil {
		writeNotFound(w, "device not found: "+uuid)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// setPropertiesRequest is the body of PUT .../devices/{uuid}/properties.
// Properties use the controller format: [{"Status":"On"},{"Brightness":"40"}].
type setPropertiesRequest struct {
	Properties device.Properties `json:"properties"`
}

// handleSetProperties queues a property write.
//
// The write joins the controller's current batch window and the handler
// returns 202 Accepted. With ?wait=true it waits until the batch has been
// published and returns 200, or 503 if the connection was lost first.
func (s *Server) handleSetProperties(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controllerFromRequest(w, r)
	if !ok {
		return
	}
	uuid := chi.URLParam(r, "uuid")

	var req setPropertiesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	props := req.Properties.Normalize()

	if r.URL.Query().Get("wait") == "true" {
		ctx, cancel := context.WithTimeout(r.Context(), defaultWriteWait)
		defer cancel()
		if err := c.SetPropertiesWait(ctx, uuid, props...); err != nil {
			s.writeWriteError(w, c.ID(), uuid, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "published", "uuid": uuid})
		return
	}

	if err := c.SetProperties(uuid, props...); err != nil {
		s.writeWriteError(w, c.ID(), uuid, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "queued", "uuid": uuid})
}

// writeWriteError maps controller write errors to HTTP responses.
func (s *Server) writeWriteError(w http.ResponseWriter, controllerID, uuid string, err error) {
	switch {
	case errors.Is(err, device.ErrNoProperties):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "at least one property is required")
	case errors.Is(err, device.ErrDeviceNotFound):
		writeNotFound(w, "device not found: "+uuid)
	case errors.Is(err, controller.ErrNotConnected):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "controller is not connected")
	case errors.Is(err, controller.ErrDiscarded):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "connection lost before the write was sent")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, "timed out waiting for the write to be sent")
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to write.
	default:
		s.logger.Warn("property write failed", "controller", controllerID, "uuid", uuid, "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeUpstream, "publishing to controller failed")
	}
}

// handleDeviceAvailability returns the last availability check of a device.
func (s *Server) handleDeviceAvailability(w http.ResponseWriter, r *http.Request) {
	if s.availability == nil {
		writeError(w, http.StatusNotImplemented, ErrCodeNotImplemented, "availability monitoring is disabled")
		return
	}
	controllerID := chi.URLParam(r, "controllerID")
	uuid := chi.URLParam(r, "uuid")
	st, ok := s.availability.Status(controllerID, uuid)
	if !ok {
		writeNotFound(w, "device is not tracked")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleListAvailability returns the last result of every tracked device.
func (s *Server) handleListAvailability(w http.ResponseWriter, _ *http.Request) {
	if s.availability == nil {
		writeError(w, http.StatusNotImplemented, ErrCodeNotImplemented, "availability monitoring is disabled")
		return
	}
	statuses := s.availability.Statuses()
	writeJSON(w, http.StatusOK, map[string]any{"devices": statuses, "count": len(statuses)})
}
