package api

import (
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/nhc-bridge/internal/controller"
	"github.com/nerrad567/nhc-bridge/internal/infrastructure/config"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	if s.metrics != nil {
		r.Handle(s.metricsPath, s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/system", s.handleSystem)
		r.Get("/availability", s.handleListAvailability)

		r.Route("/controllers", func(r chi.Router) {
			r.Get("/", s.handleListControllers)

			r.Route("/{controllerID}", func(r chi.Router) {
				r.Get("/", s.handleGetController)
				r.Post("/connect", s.handleConnect)
				r.Post("/disconnect", s.handleDisconnect)
				r.Put("/credentials", s.handleSetCredentials)

				r.Route("/devices", func(r chi.Router) {
					r.Get("/", s.handleListDevices)

					r.Route("/{uuid}", func(r chi.Router) {
						r.Get("/", s.handleGetDevice)
						r.Put("/properties", s.handleSetProperties)
						r.Get("/history", s.handleDeviceHistory)
						r.Get("/availability", s.handleDeviceAvailability)
					})
				})
			})
		})

		r.Get(wsPath(s.wsCfg), s.handleWebSocket)
	})

	return r
}

// wsPath returns the WebSocket route below /api/v1.
func wsPath(cfg config.WebSocketConfig) string {
	if cfg.Path == "" {
		return "/ws"
	}
	if !strings.HasPrefix(cfg.Path, "/") {
		return "/" + cfg.Path
	}
	return cfg.Path
}

// handleHealth reports "ok" when every controller is connected and
// "degraded" otherwise. It always answers 200 so the bridge itself counts
// as alive.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	controllers := make(map[string]string)
	for _, c := range s.controllers.List() {
		st, _ := c.State()
		controllers[c.ID()] = st.String()
		if st != controller.StateConnected {
			status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      status,
		"version":     s.version,
		"controllers": controllers,
	})
}

// SystemInfo is the response of GET /system.
type SystemInfo struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
	Controllers   int            `json:"controllers"`
	Devices       int            `json:"devices"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// handleSystem returns process and registry statistics.
func (s *Server) handleSystem(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	info := SystemInfo{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{ConnectedClients: s.hub.ClientCount()},
	}
	for _, c := range s.controllers.List() {
		info.Controllers++
		info.Devices += c.DeviceCount()
	}

	writeJSON(w, http.StatusOK, info)
}
