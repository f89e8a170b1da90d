// Package api implements the HTTP REST API and WebSocket server of the bridge.
//
// This package provides:
//   - Controller endpoints: state, connect/disconnect, credential updates
//   - Device endpoints: registry reads, filtered by type and model
//   - Property writes that join the controller's batch window
//   - Property history and availability read models
//   - WebSocket hub relaying device.changed, controller.state and
//     device.availability events
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Routes
//
//	GET  /api/v1/health
//	GET  /api/v1/system
//	GET  /api/v1/availability
//	GET  /api/v1/controllers
//	GET  /api/v1/controllers/{controllerID}
//	POST /api/v1/controllers/{controllerID}/connect
//	POST /api/v1/controllers/{controllerID}/disconnect
//	PUT  /api/v1/controllers/{controllerID}/credentials
//	GET  /api/v1/controllers/{controllerID}/devices?type=relay&model=light,socket
//	GET  /api/v1/controllers/{controllerID}/devices/{uuid}
//	PUT  /api/v1/controllers/{controllerID}/devices/{uuid}/properties[?wait=true]
//	GET  /api/v1/controllers/{controllerID}/devices/{uuid}/history
//	GET  /api/v1/controllers/{controllerID}/devices/{uuid}/availability
//	GET  /api/v1/ws?channels=device.changed,controller.state
//	GET  /metrics (when a Prometheus handler is supplied)
//
// # Writes
//
// A property write returns 202 once queued. Writes to a controller that is
// not connected fail with 503 and are never queued. With ?wait=true the
// handler returns 200 after the batch carrying the write was published.
//
// # Graceful Degradation
//
// History and availability are optional dependencies; their endpoints answer
// 501 when the feature is disabled.
package api
