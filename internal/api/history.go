package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/nhc-bridge/internal/history"
)

// handleDeviceHistory returns recorded property changes of a device,
// newest first.
//
// Query parameters:
//   - property: only this property key
//   - limit: maximum entries (default 50, max 500)
//   - since: RFC3339 timestamp or a duration such as "24h"
func (s *Server) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotImplemented, ErrCodeNotImplemented, "property history is disabled")
		return
	}

	limit, err := parseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	since, err := parseSinceParam(r.URL.Query().Get("since"), time.Now())
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	q := history.Query{
		ControllerID: chi.URLParam(r, "controllerID"),
		UUID:         chi.URLParam(r, "uuid"),
		Property:     r.URL.Query().Get("property"),
		Since:        since,
		Limit:        limit,
	}
	entries, err := s.history.Find(r.Context(), q)
	if err != nil {
		s.logger.Error("history query failed", "controller", q.ControllerID, "uuid", q.UUID, "error", err)
		writeInternalError(w, "failed to query history")
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.New("limit must be a positive integer")
	}
	return n, nil
}

// parseSinceParam accepts an RFC3339 timestamp or a duration relative to now.
func parseSinceParam(raw string, now time.Time) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return time.Time{}, errors.New("since must be an RFC3339 timestamp or a positive duration")
	}
	return now.Add(-d), nil
}
