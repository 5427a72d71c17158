package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/cabinet.report/internal/db"
	"github.com/banshee-data/cabinet.report/internal/httputil"
)

// listEvents serves /api/events with optional filters: device_id, label,
// direction, since, until (RFC 3339), and limit.
func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	query := r.URL.Query()
	filter := db.EventFilter{
		DeviceID:  query.Get("device_id"),
		Label:     query.Get("label"),
		Direction: query.Get("direction"),
	}

	if since := query.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			httputil.BadRequest(w, "invalid 'since' parameter, want RFC 3339")
			return
		}
		filter.Since = t
	}
	if until := query.Get("until"); until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			httputil.BadRequest(w, "invalid 'until' parameter, want RFC 3339")
			return
		}
		filter.Until = t
	}
	if limit := query.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		filter.Limit = n
	}

	events, err := s.db.ListEvents(r.Context(), filter)
	if err != nil {
		httputil.InternalServerError(w, "failed to query events")
		return
	}
	if events == nil {
		events = []*db.EventRecord{}
	}
	httputil.WriteJSONOK(w, events)
}

// eventSnapshot serves /api/events/{id}/snapshot as image/jpeg.
func (s *Server) eventSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/events/")
	eventID, action, _ := strings.Cut(rest, "/")
	if eventID == "" || action != "snapshot" {
		httputil.NotFound(w, "unknown event route")
		return
	}

	snapshot, err := s.db.EventSnapshot(r.Context(), eventID)
	if errors.Is(err, db.ErrEventNotFound) {
		httputil.NotFound(w, "no snapshot for event")
		return
	}
	if err != nil {
		httputil.InternalServerError(w, "failed to load snapshot")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(snapshot)))
	w.Write(snapshot)
}
