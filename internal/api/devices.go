package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/banshee-data/cabinet.report/internal/camera"
	"github.com/banshee-data/cabinet.report/internal/db"
	"github.com/banshee-data/cabinet.report/internal/httputil"
)

// deviceView joins the stored device row with live connection state.
type deviceView struct {
	*db.Device
	Connected bool `json:"connected"`
}

func (s *Server) listDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	devices, err := s.db.ListDevices(r.Context())
	if err != nil {
		httputil.InternalServerError(w, "failed to list devices")
		return
	}

	views := make([]deviceView, 0, len(devices))
	for _, device := range devices {
		views = append(views, deviceView{
			Device:    device,
			Connected: s.frames.IsOnline(device.DeviceID),
		})
	}
	httputil.WriteJSONOK(w, views)
}

// deviceSubroutes dispatches /api/devices/{id} and its actions.
func (s *Server) deviceSubroutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/devices/")
	deviceID, action, _ := strings.Cut(rest, "/")
	if deviceID == "" {
		httputil.NotFound(w, "missing device id")
		return
	}

	switch action {
	case "":
		s.showDevice(w, r, deviceID)
	case "boundary":
		s.deviceBoundary(w, r, deviceID)
	case "detection":
		s.deviceDetection(w, r, deviceID)
	default:
		httputil.NotFound(w, "unknown device action")
	}
}

func (s *Server) showDevice(w http.ResponseWriter, r *http.Request, deviceID string) {
	switch r.Method {
	case http.MethodGet:
		device, err := s.db.GetDevice(r.Context(), deviceID)
		if errors.Is(err, db.ErrDeviceNotFound) {
			httputil.NotFound(w, "device not found")
			return
		}
		if err != nil {
			httputil.InternalServerError(w, "failed to load device")
			return
		}
		httputil.WriteJSONOK(w, deviceView{Device: device, Connected: s.frames.IsOnline(deviceID)})
	case http.MethodPatch:
		var body struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httputil.BadRequest(w, "invalid JSON body")
			return
		}
		if err := s.db.SetDeviceName(r.Context(), deviceID, body.Name); err != nil {
			if errors.Is(err, db.ErrDeviceNotFound) {
				httputil.NotFound(w, "device not found")
				return
			}
			httputil.InternalServerError(w, "failed to update device")
			return
		}
		httputil.WriteJSONOK(w, map[string]string{"status": "ok"})
	default:
		httputil.MethodNotAllowed(w)
	}
}

// boundaryRequest is the calibration payload: a normalized line plus the
// direction label assigned to SideA-to-SideB movement.
type boundaryRequest struct {
	Boundary      camera.BoundaryLine `json:"boundary"`
	DirectionAToB string              `json:"direction_a_to_b"`
}

func (s *Server) deviceBoundary(w http.ResponseWriter, r *http.Request, deviceID string) {
	switch r.Method {
	case http.MethodGet:
		device, err := s.db.GetDevice(r.Context(), deviceID)
		if errors.Is(err, db.ErrDeviceNotFound) {
			httputil.NotFound(w, "device not found")
			return
		}
		if err != nil {
			httputil.InternalServerError(w, "failed to load device")
			return
		}
		httputil.WriteJSONOK(w, boundaryRequest{
			Boundary:      boundaryOrZero(device.Boundary),
			DirectionAToB: device.DirectionAToB,
		})
	case http.MethodPut:
		var body boundaryRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httputil.BadRequest(w, "invalid JSON body")
			return
		}
		if err := body.Boundary.Validate(); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		direction := camera.Direction(body.DirectionAToB)
		if direction != camera.DirectionIn && direction != camera.DirectionOut {
			httputil.BadRequest(w, "direction_a_to_b must be \"in\" or \"out\"")
			return
		}
		if err := s.db.SetBoundary(r.Context(), deviceID, body.Boundary, direction); err != nil {
			if errors.Is(err, db.ErrDeviceNotFound) {
				httputil.NotFound(w, "device not found")
				return
			}
			httputil.InternalServerError(w, "failed to store boundary")
			return
		}
		// A connected device picks the new line up immediately; an
		// offline one reads it on its next connection.
		s.frames.RefreshBoundary(deviceID)
		httputil.WriteJSONOK(w, map[string]string{"status": "ok"})
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) deviceDetection(w http.ResponseWriter, r *http.Request, deviceID string) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.BadRequest(w, "invalid JSON body")
		return
	}

	if err := s.db.SetDetectionEnabled(r.Context(), deviceID, body.Enabled); err != nil {
		if errors.Is(err, db.ErrDeviceNotFound) {
			httputil.NotFound(w, "device not found")
			return
		}
		httputil.InternalServerError(w, "failed to update detection state")
		return
	}

	live := s.frames.SetDetection(deviceID, body.Enabled)
	httputil.WriteJSONOK(w, map[string]any{
		"status":  "ok",
		"applied": live,
	})
}

func boundaryOrZero(line *camera.BoundaryLine) camera.BoundaryLine {
	if line == nil {
		return camera.BoundaryLine{}
	}
	return *line
}
