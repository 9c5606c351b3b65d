package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang/geo/r3"

	"github.com/cjeanneret/TiltGo/internal/debug"
	"github.com/cjeanneret/TiltGo/internal/logic/gimbal"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 4 << 10

// Gimbal is the part of the controller exposed over HTTP.
type Gimbal interface {
	SetMode(m gimbal.Mode)
	SetROI(p r3.Vector)
	ArmTracking() r3.Vector
	Limits() gimbal.AngleLimits
	RCChannel() int
}

// ModeRequest is the body of POST /mode. Mode is a name or a MAV_MOUNT_MODE number.
type ModeRequest struct {
	Mode json.RawMessage `json:"mode"`
}

// Point is a local-frame position in metres (north, east, up).
type Point struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
	Z *float64 `json:"z"`
}

// ROIResponse is returned by POST /roi/from-tilt.
type ROIResponse struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// ConfigResponse echoes the mount configuration.
type ConfigResponse struct {
	RCInTilt     int   `json:"rc_in_tilt"`
	AngleMinTilt int16 `json:"angle_min_tilt"`
	AngleMaxTilt int16 `json:"angle_max_tilt"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Gimbal Gimbal
	Logs   *LogStream
}

// NewHandlers creates handlers. logs may be nil; GET /log/stream then returns 404.
func NewHandlers(g Gimbal, logs *LogStream) *Handlers {
	return &Handlers{Gimbal: g, Logs: logs}
}

// ParseModeValue decodes a JSON string or number into a mode.
func ParseModeValue(raw json.RawMessage) (gimbal.Mode, error) {
	if len(raw) == 0 {
		return 0, errors.New("mode is required")
	}
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return gimbal.ParseMode(name)
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("mode must be a string or a number")
	}
	if n != float64(int(n)) {
		return 0, fmt.Errorf("mode %v is not an integer", n)
	}
	return gimbal.Mode(int(n)), nil
}

// ValidatePoint checks that all coordinates are present.
func ValidatePoint(p Point) (r3.Vector, error) {
	if p.X == nil || p.Y == nil || p.Z == nil {
		return r3.Vector{}, errors.New("x, y and z are required")
	}
	return r3.Vector{X: *p.X, Y: *p.Y, Z: *p.Z}, nil
}

// HandleMode handles POST /mode. GPS_POINT arms tracking from the current tilt.
func (h *Handlers) HandleMode(w http.ResponseWriter, r *http.Request) {
	var req ModeRequest
	if err := decodeBody(w, r, &req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	m, err := ParseModeValue(req.Mode)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if m == gimbal.ModeGPSPoint {
		h.Gimbal.ArmTracking()
	} else {
		h.Gimbal.SetMode(m)
	}
	debug.Info("HTTP: mode %s", m)
	w.WriteHeader(http.StatusNoContent)
}

// HandleROI handles POST /roi.
func (h *Handlers) HandleROI(w http.ResponseWriter, r *http.Request) {
	var p Point
	if err := decodeBody(w, r, &p); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	roi, err := ValidatePoint(p)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.Gimbal.SetROI(roi)
	w.WriteHeader(http.StatusNoContent)
}

// HandleROIFromTilt handles POST /roi/from-tilt.
func (h *Handlers) HandleROIFromTilt(w http.ResponseWriter, r *http.Request) {
	roi := h.Gimbal.ArmTracking()
	writeJSON(w, http.StatusOK, ROIResponse{X: roi.X, Y: roi.Y, Z: roi.Z})
}

// HandleConfig handles GET /config.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	l := h.Gimbal.Limits()
	writeJSON(w, http.StatusOK, ConfigResponse{
		RCInTilt:     h.Gimbal.RCChannel(),
		AngleMinTilt: l.Min,
		AngleMaxTilt: l.Max,
	})
}

// HandleLogStream handles GET /log/stream for SSE.
func (h *Handlers) HandleLogStream(w http.ResponseWriter, r *http.Request) {
	if h.Logs == nil {
		http.NotFound(w, r)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Logs.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
