// Package vehicle holds the latest vehicle telemetry received from the
// flight controller and exposes it to the gimbal as read-only sources.
package vehicle

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cjeanneret/TiltGo/internal/logic/gimbal"
	"github.com/golang/geo/r3"
)

// FixQuality is the GNSS fix level, ordered from worst to best.
type FixQuality int

const (
	NoGPS FixQuality = iota
	NoFix
	Fix2D
	Fix3D
	FixDGPS
	FixRTKFloat
	FixRTKFixed
)

func (f FixQuality) String() string {
	switch f {
	case NoGPS:
		return "NO_GPS"
	case NoFix:
		return "NO_FIX"
	case Fix2D:
		return "2D"
	case Fix3D:
		return "3D"
	case FixDGPS:
		return "DGPS"
	case FixRTKFloat:
		return "RTK_FLOAT"
	case FixRTKFixed:
		return "RTK_FIXED"
	default:
		return fmt.Sprintf("FixQuality(%d)", int(f))
	}
}

// AtLeast2D reports whether the fix is good enough to track a ROI.
func (f FixQuality) AtLeast2D() bool {
	return f >= Fix2D
}

// RCUnused is the raw value a receiver reports for a channel it does not drive.
const RCUnused = math.MaxUint16

// Age after which RC input and the GNSS fix are treated as lost.
const (
	RCTimeout  = time.Second
	FixTimeout = 2 * time.Second
)

// Metres per 1e-7 degree of latitude (and of longitude at the equator).
const locationScaling = 0.011131884502145034

// Calibration is the configured pulse range of one RC channel.
type Calibration struct {
	Min      int16
	Max      int16
	Reversed bool
}

// Home is the origin of the local frame in global coordinates.
type Home struct {
	LatE7 int32
	LonE7 int32
	AltMM int32     // millimetres above MSL
	Local r3.Vector // local-frame position of home (z up)
}

// State is the shared vehicle state. Writers are the link goroutine,
// readers the control loop; every access goes through mu.
type State struct {
	mu sync.RWMutex

	now func() time.Time

	calib   map[int]Calibration
	rcRaw   []uint16
	rcValid bool
	rcAt    time.Time

	position r3.Vector // local frame, x north, y east, z up (metres)
	fix      FixQuality
	fixAt    time.Time
	sinYaw   float64
	cosYaw   float64

	home      Home
	homeValid bool
}

// NewState creates a state with the given RC calibrations, keyed by 1-based channel.
func NewState(calib map[int]Calibration) *State {
	c := make(map[int]Calibration, len(calib))
	for ch, cal := range calib {
		c[ch] = cal
	}
	return &State{now: time.Now, calib: c, cosYaw: 1}
}

// SetRCRaw stores the raw pulse widths of channels 1..len(raw).
func (s *State) SetRCRaw(raw []uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rcRaw = append(s.rcRaw[:0], raw...)
	s.rcValid = true
	s.rcAt = s.now()
}

// ClearRC marks RC input as lost (e.g. receiver failsafe).
func (s *State) ClearRC() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rcValid = false
}

// RCInput implements gimbal.RCSource. A channel is unavailable once the
// last RC frame is older than RCTimeout.
func (s *State) RCInput(channel int) (gimbal.RCInput, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cal, ok := s.calib[channel]
	if !ok || !s.rcValid || channel < 1 || channel > len(s.rcRaw) {
		return gimbal.RCInput{}, false
	}
	if s.now().Sub(s.rcAt) > RCTimeout {
		return gimbal.RCInput{}, false
	}
	raw := s.rcRaw[channel-1]
	if raw == RCUnused || raw > math.MaxInt16 {
		return gimbal.RCInput{}, false
	}
	return gimbal.RCInput{
		Raw:      int16(raw),
		Min:      cal.Min,
		Max:      cal.Max,
		Reversed: cal.Reversed,
	}, true
}

// SetPosition stores the local-frame position (z up).
func (s *State) SetPosition(p r3.Vector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = p
}

// SetFix stores the current GNSS fix quality.
func (s *State) SetFix(f FixQuality) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fix = f
	s.fixAt = s.now()
}

// SetYaw stores the heading in radians.
func (s *State) SetYaw(yaw float64) {
	sinYaw, cosYaw := math.Sincos(yaw)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinYaw, s.cosYaw = sinYaw, cosYaw
}

// SetHome stores the local-frame origin.
func (s *State) SetHome(h Home) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.home = h
	s.homeValid = true
}

// Home returns the home location; ok is false until it is known.
func (s *State) Home() (Home, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.home, s.homeValid
}

// Position implements gimbal.PositionSource.
func (s *State) Position() r3.Vector {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.position
}

// Fix returns the current fix quality, or NoFix once the last report is
// older than FixTimeout.
func (s *State) Fix() FixQuality {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fix > NoFix && s.now().Sub(s.fixAt) > FixTimeout {
		return NoFix
	}
	return s.fix
}

// HasFix implements gimbal.PositionSource.
func (s *State) HasFix() bool {
	return s.Fix().AtLeast2D()
}

// Heading implements gimbal.OrientationSource.
func (s *State) Heading() (float64, float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sinYaw, s.cosYaw
}

// LocalFromGlobal converts a global point (altitude in metres above home) to
// the local frame using the home location. ok is false until home is known.
//
// Equirectangular approximation, fine over the few kilometres a mount can see.
func (s *State) LocalFromGlobal(latE7, lonE7 int32, relAlt float64) (r3.Vector, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.homeValid {
		return r3.Vector{}, false
	}
	h := s.home

	north := (float64(latE7) - float64(h.LatE7)) * locationScaling
	lonScale := math.Max(math.Cos(float64(h.LatE7)*1e-7*math.Pi/180), 0.01)
	east := (float64(lonE7) - float64(h.LonE7)) * locationScaling * lonScale
	return h.Local.Add(r3.Vector{X: north, Y: east, Z: relAlt}), true
}

var (
	_ gimbal.RCSource          = (*State)(nil)
	_ gimbal.PositionSource    = (*State)(nil)
	_ gimbal.OrientationSource = (*State)(nil)
)
