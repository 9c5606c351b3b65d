// Package gimbal decides, once per control-loop tick, which tilt angle the
// camera mount should hold: either straight from a pilot RC channel or by
// tracking a ground point of interest (ROI) from the vehicle position.
package gimbal

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/cjeanneret/TiltGo/internal/debug"
	"github.com/golang/geo/r3"
)

// Mode selects how the tilt angle is derived. Values follow MAV_MOUNT_MODE.
type Mode int

const (
	ModeRCTargeting Mode = 3
	ModeGPSPoint    Mode = 4
)

func (m Mode) String() string {
	switch m {
	case ModeRCTargeting:
		return "RC_TARGETING"
	case ModeGPSPoint:
		return "GPS_POINT"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// normalize applies the mount's only accepted modes: GPS_POINT stays,
// anything else (including unknown values) becomes RC_TARGETING.
func (m Mode) normalize() Mode {
	if m == ModeGPSPoint {
		return ModeGPSPoint
	}
	return ModeRCTargeting
}

// ParseMode converts a mode name or MAV_MOUNT_MODE number into a Mode.
// Numbers are accepted as-is; SetMode coerces unknown ones.
func ParseMode(value string) (Mode, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	switch normalized {
	case "RC_TARGETING", "RC":
		return ModeRCTargeting, nil
	case "GPS_POINT", "GPS", "ROI":
		return ModeGPSPoint, nil
	}
	n, err := strconv.Atoi(normalized)
	if err != nil {
		return ModeRCTargeting, fmt.Errorf("unknown mode %q", value)
	}
	return Mode(n), nil
}

// Axis names an actuator output channel.
type Axis int

const (
	AxisTilt Axis = iota
	AxisPan
	AxisRoll
)

func (a Axis) String() string {
	switch a {
	case AxisTilt:
		return "tilt"
	case AxisPan:
		return "pan"
	case AxisRoll:
		return "roll"
	default:
		return fmt.Sprintf("Axis(%d)", int(a))
	}
}

// Hardware output range of the tilt servo, in centidegrees (level to straight down).
const (
	TiltOutputMin = 0
	TiltOutputMax = 9000
)

// DefaultRCTilt is held when no RC channel drives the tilt: nearly straight down.
const DefaultRCTilt = 8000

// RCSource reads pilot radio channels. ok is false when the channel is not
// configured or not currently received.
type RCSource interface {
	RCInput(channel int) (in RCInput, ok bool)
}

// PositionSource reports the vehicle position in the local navigation frame.
type PositionSource interface {
	Position() r3.Vector
	HasFix() bool // at least a 2D fix
}

// OrientationSource reports the vehicle heading as sine and cosine of yaw.
type OrientationSource interface {
	Heading() (sinYaw, cosYaw float64)
}

// Actuator drives a mount axis to value, constrained to [min, max].
type Actuator interface {
	MoveServo(axis Axis, value, min, max int32)
}

// Sources groups the read-only vehicle inputs of the controller.
type Sources struct {
	RC          RCSource
	Position    PositionSource
	Orientation OrientationSource
}

// Config holds the externally supplied gimbal parameters.
type Config struct {
	RCChannel int // 0 = no RC control
	Limits    AngleLimits
}

// Controller is the tilt gimbal state machine.
// Update runs on the control loop; the mutators may be called from any goroutine.
type Controller struct {
	src Sources
	out Actuator

	mu        sync.Mutex
	mode      Mode
	tilt      int32 // centidegrees, last computed (not clamped)
	limits    AngleLimits
	rcChannel int
	roi       r3.Vector
}

// NewController creates a controller in RC_TARGETING mode.
func NewController(cfg Config, src Sources, out Actuator) *Controller {
	return &Controller{
		src:       src,
		out:       out,
		mode:      ModeRCTargeting,
		limits:    cfg.Limits,
		rcChannel: cfg.RCChannel,
	}
}

// Update computes the tilt for the current mode and sends it to the actuator.
// It returns the value commanded, always inside [TiltOutputMin, TiltOutputMax].
func (c *Controller) Update() int32 {
	c.mu.Lock()
	switch c.mode {
	case ModeGPSPoint:
		// Without a fix the previous angle is held.
		if c.src.Position != nil && c.src.Position.HasFix() {
			c.tilt = TiltToTarget(c.src.Position.Position(), c.roi)
		}
	default:
		c.tilt = c.rcTilt()
	}
	cmd := constrainInt32(c.tilt, TiltOutputMin, TiltOutputMax)
	c.mu.Unlock()

	if c.out != nil {
		c.out.MoveServo(AxisTilt, cmd, TiltOutputMin, TiltOutputMax)
	}
	return cmd
}

func (c *Controller) rcTilt() int32 {
	if c.rcChannel == 0 || c.src.RC == nil {
		return DefaultRCTilt
	}
	in, ok := c.src.RC.RCInput(c.rcChannel)
	if !ok {
		return DefaultRCTilt
	}
	return AngleInput(in, c.limits)
}

// SetMode selects the mount mode. Only GPS_POINT is kept as requested;
// every other value selects RC_TARGETING. The ROI is left untouched.
func (c *Controller) SetMode(m Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setModeLocked(m)
}

func (c *Controller) setModeLocked(m Mode) {
	next := m.normalize()
	if next != c.mode {
		debug.Mode(c.mode, next)
	}
	c.mode = next
}

// SetROI stores the point to track and switches to GPS_POINT.
func (c *Controller) SetROI(p r3.Vector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roi = p
	c.setModeLocked(ModeGPSPoint)
	debug.Info("ROI set to (%.2f, %.2f, %.2f)", p.X, p.Y, p.Z)
}

// ROIFromTilt returns the ground point the mount currently looks at,
// derived from the current tilt, position and heading. It does not change the ROI.
func (c *Controller) ROIFromTilt() r3.Vector {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roiFromTiltLocked()
}

func (c *Controller) roiFromTiltLocked() r3.Vector {
	var pos r3.Vector
	if c.src.Position != nil {
		pos = c.src.Position.Position()
	}
	sinYaw, cosYaw := 0.0, 1.0
	if c.src.Orientation != nil {
		sinYaw, cosYaw = c.src.Orientation.Heading()
	}
	roi := TargetFromTilt(c.tilt, pos, sinYaw, cosYaw)
	debug.Verbose("ROI from tilt %d cd at (%.2f, %.2f, %.2f), yaw sin=%.3f cos=%.3f -> (%.2f, %.2f)",
		c.tilt, pos.X, pos.Y, pos.Z, sinYaw, cosYaw, roi.X, roi.Y)
	return roi
}

// ArmTracking seeds the ROI from where the mount points now and switches to
// GPS_POINT, so tracking starts without a jump. Returns the seeded ROI.
func (c *Controller) ArmTracking() r3.Vector {
	c.mu.Lock()
	defer c.mu.Unlock()
	roi := c.roiFromTiltLocked()
	c.roi = roi
	c.setModeLocked(ModeGPSPoint)
	debug.Info("Tracking armed at (%.2f, %.2f, %.2f)", roi.X, roi.Y, roi.Z)
	return roi
}

// SetLimits replaces the RC mapping limits.
func (c *Controller) SetLimits(l AngleLimits) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.limits = l
}

// SetRCChannel selects the RC channel driving the tilt (0 = none).
func (c *Controller) SetRCChannel(ch int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rcChannel = ch
}

// Mode returns the current mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Tilt returns the last computed tilt in centidegrees (before output clamping).
func (c *Controller) Tilt() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tilt
}

// ROI returns the stored target point.
func (c *Controller) ROI() r3.Vector {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roi
}

// Limits returns the RC mapping limits.
func (c *Controller) Limits() AngleLimits {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.limits
}

// RCChannel returns the configured RC channel (0 = none).
func (c *Controller) RCChannel() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rcChannel
}
