// Package servo drives the mount's hobby servo from a centidegree command.
package servo

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/TiltGo/internal/debug"
	"github.com/cjeanneret/TiltGo/internal/hw/gpio"
	"github.com/cjeanneret/TiltGo/internal/logic/gimbal"
)

// Servo frame: 50 Hz, pulse width counted in microseconds.
const (
	FrameHz = 50
	CycleUs = 1000000 / FrameHz
)

// Config holds the hardware configuration for the tilt servo.
type Config struct {
	Pin        int  // BCM pin with hardware PWM (12, 13, 18 or 19)
	PulseMinUs int  // pulse at the low end of the commanded range. 0 = 1000.
	PulseMaxUs int  // pulse at the high end. 0 = 2000.
	Reversed   bool // swap pulse ends
}

// Output maps mount axis commands to PWM pulses. Only the tilt axis is wired.
type Output struct {
	gpio gpio.Driver
	cfg  Config

	mu        sync.Mutex
	lastPulse uint32
	lastErr   error
}

// NewOutput sets up the PWM pin and returns the tilt servo output.
func NewOutput(g gpio.Driver, cfg Config) (*Output, error) {
	if cfg.PulseMinUs <= 0 {
		cfg.PulseMinUs = 1000
	}
	if cfg.PulseMaxUs <= 0 {
		cfg.PulseMaxUs = 2000
	}
	if cfg.PulseMinUs == cfg.PulseMaxUs {
		return nil, fmt.Errorf("servo pulse range is empty (%d us)", cfg.PulseMinUs)
	}
	if cfg.PulseMaxUs >= CycleUs {
		return nil, fmt.Errorf("servo pulse %d us does not fit a %d us frame", cfg.PulseMaxUs, CycleUs)
	}

	// One PWM tick per microsecond.
	if err := g.SetupPWM(cfg.Pin, FrameHz*CycleUs); err != nil {
		return nil, fmt.Errorf("setup servo PWM: %w", err)
	}

	return &Output{gpio: g, cfg: cfg}, nil
}

// PulseFor maps value in [min, max] linearly onto the configured pulse range.
// value is clamped first; an empty range yields the low pulse.
func (o *Output) PulseFor(value, min, max int32) uint32 {
	if value < min {
		value = min
	}
	if value > max {
		value = max
	}

	lo, hi := int64(o.cfg.PulseMinUs), int64(o.cfg.PulseMaxUs)
	if o.cfg.Reversed {
		lo, hi = hi, lo
	}
	if max == min {
		return uint32(lo)
	}
	return uint32(lo + (int64(value)-int64(min))*(hi-lo)/(int64(max)-int64(min)))
}

// MoveServo implements gimbal.Actuator. Write errors are logged and kept
// for Err; the control loop never stops on them.
func (o *Output) MoveServo(axis gimbal.Axis, value, min, max int32) {
	if axis != gimbal.AxisTilt {
		debug.Trace("servo: no output for %s axis", axis)
		return
	}

	pulse := o.PulseFor(value, min, max)

	o.mu.Lock()
	defer o.mu.Unlock()
	if pulse == o.lastPulse && o.lastErr == nil {
		return
	}
	if err := o.gpio.WritePWM(o.cfg.Pin, pulse, CycleUs); err != nil {
		o.lastErr = fmt.Errorf("write tilt pulse %d us: %w", pulse, err)
		debug.Error(o.lastErr)
		return
	}
	o.lastPulse = pulse
	o.lastErr = nil
	debug.Trace("servo: %s %d cd -> %d us", axis, value, pulse)
}

// Err returns the last write error, or nil once a write succeeded again.
func (o *Output) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// Pulse returns the last pulse written, in microseconds.
func (o *Output) Pulse() uint32 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastPulse
}

var _ gimbal.Actuator = (*Output)(nil)
