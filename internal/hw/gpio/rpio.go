package gpio

import (
	"fmt"

	"github.com/cjeanneret/TiltGo/internal/debug"
	"github.com/stianeikeland/go-rpio/v4"
)

// RPiDriver is the real implementation for Raspberry Pi using go-rpio.
type RPiDriver struct {
	pins map[int]rpio.Pin
}

// NewRPiRealDriver creates a real GPIO driver for Raspberry Pi.
// Hardware PWM needs /dev/mem, so it must run as root.
func NewRPiRealDriver() (*RPiDriver, error) {
	debug.Info("Initializing real GPIO driver (go-rpio)")

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}

	debug.Verbose("GPIO memory mapped successfully")

	return &RPiDriver{pins: make(map[int]rpio.Pin)}, nil
}

// setupPin switches pin to its PWM alternate function.
func (r *RPiDriver) setupPin(pin int) (rpio.Pin, error) {
	if !IsPWMPin(pin) {
		return 0, fmt.Errorf("pin %d has no hardware PWM", pin)
	}
	if p, ok := r.pins[pin]; ok {
		return p, nil
	}
	p := rpio.Pin(pin)
	p.Mode(rpio.Pwm)
	r.pins[pin] = p
	return p, nil
}

func (r *RPiDriver) SetupPWM(pin int, freqHz int) error {
	debug.GPIO("SetupPWM", pin, freqHz)
	p, err := r.setupPin(pin)
	if err != nil {
		return err
	}
	p.Freq(freqHz)
	return nil
}

func (r *RPiDriver) WritePWM(pin int, duty, cycle uint32) error {
	debug.GPIO("WritePWM", pin, fmt.Sprintf("%d/%d", duty, cycle))

	p, ok := r.pins[pin]
	if !ok {
		return fmt.Errorf("pin %d not set up for PWM", pin)
	}
	p.DutyCycle(duty, cycle)
	return nil
}

func (r *RPiDriver) Close() error {
	debug.Trace("GPIO Close (real driver)")

	// Stop PWM outputs and return pins to input (safe state)
	for pin, p := range r.pins {
		p.DutyCycle(0, 1)
		debug.Verbose("Resetting pin %d to input", pin)
		p.Input()
	}

	return rpio.Close()
}
