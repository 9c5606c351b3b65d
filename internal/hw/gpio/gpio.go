package gpio

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/TiltGo/internal/debug"
)

// Driver drives hardware PWM outputs. A real Raspberry Pi implementation
// and a mock for development on PC plug in behind it.
type Driver interface {
	// SetupPWM puts pin in hardware PWM mode clocked at freqHz.
	SetupPWM(pin int, freqHz int) error
	// WritePWM sets the high time to duty ticks out of a cycle of cycle ticks.
	WritePWM(pin int, duty, cycle uint32) error

	Close() error
}

// hardwarePWMPins are the BCM pins wired to the Raspberry Pi PWM peripheral.
var hardwarePWMPins = map[int]bool{
	12: true,
	13: true,
	18: true,
	19: true,
}

// IsPWMPin reports whether pin supports hardware PWM.
func IsPWMPin(pin int) bool {
	return hardwarePWMPins[pin]
}

// MockDriver is a test implementation that logs actions and keeps
// the last PWM duty per pin. Used for development on PC or testing.
type MockDriver struct {
	mu    sync.Mutex
	setup map[int]bool
	duty  map[int]uint32
}

// NewDriver creates a GPIO driver based on the chosen mode.
// If mock is true, returns a MockDriver (for dev/test).
// If mock is false, returns a real RPiDriver (for Raspberry Pi).
func NewDriver(mock bool) (Driver, error) {
	if mock {
		debug.Info("Using MOCK GPIO driver (development mode)")
		return &MockDriver{}, nil
	}
	return NewRPiRealDriver()
}

func (m *MockDriver) SetupPWM(pin int, freqHz int) error {
	debug.GPIO("SetupPWM", pin, freqHz)
	if !IsPWMPin(pin) {
		return fmt.Errorf("pin %d has no hardware PWM", pin)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setup == nil {
		m.setup = make(map[int]bool)
	}
	m.setup[pin] = true
	return nil
}

func (m *MockDriver) WritePWM(pin int, duty, cycle uint32) error {
	debug.GPIO("WritePWM", pin, fmt.Sprintf("%d/%d", duty, cycle))
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.setup[pin] {
		return fmt.Errorf("pin %d not set up for PWM", pin)
	}
	if m.duty == nil {
		m.duty = make(map[int]uint32)
	}
	m.duty[pin] = duty
	return nil
}

// Duty returns the last duty written to pin (0 if none).
func (m *MockDriver) Duty(pin int) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duty[pin]
}

// Close zeroes every PWM output, like the real driver.
func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	m.mu.Lock()
	defer m.mu.Unlock()
	for pin := range m.duty {
		m.duty[pin] = 0
	}
	return nil
}
