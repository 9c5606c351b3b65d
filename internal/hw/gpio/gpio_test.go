package gpio

import "testing"

func TestIsPWMPin(t *testing.T) {
	for _, pin := range []int{12, 13, 18, 19} {
		if !IsPWMPin(pin) {
			t.Errorf("pin %d should support PWM", pin)
		}
	}
	for _, pin := range []int{0, 4, 17, 27} {
		if IsPWMPin(pin) {
			t.Errorf("pin %d should not support PWM", pin)
		}
	}
}

func TestMockDriver_PWM(t *testing.T) {
	drv, err := NewDriver(true)
	if err != nil {
		t.Fatalf("NewDriver(mock): %v", err)
	}
	defer drv.Close()

	if err := drv.SetupPWM(17, 1000000); err == nil {
		t.Error("expected error for non-PWM pin")
	}
	if err := drv.SetupPWM(18, 1000000); err != nil {
		t.Fatalf("SetupPWM(18): %v", err)
	}
	if err := drv.WritePWM(18, 1500, 20000); err != nil {
		t.Fatalf("WritePWM: %v", err)
	}

	mock := drv.(*MockDriver)
	if got := mock.Duty(18); got != 1500 {
		t.Errorf("Duty(18) = %d, want 1500", got)
	}
	if got := mock.Duty(12); got != 0 {
		t.Errorf("Duty(12) = %d, want 0", got)
	}
}

func TestMockDriver_WriteBeforeSetup(t *testing.T) {
	m := &MockDriver{}
	if err := m.WritePWM(18, 1500, 20000); err == nil {
		t.Error("expected error writing a pin that was not set up")
	}
}

func TestMockDriver_CloseZeroesOutputs(t *testing.T) {
	m := &MockDriver{}
	if err := m.SetupPWM(12, 1000000); err != nil {
		t.Fatalf("SetupPWM(12): %v", err)
	}
	if err := m.WritePWM(12, 1800, 20000); err != nil {
		t.Fatalf("WritePWM: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := m.Duty(12); got != 0 {
		t.Errorf("Duty(12) after Close = %d, want 0", got)
	}
}
