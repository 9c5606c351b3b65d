package gimbal

import "testing"

var testLimits = AngleLimits{Min: -4500, Max: 4500}

func TestAngleInput_Endpoints(t *testing.T) {
	cases := []struct {
		name string
		raw  int16
		want int32
	}{
		{"radio_min", 1100, -4500},
		{"radio_mid", 1500, 0},
		{"radio_max", 1900, 4500},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := AngleInput(RCInput{Raw: tc.raw, Min: 1100, Max: 1900}, testLimits)
			if got != tc.want {
				t.Errorf("AngleInput(%d) = %d, want %d", tc.raw, got, tc.want)
			}
		})
	}
}

func TestAngleInput_Reversed(t *testing.T) {
	cases := []struct {
		name string
		raw  int16
		want int32
	}{
		{"radio_min", 1100, 4500},
		{"radio_mid", 1500, 0},
		{"radio_max", 1900, -4500},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := AngleInput(RCInput{Raw: tc.raw, Min: 1100, Max: 1900, Reversed: true}, testLimits)
			if got != tc.want {
				t.Errorf("AngleInput(%d, reversed) = %d, want %d", tc.raw, got, tc.want)
			}
		})
	}
}

// 9000 cd over 800 us is 11.25 cd/us; division truncates toward zero.
func TestAngleInput_TruncatesTowardZero(t *testing.T) {
	got := AngleInput(RCInput{Raw: 1101, Min: 1100, Max: 1900}, testLimits)
	if got != -4489 {
		t.Errorf("forward: got %d, want -4489", got)
	}

	got = AngleInput(RCInput{Raw: 1101, Min: 1100, Max: 1900, Reversed: true}, testLimits)
	if got != 4489 {
		t.Errorf("reversed: got %d, want 4489 (-11.25 truncates to -11)", got)
	}
}

func TestAngleInput_AsymmetricLimits(t *testing.T) {
	limits := AngleLimits{Min: 0, Max: 9000}
	in := RCInput{Min: 1000, Max: 2000}

	in.Raw = 1000
	if got := AngleInput(in, limits); got != 0 {
		t.Errorf("min: got %d, want 0", got)
	}
	in.Raw = 2000
	if got := AngleInput(in, limits); got != 9000 {
		t.Errorf("max: got %d, want 9000", got)
	}
	in.Raw = 1333
	if got := AngleInput(in, limits); got != 2997 {
		t.Errorf("1333: got %d, want 2997", got)
	}
}

func TestAngleInput_ExtremeLimitsNoOverflow(t *testing.T) {
	limits := AngleLimits{Min: AngleLimitMin, Max: AngleLimitMax}
	in := RCInput{Raw: 2200, Min: 800, Max: 2200}
	if got := AngleInput(in, limits); got != AngleLimitMax {
		t.Errorf("got %d, want %d", got, AngleLimitMax)
	}
}

func TestAngleInput_ZeroRangeReturnsOffset(t *testing.T) {
	in := RCInput{Raw: 1500, Min: 1500, Max: 1500}
	if got := AngleInput(in, testLimits); got != -4500 {
		t.Errorf("got %d, want angle min -4500", got)
	}
	in.Reversed = true
	if got := AngleInput(in, testLimits); got != 4500 {
		t.Errorf("reversed: got %d, want angle max 4500", got)
	}
}

func TestAngleInput_Monotonic(t *testing.T) {
	in := RCInput{Min: 1100, Max: 1900}
	prev := AngleInput(RCInput{Raw: 1100, Min: 1100, Max: 1900}, testLimits)
	for raw := int16(1101); raw <= 1900; raw++ {
		in.Raw = raw
		got := AngleInput(in, testLimits)
		if got < prev {
			t.Fatalf("AngleInput not monotonic at raw=%d: %d < %d", raw, got, prev)
		}
		prev = got
	}
}
