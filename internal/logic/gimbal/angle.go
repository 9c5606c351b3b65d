package gimbal

// RCInput is one radio channel reading together with its calibration.
// Raw, Min and Max are pulse widths in microseconds as reported by the receiver.
type RCInput struct {
	Raw      int16
	Min      int16
	Max      int16
	Reversed bool
}

// AngleLimits bounds the travel of the RC mapping, in centidegrees.
// Both values must lie in [AngleLimitMin, AngleLimitMax]; Min < Max is assumed.
type AngleLimits struct {
	Min int16
	Max int16
}

// Configurable range of an angle limit (centidegrees).
const (
	AngleLimitMin = -18000
	AngleLimitMax = 17999
)

// DefaultAngleLimits is ±45° of travel.
var DefaultAngleLimits = AngleLimits{Min: -4500, Max: 4500}

// AngleInput maps a raw RC reading linearly onto [limits.Min, limits.Max].
//
//	angle = (raw - min) * (max_angle - min_angle) / (max - min) + min_angle
//
// With Reversed set the scaled term is negated and added to max_angle instead.
// All arithmetic is int32 and the division truncates toward zero, so results
// are not rounded to nearest: raw values between calibration points land on
// the lower-magnitude side.
//
// A zero calibration range (Min == Max) is a configuration error that the
// config package rejects; here it yields the offset instead of dividing by zero.
func AngleInput(in RCInput, limits AngleLimits) int32 {
	sign, offset := int32(1), int32(limits.Min)
	if in.Reversed {
		sign, offset = -1, int32(limits.Max)
	}

	span := int32(in.Max) - int32(in.Min)
	if span == 0 {
		return offset
	}

	travel := int32(limits.Max) - int32(limits.Min)
	return sign*(int32(in.Raw)-int32(in.Min))*travel/span + offset
}

func constrainInt32(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func constrainFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
