package gimbal

import (
	"math"

	"github.com/golang/geo/r3"
)

// Clamp applied to the tracking tilt, in radians: just above 0 up to 90°.
const (
	trackTiltMinRad = 0.01
	trackTiltMaxRad = 1.571
)

// Clamp applied to the tilt before projecting it back onto the ground (centidegrees).
// Outside this band tan() is too close to 0 or infinity for a usable distance.
const (
	projectTiltMin = 500
	projectTiltMax = 8000
)

// CentidegreesToRadians converts an angle in hundredths of a degree to radians.
func CentidegreesToRadians(cd float64) float64 {
	return cd * math.Pi / 18000.0
}

// RadiansToCentidegrees converts radians to hundredths of a degree.
func RadiansToCentidegrees(rad float64) float64 {
	return rad * 18000.0 / math.Pi
}

// TiltToTarget returns the tilt (centidegrees) that points the mount from
// position at target.
//
// Tilt = atan2(horizontal distance, vertical offset), clamped to
// [0.01, 1.571] rad so a target directly below or a vehicle sitting on the
// target never produces an exact 0 or a value past 90°.
func TiltToTarget(position, target r3.Vector) int32 {
	d := position.Sub(target)

	horizontal := math.Sqrt(math.Max(d.X*d.X+d.Y*d.Y, 0))
	tilt := math.Atan2(horizontal, d.Z)
	tilt = constrainFloat(tilt, trackTiltMinRad, trackTiltMaxRad)

	// 1.571 rad is 9001.07 cd; keep the stored value inside the output range.
	return constrainInt32(int32(RadiansToCentidegrees(tilt)), TiltOutputMin, TiltOutputMax)
}

// TargetFromTilt projects the current tilt onto the ground plane (z = 0)
// along the vehicle heading and returns the resulting point.
//
// There is no terrain model; the point is only as good as position.Z.
func TargetFromTilt(tilt int32, position r3.Vector, sinYaw, cosYaw float64) r3.Vector {
	cd := constrainInt32(tilt, projectTiltMin, projectTiltMax)
	distance := position.Z / math.Tan(CentidegreesToRadians(float64(cd)))

	return r3.Vector{
		X: position.X + cosYaw*distance,
		Y: position.Y + sinYaw*distance,
		Z: 0,
	}
}
