package mcl

import "math"

// NormalizeHeading wraps an angle in radians to the range (-pi, pi].
func NormalizeHeading(rad float64) float64 {
	rad = math.Mod(rad, 2*math.Pi)
	if rad <= -math.Pi {
		rad += 2 * math.Pi
	} else if rad > math.Pi {
		rad -= 2 * math.Pi
	}
	return rad
}

// HeadingDiff returns the smallest signed difference a-b in (-pi, pi].
func HeadingDiff(a, b float64) float64 {
	return NormalizeHeading(a - b)
}

// ComposePose expresses local (a pose in base's frame) in base's parent
// frame: rotate local by base's heading, then translate.
func ComposePose(base, local Pose) Pose {
	sin, cos := math.Sincos(base.Heading)
	return Pose{
		X:       base.X + local.X*cos - local.Y*sin,
		Y:       base.Y + local.X*sin + local.Y*cos,
		Heading: NormalizeHeading(base.Heading + local.Heading),
	}
}

// BeamEndpoint projects a single range reading from the sensor pose into the
// world frame. The sensor pose must already be in world coordinates.
func BeamEndpoint(sensor Pose, r Reading) (x, y float64) {
	sin, cos := math.Sincos(sensor.Heading + r.Bearing)
	return sensor.X + r.Range*cos, sensor.Y + r.Range*sin
}

// PoseDistance returns the Euclidean distance between two pose positions.
func PoseDistance(a, b Pose) float64 {
	dx := b.X - a.X
	dy := b.Y - a.Y
	return math.Sqrt(dx*dx + dy*dy)
}
