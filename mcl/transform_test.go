package mcl

import (
	"math"
	"testing"
)

func TestNormalizeHeading(t *testing.T) {
	tests := []struct {
		name string
		rad  float64
		want float64
	}{
		{"zero", 0, 0},
		{"pi stays pi", math.Pi, math.Pi},
		{"negative pi wraps to pi", -math.Pi, math.Pi},
		{"full turn", 2 * math.Pi, 0},
		{"three half turns", 3 * math.Pi, math.Pi},
		{"small negative", -0.1, -0.1},
		{"past pi wraps negative", math.Pi + 0.5, -math.Pi + 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeHeading(tt.rad)
			if !almostEqual(got, tt.want) {
				t.Errorf("NormalizeHeading(%v) = %v, want %v", tt.rad, got, tt.want)
			}
		})
	}
}

func TestHeadingDiff(t *testing.T) {
	tests := []struct {
		name string
		a, b float64
		want float64
	}{
		{"identical", 1.0, 1.0, 0},
		{"simple difference", 1.0, 0.5, 0.5},
		{"wraps across pi", math.Pi - 0.1, -math.Pi + 0.1, -0.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HeadingDiff(tt.a, tt.b)
			if !almostEqual(got, tt.want) {
				t.Errorf("HeadingDiff(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestComposePose(t *testing.T) {
	tests := []struct {
		name  string
		base  Pose
		local Pose
		want  Pose
	}{
		{
			name:  "identity base",
			base:  Pose{},
			local: Pose{X: 1, Y: 2, Heading: 0.5},
			want:  Pose{X: 1, Y: 2, Heading: 0.5},
		},
		{
			name:  "translation only",
			base:  Pose{X: 10, Y: 20},
			local: Pose{X: 1, Y: 1},
			want:  Pose{X: 11, Y: 21},
		},
		{
			name:  "quarter turn rotates the offset",
			base:  Pose{X: 1, Y: 1, Heading: math.Pi / 2},
			local: Pose{X: 1, Y: 0},
			want:  Pose{X: 1, Y: 2, Heading: math.Pi / 2},
		},
		{
			name:  "headings add and wrap",
			base:  Pose{Heading: math.Pi},
			local: Pose{Heading: math.Pi},
			want:  Pose{Heading: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComposePose(tt.base, tt.local)
			if !almostEqual(got.X, tt.want.X) || !almostEqual(got.Y, tt.want.Y) || !almostEqual(got.Heading, tt.want.Heading) {
				t.Errorf("ComposePose() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestBeamEndpoint(t *testing.T) {
	sensor := Pose{X: 1, Y: 2, Heading: math.Pi / 2}
	x, y := BeamEndpoint(sensor, Reading{Range: 3, Bearing: 0})
	if !almostEqual(x, 1) || !almostEqual(y, 5) {
		t.Errorf("BeamEndpoint() = (%v, %v), want (1, 5)", x, y)
	}

	// Bearing rotates relative to the sensor heading.
	x, y = BeamEndpoint(sensor, Reading{Range: 3, Bearing: math.Pi / 2})
	if !almostEqual(x, -2) || !almostEqual(y, 2) {
		t.Errorf("BeamEndpoint() with bearing = (%v, %v), want (-2, 2)", x, y)
	}
}

func TestPoseDistance(t *testing.T) {
	a := Pose{X: 0, Y: 0, Heading: 1}
	b := Pose{X: 3, Y: 4, Heading: -2}
	if got := PoseDistance(a, b); !almostEqual(got, 5) {
		t.Errorf("PoseDistance() = %v, want 5 (heading must not contribute)", got)
	}
}
