package mcl

import "math"

// PoseFactor returns the multiplicative weight penalty for a candidate pose
// given the map. Poses outside the map bounds are scaled by OffMapFactor.
// Poses inside the bounds but in non-free space get an interpolated penalty
//
//	penalty = factor + (1-factor) * min(1, distToFreeSpace/radius)
//
// which relaxes to 1.0 at the radius boundary. Poses in free space are
// unpenalized.
func PoseFactor(field *DistanceField, pose Pose, factors MapFactors) float64 {
	if !field.Contains(pose.X, pose.Y) {
		return factors.OffMapFactor
	}
	if field.Occupancy(pose.X, pose.Y) == CellFree {
		return 1.0
	}
	if factors.NonFreeSpaceRadius <= 0 {
		return factors.NonFreeSpaceFactor
	}
	d := field.DistToFreeSpace(pose.X, pose.Y)
	frac := math.Min(1.0, d/factors.NonFreeSpaceRadius)
	return factors.NonFreeSpaceFactor + (1.0-factors.NonFreeSpaceFactor)*frac
}
