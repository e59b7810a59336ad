package mcl

import (
	"fmt"
	"time"
)

// TransformSource resolves a sensor frame's pose relative to the robot base
// at a given timestamp. Implementations may block while the transform
// becomes available; callers bound the wait with ResolveSensorPose.
type TransformSource interface {
	SensorPose(frameID string, stamp time.Time) (Pose, error)
}

// StaticTransforms is a TransformSource backed by a fixed frame-to-pose
// table, typically loaded from configuration for rigidly mounted scanners.
type StaticTransforms struct {
	poses map[string]Pose
}

// NewStaticTransforms builds a static transform table.
func NewStaticTransforms(poses map[string]Pose) *StaticTransforms {
	copied := make(map[string]Pose, len(poses))
	for k, v := range poses {
		copied[k] = v
	}
	return &StaticTransforms{poses: copied}
}

// SensorPose returns the configured pose for a frame, or
// ErrTransformUnavailable for frames the table does not know.
func (s *StaticTransforms) SensorPose(frameID string, _ time.Time) (Pose, error) {
	p, ok := s.poses[frameID]
	if !ok {
		return Pose{}, fmt.Errorf("frame %q: %w", frameID, ErrTransformUnavailable)
	}
	return p, nil
}

// ResolveSensorPose runs a transform lookup with a bounded wait. On timeout
// the lookup's eventual result is discarded and ErrTransformUnavailable is
// returned; the caller drops the scan and retries on the next arrival.
func ResolveSensorPose(src TransformSource, frameID string, stamp time.Time, timeout time.Duration) (Pose, error) {
	type result struct {
		pose Pose
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		p, err := src.SensorPose(frameID, stamp)
		ch <- result{p, err}
	}()

	if timeout <= 0 {
		r := <-ch
		return r.pose, r.err
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		return r.pose, r.err
	case <-timer.C:
		return Pose{}, fmt.Errorf("frame %q: lookup timed out after %v: %w", frameID, timeout, ErrTransformUnavailable)
	}
}
