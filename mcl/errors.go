package mcl

import "errors"

// Error taxonomy for the perception core. None of these is fatal to the
// process; callers match with errors.Is and degrade per policy.
var (
	// ErrSensorDataInvalid: empty or malformed scan. The scan is discarded
	// with no state change.
	ErrSensorDataInvalid = errors.New("sensor data invalid")
	// ErrMapNotReady: a scan arrived before the first map. The scan is not
	// integrated.
	ErrMapNotReady = errors.New("map not ready")
	// ErrAllWeightsZero: the model found every hypothesis implausible. The
	// resample is skipped and the prior sample distribution preserved.
	ErrAllWeightsZero = errors.New("all sample weights zero")
	// ErrTransformUnavailable: a sensor frame's pose could not be resolved
	// within the bounded wait. The scan is dropped and retried on the next
	// arrival.
	ErrTransformUnavailable = errors.New("transform unavailable")
)
