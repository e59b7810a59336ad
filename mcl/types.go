package mcl

import "time"

// Pose is a 2D robot pose: position in meters plus heading in radians.
type Pose struct {
	X       float64 `yaml:"x" json:"x"`
	Y       float64 `yaml:"y" json:"y"`
	Heading float64 `yaml:"heading" json:"heading"`
}

// Particle is one pose hypothesis with an associated non-negative weight.
// The sensor model rewrites the weight; only the filter engine moves the pose.
type Particle struct {
	Pose   Pose    `json:"pose"`
	Weight float64 `json:"weight"`
}

// SampleSet is the ordered particle population representing the current
// belief over robot pose. It is owned by the filter engine; the sensor model
// receives it for exactly one integration pass.
type SampleSet struct {
	Particles []Particle
}

// TotalWeight returns the sum of all particle weights.
func (s *SampleSet) TotalWeight() float64 {
	total := 0.0
	for i := range s.Particles {
		total += s.Particles[i].Weight
	}
	return total
}

// Normalize divides every weight by the given total. A total of zero leaves
// the set untouched.
func (s *SampleSet) Normalize(total float64) {
	if total <= 0 {
		return
	}
	for i := range s.Particles {
		s.Particles[i].Weight /= total
	}
}

// Reading is a single range return: distance in meters plus bearing in
// radians relative to the sensor frame.
type Reading struct {
	Range   float64 `json:"range"`
	Bearing float64 `json:"bearing"`
}

// RangeScan is one captured scan. Immutable once constructed.
type RangeScan struct {
	Ranges   []Reading `json:"ranges"`
	RangeMax float64   `json:"rangeMax"`
	// SensorPose is the scanner's offset relative to the robot base frame,
	// resolved through the TransformSource when the scanner is first seen.
	SensorPose Pose      `json:"sensorPose"`
	FrameID    string    `json:"frameId"`
	Stamp      time.Time `json:"stamp"`
}

// ModelType selects which of the four likelihood algorithms scores a scan.
type ModelType string

const (
	ModelBeam                    ModelType = "beam"
	ModelLikelihoodField         ModelType = "likelihood_field"
	ModelLikelihoodFieldProb     ModelType = "likelihood_field_prob"
	ModelLikelihoodFieldGompertz ModelType = "likelihood_field_gompertz"
)

// Valid reports whether t names a known model.
func (t ModelType) Valid() bool {
	switch t {
	case ModelBeam, ModelLikelihoodField, ModelLikelihoodFieldProb, ModelLikelihoodFieldGompertz:
		return true
	}
	return false
}

// ScannerConfig carries every tunable of the sensor model. One instance is
// installed as an immutable snapshot; reconfiguration replaces the snapshot
// rather than mutating it in place.
type ScannerConfig struct {
	Model ModelType `yaml:"model" json:"model"`

	// Mixture weights. Documented to sum to 1; not enforced.
	ZHit   float64 `yaml:"zHit" json:"zHit"`
	ZShort float64 `yaml:"zShort" json:"zShort"`
	ZMax   float64 `yaml:"zMax" json:"zMax"`
	ZRand  float64 `yaml:"zRand" json:"zRand"`

	SigmaHit    float64 `yaml:"sigmaHit" json:"sigmaHit"`
	LambdaShort float64 `yaml:"lambdaShort" json:"lambdaShort"`

	// MaxOccDist clamps distance-field lookups, in meters.
	MaxOccDist float64 `yaml:"maxOccDist" json:"maxOccDist"`

	// MaxBeams caps how many beams of a scan are scored. Beams are chosen by
	// a fixed stride so the subsampling is reproducible for identical scans.
	MaxBeams int `yaml:"maxBeams" json:"maxBeams"`

	// Gompertz reshaping parameters (likelihood_field_gompertz model).
	GompertzA           float64 `yaml:"gompertzA" json:"gompertzA"`
	GompertzB           float64 `yaml:"gompertzB" json:"gompertzB"`
	GompertzC           float64 `yaml:"gompertzC" json:"gompertzC"`
	GompertzInputShift  float64 `yaml:"gompertzInputShift" json:"gompertzInputShift"`
	GompertzInputScale  float64 `yaml:"gompertzInputScale" json:"gompertzInputScale"`
	GompertzOutputShift float64 `yaml:"gompertzOutputShift" json:"gompertzOutputShift"`

	// Beam skipping (likelihood_field_prob model only).
	DoBeamSkip             bool    `yaml:"doBeamSkip" json:"doBeamSkip"`
	BeamSkipDistance       float64 `yaml:"beamSkipDistance" json:"beamSkipDistance"`
	BeamSkipThreshold      float64 `yaml:"beamSkipThreshold" json:"beamSkipThreshold"`
	BeamSkipErrorThreshold float64 `yaml:"beamSkipErrorThreshold" json:"beamSkipErrorThreshold"`
}

// DefaultScannerConfig returns the scanner tuning bound to a newly seen
// sensor frame before any reconfiguration arrives.
func DefaultScannerConfig() ScannerConfig {
	return ScannerConfig{
		Model:                  ModelLikelihoodField,
		ZHit:                   0.95,
		ZShort:                 0.1,
		ZMax:                   0.05,
		ZRand:                  0.05,
		SigmaHit:               0.2,
		LambdaShort:            0.1,
		MaxOccDist:             2.0,
		MaxBeams:               60,
		GompertzA:              1.0,
		GompertzB:              1.0,
		GompertzC:              1.0,
		GompertzInputShift:     0.0,
		GompertzInputScale:     1.0,
		GompertzOutputShift:    0.0,
		DoBeamSkip:             false,
		BeamSkipDistance:       0.5,
		BeamSkipThreshold:      0.3,
		BeamSkipErrorThreshold: 0.9,
	}
}

// MapFactors holds the map-boundary and free-space weighting policy.
type MapFactors struct {
	// OffMapFactor multiplies a sample's weight when its pose lies outside
	// the map bounds. Expected in (0, 1].
	OffMapFactor float64 `yaml:"offMapFactor" json:"offMapFactor"`
	// NonFreeSpaceFactor is the base penalty for a pose inside the map but
	// not in free space.
	NonFreeSpaceFactor float64 `yaml:"nonFreeSpaceFactor" json:"nonFreeSpaceFactor"`
	// NonFreeSpaceRadius is the interpolation radius in meters over which the
	// penalty relaxes back to 1.0.
	NonFreeSpaceRadius float64 `yaml:"nonFreeSpaceRadius" json:"nonFreeSpaceRadius"`
}

// DefaultMapFactors returns the tracking-mode weighting policy.
func DefaultMapFactors() MapFactors {
	return MapFactors{
		OffMapFactor:       0.001,
		NonFreeSpaceFactor: 0.1,
		NonFreeSpaceRadius: 0.3,
	}
}

// EventKind classifies a degraded-but-nonfatal condition report.
type EventKind string

const (
	// EventDegradedUpdate: every hypothesis scored zero against a scan; the
	// resample was skipped and the prior distribution preserved.
	EventDegradedUpdate EventKind = "degraded_update"
	// EventBeamSkipFallback: the skipped-beam fraction exceeded the error
	// threshold, so the scan was reintegrated with skipping disabled.
	EventBeamSkipFallback EventKind = "beam_skip_fallback"
	// EventStaleScan: the watchdog saw no scan within the check interval.
	EventStaleScan EventKind = "stale_scan"
	// EventTransformTimeout: a sensor frame's pose could not be resolved
	// within the bounded wait; the scan was dropped.
	EventTransformTimeout EventKind = "transform_timeout"
)

// Event is a degraded-condition report emitted by the orchestrator.
type Event struct {
	Kind    EventKind `json:"kind"`
	FrameID string    `json:"frameId,omitempty"`
	Detail  string    `json:"detail"`
	Stamp   time.Time `json:"stamp"`
}

// EventHandler receives degraded-condition reports. Handlers run on the
// event-processing goroutine and must not block.
type EventHandler func(Event)
