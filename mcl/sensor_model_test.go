package mcl

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wallScan returns a scan taken from the center of the standard test field:
// four beams straight at the four walls, each 0.95m (the wall cells start
// 0.9m out, so the endpoints land inside them).
func wallScan() *RangeScan {
	return &RangeScan{
		Ranges: []Reading{
			{Range: 0.95, Bearing: 0},
			{Range: 0.95, Bearing: math.Pi / 2},
			{Range: 0.95, Bearing: math.Pi},
			{Range: 0.95, Bearing: -math.Pi / 2},
		},
		RangeMax: 5.0,
		FrameID:  "laser",
	}
}

// airReading returns a beam that ends mid-air, far from any wall.
func airReading(bearing float64) Reading {
	return Reading{Range: 0.3, Bearing: bearing}
}

func TestApplyGompertzMonotone(t *testing.T) {
	cfg := DefaultScannerConfig()
	cfg.GompertzA = 1.0
	cfg.GompertzB = 4.0
	cfg.GompertzC = 8.0

	prev := ApplyGompertz(&cfg, 0)
	for p := 0.05; p <= 1.0; p += 0.05 {
		cur := ApplyGompertz(&cfg, p)
		if cur < prev {
			t.Fatalf("ApplyGompertz not monotone: f(%v) = %v < f(%v) = %v", p, cur, p-0.05, prev)
		}
		prev = cur
	}
}

func TestApplyGompertzClampsNegative(t *testing.T) {
	cfg := DefaultScannerConfig()
	cfg.GompertzOutputShift = -10
	if got := ApplyGompertz(&cfg, 0.5); got != 0 {
		t.Errorf("ApplyGompertz() = %v, want 0 for negative shaped output", got)
	}
}

func TestLikelihoodFieldPeaksAtTruePose(t *testing.T) {
	field := testField(t)
	cfg := DefaultScannerConfig()
	factors := DefaultMapFactors()
	scan := wallScan()
	model := NewSensorModel()

	truth := Pose{X: 1.0, Y: 1.0, Heading: 0}
	best := model.ScorePose(truth, scan, &cfg, field, factors)
	require.Greater(t, best, 0.0)

	offsets := []Pose{
		{X: 1.3, Y: 1.0},
		{X: 0.7, Y: 1.0},
		{X: 1.0, Y: 1.3},
		{X: 1.0, Y: 0.7},
		{X: 1.0, Y: 1.0, Heading: math.Pi / 4},
	}
	for _, p := range offsets {
		score := model.ScorePose(p, scan, &cfg, field, factors)
		assert.Less(t, score, best, "pose %+v should score below the true pose", p)
	}
}

func TestBeamModelPrefersTruePose(t *testing.T) {
	field := testField(t)
	cfg := DefaultScannerConfig()
	cfg.Model = ModelBeam
	factors := DefaultMapFactors()
	scan := wallScan()
	model := NewSensorModel()

	best := model.ScorePose(Pose{X: 1.0, Y: 1.0}, scan, &cfg, field, factors)
	off := model.ScorePose(Pose{X: 1.3, Y: 1.2}, scan, &cfg, field, factors)
	require.Greater(t, best, 0.0)
	assert.Less(t, off, best)
}

func TestGompertzModelPrefersTruePose(t *testing.T) {
	field := testField(t)
	cfg := DefaultScannerConfig()
	cfg.Model = ModelLikelihoodFieldGompertz
	cfg.GompertzB = 4.0
	cfg.GompertzC = 8.0
	factors := DefaultMapFactors()
	scan := wallScan()
	model := NewSensorModel()

	best := model.ScorePose(Pose{X: 1.0, Y: 1.0}, scan, &cfg, field, factors)
	off := model.ScorePose(Pose{X: 1.4, Y: 1.0}, scan, &cfg, field, factors)
	require.Greater(t, best, 0.0)
	assert.Less(t, off, best)
}

func TestScoreIsDeterministic(t *testing.T) {
	field := testField(t)
	cfg := DefaultScannerConfig()
	cfg.MaxBeams = 2 // force subsampling
	factors := DefaultMapFactors()
	scan := wallScan()
	model := NewSensorModel()

	first := model.ScorePose(Pose{X: 1.0, Y: 1.0}, scan, &cfg, field, factors)
	second := model.ScorePose(Pose{X: 1.0, Y: 1.0}, scan, &cfg, field, factors)
	assert.Equal(t, first, second, "identical scans must subsample identical beams")
}

func TestScoreRewritesWeightsAndReturnsTotal(t *testing.T) {
	field := testField(t)
	cfg := DefaultScannerConfig()
	factors := DefaultMapFactors()
	scan := wallScan()
	model := NewSensorModel()

	set := &SampleSet{Particles: []Particle{
		{Pose: Pose{X: 1.0, Y: 1.0}, Weight: 0.5},
		{Pose: Pose{X: 0.5, Y: 1.5}, Weight: 0.5},
	}}
	total, fallback := model.Score(scan, set, &cfg, field, factors)
	assert.False(t, fallback)
	require.Greater(t, total, 0.0)

	sum := 0.0
	for _, p := range set.Particles {
		assert.GreaterOrEqual(t, p.Weight, 0.0)
		sum += p.Weight
	}
	assert.InDelta(t, total, sum, 1e-12)
}

func TestScoreSkipsInvalidBeams(t *testing.T) {
	field := testField(t)
	cfg := DefaultScannerConfig()
	factors := DefaultMapFactors()
	model := NewSensorModel()

	clean := wallScan()
	noisy := wallScan()
	noisy.Ranges = append(noisy.Ranges,
		Reading{Range: math.NaN(), Bearing: 0.1},
		Reading{Range: 5.0, Bearing: 0.2}, // at RangeMax: no return
		Reading{Range: -1, Bearing: 0.3},
	)

	pose := Pose{X: 1.0, Y: 1.0}
	assert.Equal(t,
		model.ScorePose(pose, clean, &cfg, field, factors),
		model.ScorePose(pose, noisy, &cfg, field, factors),
		"NaN, max-range, and negative beams must not change the score")
}

func TestScoreAppliesMapFactors(t *testing.T) {
	field := testField(t)
	cfg := DefaultScannerConfig()
	factors := DefaultMapFactors()
	scan := wallScan()
	model := NewSensorModel()

	set := &SampleSet{Particles: []Particle{
		{Pose: Pose{X: 1.0, Y: 1.0}, Weight: 1.0},
		{Pose: Pose{X: -5.0, Y: -5.0}, Weight: 1.0},
	}}
	model.Score(scan, set, &cfg, field, factors)

	require.Greater(t, set.Particles[0].Weight, 0.0)
	ratio := set.Particles[1].Weight / set.Particles[0].Weight
	assert.LessOrEqual(t, ratio, factors.OffMapFactor*2,
		"an off-map particle must be scaled down by at least the off-map factor")
}

func TestScoreZeroMixtureYieldsZeroTotal(t *testing.T) {
	field := testField(t)
	cfg := DefaultScannerConfig()
	cfg.ZHit = 0
	cfg.ZRand = 0
	factors := DefaultMapFactors()
	model := NewSensorModel()

	set := &SampleSet{Particles: []Particle{{Pose: Pose{X: 1.0, Y: 1.0}, Weight: 1.0}}}
	total, _ := model.Score(wallScan(), set, &cfg, field, factors)
	assert.Equal(t, 0.0, total)
	assert.Equal(t, 0.0, set.Particles[0].Weight)
}

func TestBeamSkipExcludesImplausibleBeams(t *testing.T) {
	field := testField(t)
	factors := DefaultMapFactors()
	model := NewSensorModel()

	// Two beams on walls, two ending mid-air: the air beams are both
	// implausible (low occupancy likelihood) and far from obstacles, so
	// skipping drops them and the average rises.
	scan := &RangeScan{
		Ranges: []Reading{
			{Range: 0.95, Bearing: 0},
			{Range: 0.95, Bearing: math.Pi},
			airReading(math.Pi / 2),
			airReading(-math.Pi / 2),
		},
		RangeMax: 5.0,
		FrameID:  "laser",
	}
	pose := Pose{X: 1.0, Y: 1.0}

	skip := DefaultScannerConfig()
	skip.Model = ModelLikelihoodFieldProb
	skip.DoBeamSkip = true

	noSkip := skip
	noSkip.DoBeamSkip = false

	one := SampleSet{Particles: []Particle{{Pose: pose, Weight: 1.0}}}
	skipTotal, fallback := model.Score(scan, &one, &skip, field, factors)
	assert.False(t, fallback, "half the beams skipped is under the default error threshold")

	one = SampleSet{Particles: []Particle{{Pose: pose, Weight: 1.0}}}
	noSkipTotal, _ := model.Score(scan, &one, &noSkip, field, factors)

	assert.Greater(t, skipTotal, noSkipTotal,
		"skipping implausible beams should raise the averaged likelihood")
}

func TestBeamSkipFallbackWhenTooManySkipped(t *testing.T) {
	field := testField(t)
	factors := DefaultMapFactors()
	model := NewSensorModel()

	// One wall beam, nine air beams. With an error threshold of 0.5 the
	// skipped fraction (0.9) trips the fallback: the scan is reintegrated
	// with every valid beam.
	readings := []Reading{{Range: 0.95, Bearing: 0}}
	for i := 0; i < 9; i++ {
		readings = append(readings, airReading(0.3+0.1*float64(i)))
	}
	scan := &RangeScan{Ranges: readings, RangeMax: 5.0, FrameID: "laser"}
	pose := Pose{X: 1.0, Y: 1.0}

	cfg := DefaultScannerConfig()
	cfg.Model = ModelLikelihoodFieldProb
	cfg.DoBeamSkip = true
	cfg.BeamSkipErrorThreshold = 0.5

	one := SampleSet{Particles: []Particle{{Pose: pose, Weight: 1.0}}}
	total, fallback := model.Score(scan, &one, &cfg, field, factors)
	assert.True(t, fallback)

	noSkip := cfg
	noSkip.DoBeamSkip = false
	one = SampleSet{Particles: []Particle{{Pose: pose, Weight: 1.0}}}
	noSkipTotal, _ := model.Score(scan, &one, &noSkip, field, factors)

	assert.InDelta(t, noSkipTotal, total, 1e-12,
		"after fallback the score must match the unskipped integration")
}

func TestBeamSkipJustUnderErrorThreshold(t *testing.T) {
	field := testField(t)
	factors := DefaultMapFactors()
	model := NewSensorModel()

	// One wall beam, nine air beams, threshold 0.95: skipped fraction 0.9
	// stays under the threshold, so skipping holds and no fallback fires.
	readings := []Reading{{Range: 0.95, Bearing: 0}}
	for i := 0; i < 9; i++ {
		readings = append(readings, airReading(0.3+0.1*float64(i)))
	}
	scan := &RangeScan{Ranges: readings, RangeMax: 5.0, FrameID: "laser"}

	cfg := DefaultScannerConfig()
	cfg.Model = ModelLikelihoodFieldProb
	cfg.DoBeamSkip = true
	cfg.BeamSkipErrorThreshold = 0.95

	one := SampleSet{Particles: []Particle{{Pose: Pose{X: 1.0, Y: 1.0}, Weight: 1.0}}}
	_, fallback := model.Score(scan, &one, &cfg, field, factors)
	assert.False(t, fallback)
}

func TestSelectBeamsCapsCount(t *testing.T) {
	model := NewSensorModel()
	scan := &RangeScan{Ranges: make([]Reading, 360), RangeMax: 5.0}

	model.selectBeams(scan, 60)
	assert.Len(t, model.beamIdx, 60)
	// Fixed stride: evenly spread over the full array.
	assert.Equal(t, 0, model.beamIdx[0])
	assert.Equal(t, 6, model.beamIdx[1])

	model.selectBeams(scan, 0)
	assert.Len(t, model.beamIdx, 360, "no cap means every beam")
}
