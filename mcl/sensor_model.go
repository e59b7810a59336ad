package mcl

import "math"

// SensorModel scores pose hypotheses against range scans. It owns reusable
// scratch storage for the per-sample/per-beam probabilities that beam
// skipping needs, resized only when required capacity grows, so the
// per-scan inner loop stays allocation-free.
type SensorModel struct {
	beamIdx   []int
	beamProbs []float64 // len samples*beams, row per sample
	beamValid []bool
	beamSkip  []bool
	distSum   []float64
	occSum    []float64
}

// NewSensorModel returns a sensor model with empty scratch storage.
func NewSensorModel() *SensorModel {
	return &SensorModel{}
}

// Score multiplies every sample's weight by the per-pose likelihood of the
// scan under the configured model, applying the map-factor policy, and
// returns the sum of the resulting weights. A total of 0.0 signals total
// model failure: every hypothesis scored zero probability against this scan.
// beamSkipFallback reports that the likelihood_field_prob model exceeded its
// skip-error threshold and reintegrated all beams unskipped.
func (m *SensorModel) Score(scan *RangeScan, set *SampleSet, cfg *ScannerConfig, field *DistanceField, factors MapFactors) (total float64, beamSkipFallback bool) {
	if len(scan.Ranges) == 0 || len(set.Particles) == 0 {
		return 0, false
	}
	m.selectBeams(scan, cfg.MaxBeams)

	switch cfg.Model {
	case ModelBeam:
		m.scoreBeamModel(scan, set, cfg, field, factors)
	case ModelLikelihoodFieldProb:
		beamSkipFallback = m.scoreLikelihoodFieldProb(scan, set, cfg, field, factors)
	case ModelLikelihoodFieldGompertz:
		m.scoreLikelihoodFieldGompertz(scan, set, cfg, field, factors)
	default:
		m.scoreLikelihoodField(scan, set, cfg, field, factors)
	}

	for i := range set.Particles {
		if w := set.Particles[i].Weight; w > 0 {
			total += w
		} else {
			set.Particles[i].Weight = 0
		}
	}
	return total, beamSkipFallback
}

// ScorePose computes the unnormalized sensor-model likelihood of a single
// candidate pose against a scan, independent of any sample set. Callers use
// it to compare relocalization candidates.
func (m *SensorModel) ScorePose(pose Pose, scan *RangeScan, cfg *ScannerConfig, field *DistanceField, factors MapFactors) float64 {
	one := SampleSet{Particles: []Particle{{Pose: pose, Weight: 1.0}}}
	total, _ := m.Score(scan, &one, cfg, field, factors)
	return total
}

// ApplyGompertz reshapes a probability through the configured Gompertz
// curve: a*exp(-b*exp(-c*(p+inputShift)*inputScale)) + outputShift. With
// valid shape parameters (a, b, c, inputScale > 0) the curve is monotonically
// non-decreasing, sharpening discrimination in the useful probability range.
func ApplyGompertz(cfg *ScannerConfig, p float64) float64 {
	shaped := cfg.GompertzA*math.Exp(-cfg.GompertzB*math.Exp(-cfg.GompertzC*(p+cfg.GompertzInputShift)*cfg.GompertzInputScale)) + cfg.GompertzOutputShift
	if shaped < 0 {
		return 0
	}
	return shaped
}

// selectBeams picks at most maxBeams beam indices by a fixed stride over the
// full beam array, so the subsampling is deterministic for identical scans.
func (m *SensorModel) selectBeams(scan *RangeScan, maxBeams int) {
	n := len(scan.Ranges)
	step := 1
	if maxBeams > 0 && n > maxBeams {
		step = n / maxBeams
	}
	m.beamIdx = m.beamIdx[:0]
	for i := 0; i < n; i += step {
		m.beamIdx = append(m.beamIdx, i)
		if maxBeams > 0 && len(m.beamIdx) == maxBeams {
			break
		}
	}
}

// gaussProb is the unnormalized Gaussian likelihood of a distance residual.
func gaussProb(z, sigma float64) float64 {
	return math.Exp(-z * z / (2 * sigma * sigma))
}

// beamUsable reports whether a reading carries information for the
// likelihood-field models: finite and strictly inside the valid range.
func beamUsable(r Reading, rangeMax float64) bool {
	return !math.IsNaN(r.Range) && r.Range >= 0 && r.Range < rangeMax
}

// scoreBeamModel applies the full mixture beam model: Gaussian around the
// ray-cast expected range, exponential short returns, max-range point mass,
// and a uniform noise floor. Per-beam probabilities combine as a product.
// Invalid beams contribute probability 1.
func (m *SensorModel) scoreBeamModel(scan *RangeScan, set *SampleSet, cfg *ScannerConfig, field *DistanceField, factors MapFactors) {
	for s := range set.Particles {
		sample := &set.Particles[s]
		pose := ComposePose(sample.Pose, scan.SensorPose)

		p := 1.0
		for _, i := range m.beamIdx {
			obs := scan.Ranges[i]
			if math.IsNaN(obs.Range) || obs.Range < 0 || obs.Range > scan.RangeMax {
				continue
			}
			expected := field.Raycast(pose.X, pose.Y, pose.Heading+obs.Bearing, scan.RangeMax)
			z := obs.Range - expected

			pz := cfg.ZHit * gaussProb(z, cfg.SigmaHit)
			if z < 0 {
				pz += cfg.ZShort * cfg.LambdaShort * math.Exp(-cfg.LambdaShort*obs.Range)
			}
			if obs.Range >= scan.RangeMax {
				pz += cfg.ZMax
			} else {
				pz += cfg.ZRand / scan.RangeMax
			}
			if pz > 1.0 {
				pz = 1.0
			}
			p *= pz
		}
		sample.Weight *= p * PoseFactor(field, sample.Pose, factors)
	}
}

// scoreLikelihoodField scores each beam endpoint by its distance to the
// nearest mapped obstacle. Per-beam probabilities combine as a product.
func (m *SensorModel) scoreLikelihoodField(scan *RangeScan, set *SampleSet, cfg *ScannerConfig, field *DistanceField, factors MapFactors) {
	for s := range set.Particles {
		sample := &set.Particles[s]
		pose := ComposePose(sample.Pose, scan.SensorPose)

		p := 1.0
		for _, i := range m.beamIdx {
			obs := scan.Ranges[i]
			if !beamUsable(obs, scan.RangeMax) {
				continue
			}
			x, y := BeamEndpoint(pose, obs)
			d := math.Min(field.OccDist(x, y), cfg.MaxOccDist)
			p *= cfg.ZHit*gaussProb(d, cfg.SigmaHit) + cfg.ZRand/scan.RangeMax
		}
		sample.Weight *= p * PoseFactor(field, sample.Pose, factors)
	}
}

// scoreLikelihoodFieldProb is the beam-skipping variant. Per-beam
// probabilities are cached in scratch storage, beams whose scan-wide mean
// occupancy likelihood falls below BeamSkipThreshold while their mean
// obstacle distance exceeds BeamSkipDistance are excluded, and the surviving
// beams aggregate as an average per pose. If the skipped fraction exceeds
// BeamSkipErrorThreshold, skipping is abandoned for this scan and every
// valid beam is reintegrated; the return value reports that fallback.
func (m *SensorModel) scoreLikelihoodFieldProb(scan *RangeScan, set *SampleSet, cfg *ScannerConfig, field *DistanceField, factors MapFactors) bool {
	ns := len(set.Particles)
	nb := len(m.beamIdx)
	m.growScratch(ns, nb)

	valid := 0
	for bi, i := range m.beamIdx {
		m.beamValid[bi] = beamUsable(scan.Ranges[i], scan.RangeMax)
		if m.beamValid[bi] {
			valid++
		}
	}
	if valid == 0 {
		return false
	}

	// First pass: cache per-sample/per-beam probabilities and accumulate the
	// scan-wide beam statistics the skip decision needs.
	for s := range set.Particles {
		pose := ComposePose(set.Particles[s].Pose, scan.SensorPose)
		row := m.beamProbs[s*nb : (s+1)*nb]
		for bi, i := range m.beamIdx {
			if !m.beamValid[bi] {
				row[bi] = 0
				continue
			}
			x, y := BeamEndpoint(pose, scan.Ranges[i])
			d := math.Min(field.OccDist(x, y), cfg.MaxOccDist)
			occ := gaussProb(d, cfg.SigmaHit)
			row[bi] = cfg.ZHit*occ + cfg.ZRand/scan.RangeMax
			m.distSum[bi] += d
			m.occSum[bi] += occ
		}
	}

	// Skip decision, uniform across the whole sample set so the update is
	// never torn: a beam drops out only when the population as a whole finds
	// its endpoint both implausible and far from any obstacle.
	skipped := 0
	for bi := range m.beamIdx {
		m.beamSkip[bi] = false
		if !cfg.DoBeamSkip || !m.beamValid[bi] {
			continue
		}
		meanOcc := m.occSum[bi] / float64(ns)
		meanDist := m.distSum[bi] / float64(ns)
		if meanOcc < cfg.BeamSkipThreshold && meanDist > cfg.BeamSkipDistance {
			m.beamSkip[bi] = true
			skipped++
		}
	}

	fallback := false
	if skipped > 0 && float64(skipped)/float64(valid) > cfg.BeamSkipErrorThreshold {
		fallback = true
		for bi := range m.beamSkip {
			m.beamSkip[bi] = false
		}
	}

	// Second pass: average the cached probabilities over integrated beams.
	for s := range set.Particles {
		sample := &set.Particles[s]
		row := m.beamProbs[s*nb : (s+1)*nb]
		sum := 0.0
		used := 0
		for bi := range m.beamIdx {
			if !m.beamValid[bi] || m.beamSkip[bi] {
				continue
			}
			sum += row[bi]
			used++
		}
		p := 1.0
		if used > 0 {
			p = sum / float64(used)
		}
		sample.Weight *= p * PoseFactor(field, sample.Pose, factors)
	}
	return fallback
}

// scoreLikelihoodFieldGompertz computes the same distance-based beam
// probabilities as the likelihood-field model, averages them per pose, and
// reshapes the result through the Gompertz curve.
func (m *SensorModel) scoreLikelihoodFieldGompertz(scan *RangeScan, set *SampleSet, cfg *ScannerConfig, field *DistanceField, factors MapFactors) {
	for s := range set.Particles {
		sample := &set.Particles[s]
		pose := ComposePose(sample.Pose, scan.SensorPose)

		sum := 0.0
		used := 0
		for _, i := range m.beamIdx {
			obs := scan.Ranges[i]
			if !beamUsable(obs, scan.RangeMax) {
				continue
			}
			x, y := BeamEndpoint(pose, obs)
			d := math.Min(field.OccDist(x, y), cfg.MaxOccDist)
			sum += cfg.ZHit*gaussProb(d, cfg.SigmaHit) + cfg.ZRand/scan.RangeMax
			used++
		}
		p := 1.0
		if used > 0 {
			p = ApplyGompertz(cfg, sum/float64(used))
		}
		sample.Weight *= p * PoseFactor(field, sample.Pose, factors)
	}
}

// growScratch resizes the scratch buffers, reallocating only when required
// capacity grows.
func (m *SensorModel) growScratch(samples, beams int) {
	if need := samples * beams; cap(m.beamProbs) < need {
		m.beamProbs = make([]float64, need)
	} else {
		m.beamProbs = m.beamProbs[:need]
	}
	if cap(m.beamValid) < beams {
		m.beamValid = make([]bool, beams)
		m.beamSkip = make([]bool, beams)
		m.distSum = make([]float64, beams)
		m.occSum = make([]float64, beams)
	} else {
		m.beamValid = m.beamValid[:beams]
		m.beamSkip = m.beamSkip[:beams]
		m.distSum = m.distSum[:beams]
		m.occSum = m.occSum[:beams]
	}
	for i := 0; i < beams; i++ {
		m.distSum[i] = 0
		m.occSum[i] = 0
	}
}
