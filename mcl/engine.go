package mcl

import (
	"math"

	exprand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ParticleFilterEngine is the contract the orchestrator consumes: sample
// storage handed out for one integration pass at a time, resampling, a
// convergence signal that ends global localization, and free-space
// reinitialization for starting it.
type ParticleFilterEngine interface {
	Samples() *SampleSet
	Resample()
	Converged() bool
	InitializeFromFreeSpace(field *DistanceField, n int)
}

// PoseEstimate is the weighted mean pose of the population with its
// positional covariance and heading spread.
type PoseEstimate struct {
	Pose          Pose    `json:"pose"`
	CovXX         float64 `json:"covXX"`
	CovXY         float64 `json:"covXY"`
	CovYY         float64 `json:"covYY"`
	HeadingSpread float64 `json:"headingSpread"`
}

// Filter is a fixed-population particle filter engine: low-variance
// resampling, weighted pose statistics, and a positional-spread convergence
// test.
type Filter struct {
	set            SampleSet
	src            *exprand.Rand
	convergeRadius float64

	scratch    []Particle
	xs, ys, ws []float64
}

// NewFilter creates an engine with n particles at the origin. The seed
// drives every random draw the engine makes, so runs are reproducible.
func NewFilter(n int, convergeRadius float64, seed uint64) *Filter {
	f := &Filter{
		src:            exprand.New(exprand.NewSource(seed)),
		convergeRadius: convergeRadius,
	}
	f.set.Particles = make([]Particle, n)
	w := 1.0 / float64(n)
	for i := range f.set.Particles {
		f.set.Particles[i].Weight = w
	}
	return f
}

// Samples exposes the current population for one integration pass.
func (f *Filter) Samples() *SampleSet {
	return &f.set
}

// InitializePose concentrates the population around a known pose with
// Gaussian position and heading noise.
func (f *Filter) InitializePose(p Pose, stdXY, stdHeading float64) {
	nx := distuv.Normal{Mu: p.X, Sigma: stdXY, Src: f.src}
	ny := distuv.Normal{Mu: p.Y, Sigma: stdXY, Src: f.src}
	nh := distuv.Normal{Mu: p.Heading, Sigma: stdHeading, Src: f.src}
	w := 1.0 / float64(len(f.set.Particles))
	for i := range f.set.Particles {
		f.set.Particles[i] = Particle{
			Pose: Pose{
				X:       nx.Rand(),
				Y:       ny.Rand(),
				Heading: NormalizeHeading(nh.Rand()),
			},
			Weight: w,
		}
	}
}

// InitializeFromFreeSpace spreads n particles uniformly over the map's
// free-space cells with uniform headings. This is the sampling step of
// global localization.
func (f *Filter) InitializeFromFreeSpace(field *DistanceField, n int) {
	cells := field.FreeCells()
	if len(cells) == 0 || n <= 0 {
		return
	}
	half := field.Resolution() / 2
	jitter := distuv.Uniform{Min: -half, Max: half, Src: f.src}
	heading := distuv.Uniform{Min: -math.Pi, Max: math.Pi, Src: f.src}

	if cap(f.set.Particles) < n {
		f.set.Particles = make([]Particle, n)
	} else {
		f.set.Particles = f.set.Particles[:n]
	}
	w := 1.0 / float64(n)
	for i := range f.set.Particles {
		c := cells[f.src.Intn(len(cells))]
		f.set.Particles[i] = Particle{
			Pose: Pose{
				X:       c[0] + jitter.Rand(),
				Y:       c[1] + jitter.Rand(),
				Heading: heading.Rand(),
			},
			Weight: w,
		}
	}
}

// Resample redraws the population proportional to weight using the
// low-variance (systematic) sampler, then resets weights to uniform.
func (f *Filter) Resample() {
	n := len(f.set.Particles)
	if n == 0 {
		return
	}
	total := f.set.TotalWeight()
	if total <= 0 {
		return
	}

	if cap(f.scratch) < n {
		f.scratch = make([]Particle, n)
	} else {
		f.scratch = f.scratch[:n]
	}

	step := total / float64(n)
	u := distuv.Uniform{Min: 0, Max: step, Src: f.src}.Rand()
	cum := f.set.Particles[0].Weight
	j := 0
	w := 1.0 / float64(n)
	for i := 0; i < n; i++ {
		target := u + float64(i)*step
		for cum < target && j < n-1 {
			j++
			cum += f.set.Particles[j].Weight
		}
		f.scratch[i] = Particle{Pose: f.set.Particles[j].Pose, Weight: w}
	}
	f.set.Particles, f.scratch = f.scratch, f.set.Particles
}

// Estimate returns the weighted mean pose and spread of the population.
// Heading is averaged circularly.
func (f *Filter) Estimate() PoseEstimate {
	n := len(f.set.Particles)
	if n == 0 {
		return PoseEstimate{}
	}
	f.growStats(n)
	var sinSum, cosSum float64
	for i, p := range f.set.Particles {
		f.xs[i] = p.Pose.X
		f.ys[i] = p.Pose.Y
		f.ws[i] = p.Weight
		sinSum += p.Weight * math.Sin(p.Pose.Heading)
		cosSum += p.Weight * math.Cos(p.Pose.Heading)
	}
	if floats.Sum(f.ws) <= 0 {
		// Degenerate weights: fall back to the unweighted population mean.
		for i := range f.ws {
			f.ws[i] = 1
		}
		sinSum, cosSum = 0, 0
		for _, p := range f.set.Particles {
			sinSum += math.Sin(p.Pose.Heading)
			cosSum += math.Cos(p.Pose.Heading)
		}
	}

	est := PoseEstimate{
		Pose: Pose{
			X:       stat.Mean(f.xs, f.ws),
			Y:       stat.Mean(f.ys, f.ws),
			Heading: math.Atan2(sinSum, cosSum),
		},
		CovXX: stat.Covariance(f.xs, f.xs, f.ws),
		CovXY: stat.Covariance(f.xs, f.ys, f.ws),
		CovYY: stat.Covariance(f.ys, f.ys, f.ws),
	}
	// Circular spread: 1-R, where R is the mean resultant length.
	wTotal := floats.Sum(f.ws)
	r := math.Hypot(sinSum, cosSum) / wTotal
	est.HeadingSpread = 1 - math.Min(r, 1)
	return est
}

// Converged reports whether the population has collapsed to a single
// positional mode: every axis' weighted standard deviation is inside the
// convergence radius.
func (f *Filter) Converged() bool {
	if f.convergeRadius <= 0 {
		return false
	}
	est := f.Estimate()
	return math.Sqrt(math.Max(est.CovXX, 0)) < f.convergeRadius &&
		math.Sqrt(math.Max(est.CovYY, 0)) < f.convergeRadius
}

func (f *Filter) growStats(n int) {
	if cap(f.xs) < n {
		f.xs = make([]float64, n)
		f.ys = make([]float64, n)
		f.ws = make([]float64, n)
	} else {
		f.xs = f.xs[:n]
		f.ys = f.ys[:n]
		f.ws = f.ws[:n]
	}
}
