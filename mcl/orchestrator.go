package mcl

import (
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/paulmach/orb"
)

// State names the orchestrator's position in its lifecycle.
type State string

const (
	StateWaitingForMap       State = "waiting_for_map"
	StateWaitingForFirstScan State = "waiting_for_first_scan"
	StateTracking            State = "tracking"
	StateGlobalLocalization  State = "global_localization"
)

// OrchestratorConfig carries the integration-cycle tunables. The YAML-facing
// form is CycleConfig.
type OrchestratorConfig struct {
	// ResampleInterval triggers a resample every Nth successful integration.
	// Zero or negative disables resampling entirely.
	ResampleInterval int
	// UpdateMinDistance / UpdateMinHeading: accumulated displacement since
	// the last integration that forces the next scan to be integrated.
	UpdateMinDistance float64
	UpdateMinHeading  float64
	// ScannerCheckInterval is the stale-scan watchdog threshold.
	ScannerCheckInterval time.Duration
	// TransformTimeout bounds the wait for a sensor frame's pose.
	TransformTimeout time.Duration
	// FirstMapOnly ignores map updates after the first.
	FirstMapOnly bool
	// GlobalLocalizationParticles sizes the free-space population when
	// global localization starts.
	GlobalLocalizationParticles int
	// GlobalFactors replaces the tracking map factors while global
	// localization is active; typically less punitive.
	GlobalFactors MapFactors
}

// DefaultOrchestratorConfig returns the integration-cycle defaults.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		ResampleInterval:            2,
		UpdateMinDistance:           0.2,
		UpdateMinHeading:            0.26,
		ScannerCheckInterval:        15 * time.Second,
		TransformTimeout:            2 * time.Second,
		GlobalLocalizationParticles: 2000,
		GlobalFactors: MapFactors{
			OffMapFactor:       0.5,
			NonFreeSpaceFactor: 0.5,
			NonFreeSpaceRadius: 0.3,
		},
	}
}

// scannerEntry is the per-sensor-frame state held in the registry. Entries
// are created at most once per distinct frame and persist for the process
// lifetime.
type scannerEntry struct {
	frameID     string
	sensorPose  Pose
	needsUpdate bool
}

// Orchestrator owns the perception-update cycle: it decides per incoming
// scan whether to integrate it, manages resample cadence and the stale-scan
// watchdog, and runs the operator-triggered global-relocalization mode.
// Scan, map, watchdog, and reconfiguration events are serialized by a single
// mutex; event handlers run inline and must not block.
type Orchestrator struct {
	mu sync.Mutex

	// Configuration snapshot. Readers take the current pointers under cfgMu
	// at the start of each event; Reconfigure installs fresh pointers and
	// never mutates a published snapshot in place.
	cfgMu      sync.Mutex
	scannerCfg *ScannerConfig
	factors    *MapFactors

	model      *SensorModel
	engine     ParticleFilterEngine
	transforms TransformSource
	events     EventHandler

	state            State
	field            *DistanceField
	boundsOverride   *orb.Bound
	firstMapReceived bool

	frameToHandle map[string]int
	scanners      []scannerEntry

	latestScan    *RangeScan
	latestScanAt  time.Time
	resampleCount int
	forceUpdate   bool
	accumDistance float64
	accumHeading  float64

	cycle OrchestratorConfig

	globalActive bool
}

// NewOrchestrator wires the perception core to its collaborators. A nil
// events handler discards reports.
func NewOrchestrator(engine ParticleFilterEngine, transforms TransformSource, cycle OrchestratorConfig, scannerCfg ScannerConfig, factors MapFactors, events EventHandler) *Orchestrator {
	if events == nil {
		events = func(Event) {}
	}
	return &Orchestrator{
		scannerCfg:    &scannerCfg,
		factors:       &factors,
		model:         NewSensorModel(),
		engine:        engine,
		transforms:    transforms,
		events:        events,
		state:         StateWaitingForMap,
		frameToHandle: make(map[string]int),
		cycle:         cycle,
	}
}

// SetBoundsOverride constrains the distance field built from future map
// updates, for map sources that cannot self-report usable bounds.
func (o *Orchestrator) SetBoundsOverride(b *orb.Bound) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.boundsOverride = b
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Field returns the current distance field, or nil before the first map.
func (o *Orchestrator) Field() *DistanceField {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.field
}

// snapshot returns the active configuration pair.
func (o *Orchestrator) snapshot() (*ScannerConfig, *MapFactors) {
	o.cfgMu.Lock()
	defer o.cfgMu.Unlock()
	return o.scannerCfg, o.factors
}

// Reconfigure atomically installs a new configuration snapshot. It takes
// effect on the next scan.
func (o *Orchestrator) Reconfigure(cfg ScannerConfig, factors MapFactors) error {
	if !cfg.Model.Valid() {
		return fmt.Errorf("unknown model type %q", cfg.Model)
	}
	o.cfgMu.Lock()
	defer o.cfgMu.Unlock()
	o.scannerCfg = &cfg
	o.factors = &factors
	return nil
}

// ActiveConfig returns a copy of the active configuration snapshot.
func (o *Orchestrator) ActiveConfig() (ScannerConfig, MapFactors) {
	cfg, factors := o.snapshot()
	return *cfg, *factors
}

// HandleMap rebuilds the distance field from a fresh occupancy grid and
// marks the filter ready. Every registered scanner is flagged for a forced
// integration so the new map takes effect immediately.
func (o *Orchestrator) HandleMap(grid *OccupancyGrid) error {
	cfg, _ := o.snapshot()

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cycle.FirstMapOnly && o.firstMapReceived {
		log.Printf("ignoring map update: firstMapOnly is set")
		return nil
	}

	field, err := BuildDistanceField(grid, cfg.MaxOccDist, o.boundsOverride)
	if err != nil {
		return fmt.Errorf("map update: %w", err)
	}
	o.field = field
	o.firstMapReceived = true
	for i := range o.scanners {
		o.scanners[i].needsUpdate = true
	}
	o.forceUpdate = true
	if o.state == StateWaitingForMap {
		o.state = StateWaitingForFirstScan
	}
	log.Printf("map updated: %d free cells, bounds %v", len(field.FreeCells()), field.Bounds())
	return nil
}

// ReportMotion accumulates the displacement applied by the external
// prediction step since the last integration. It drives the decision of
// whether the next scan is worth integrating.
func (o *Orchestrator) ReportMotion(delta Pose) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.accumDistance += PoseDistance(Pose{}, delta)
	o.accumHeading += NormalizeHeading(delta.Heading)
}

// RequestNoMotionUpdate forces the next scan to be integrated even though
// no motion occurred.
func (o *Orchestrator) RequestNoMotionUpdate() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.forceUpdate = true
}

// RequestGlobalLocalization replaces the sample set with a uniform
// distribution over free space and substitutes the global-localization map
// factors until the engine's convergence signal fires.
func (o *Orchestrator) RequestGlobalLocalization() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.field == nil {
		return ErrMapNotReady
	}
	o.engine.InitializeFromFreeSpace(o.field, o.cycle.GlobalLocalizationParticles)
	o.globalActive = true
	o.forceUpdate = true
	o.state = StateGlobalLocalization
	log.Printf("global localization started with %d particles", o.cycle.GlobalLocalizationParticles)
	return nil
}

// GlobalLocalizationActive reports whether relocalization mode is running.
func (o *Orchestrator) GlobalLocalizationActive() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.globalActive
}

// HandleScan runs one perception-update cycle for an incoming scan.
// Returns whether the scan was integrated into the filter. Degenerate
// outcomes surface as taxonomy errors, none of which is fatal.
func (o *Orchestrator) HandleScan(scan *RangeScan) (bool, error) {
	if scan == nil || len(scan.Ranges) == 0 || scan.RangeMax <= 0 {
		return false, fmt.Errorf("rejecting scan: %w", ErrSensorDataInvalid)
	}
	cfg, factors := o.snapshot()

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.field == nil {
		return false, fmt.Errorf("scan from %q arrived early: %w", scan.FrameID, ErrMapNotReady)
	}

	entry, err := o.resolveScanner(scan)
	if err != nil {
		o.events(Event{
			Kind:    EventTransformTimeout,
			FrameID: scan.FrameID,
			Detail:  err.Error(),
			Stamp:   time.Now(),
		})
		return false, err
	}

	bound := *scan
	bound.SensorPose = entry.sensorPose
	o.latestScan = &bound
	o.latestScanAt = time.Now()

	if !o.shouldIntegrate(entry) {
		return false, nil
	}

	if o.globalActive {
		factors = &o.cycle.GlobalFactors
	}

	set := o.engine.Samples()
	total, fallback := o.model.Score(&bound, set, cfg, o.field, *factors)
	if fallback {
		o.events(Event{
			Kind:    EventBeamSkipFallback,
			FrameID: scan.FrameID,
			Detail:  "skipped-beam fraction exceeded error threshold; scan reintegrated unskipped",
			Stamp:   time.Now(),
		})
	}

	if total <= 0 {
		// Total model failure: restore a uniform weighting so the prior pose
		// distribution survives, skip the resample, and report.
		n := len(set.Particles)
		if n > 0 {
			w := 1.0 / float64(n)
			for i := range set.Particles {
				set.Particles[i].Weight = w
			}
		}
		o.events(Event{
			Kind:    EventDegradedUpdate,
			FrameID: scan.FrameID,
			Detail:  "every pose scored zero probability against this scan",
			Stamp:   time.Now(),
		})
		return false, fmt.Errorf("scan from %q: %w", scan.FrameID, ErrAllWeightsZero)
	}

	set.Normalize(total)
	o.accumDistance = 0
	o.accumHeading = 0
	o.forceUpdate = false
	entry.needsUpdate = false
	if o.state == StateWaitingForFirstScan {
		o.state = StateTracking
	}

	o.resampleCount++
	if o.cycle.ResampleInterval > 0 && o.resampleCount >= o.cycle.ResampleInterval {
		o.engine.Resample()
		o.resampleCount = 0
	}

	if o.globalActive && o.engine.Converged() {
		o.globalActive = false
		o.state = StateTracking
		log.Printf("global localization converged, back to tracking")
	}
	return true, nil
}

// resolveScanner looks up the registry entry for a scan's source frame,
// creating one on first sight. Frames get a stable integer handle; scanner
// state lives in a dense slice indexed by it.
func (o *Orchestrator) resolveScanner(scan *RangeScan) (*scannerEntry, error) {
	if handle, ok := o.frameToHandle[scan.FrameID]; ok {
		return &o.scanners[handle], nil
	}
	pose, err := ResolveSensorPose(o.transforms, scan.FrameID, scan.Stamp, o.cycle.TransformTimeout)
	if err != nil {
		return nil, err
	}
	o.frameToHandle[scan.FrameID] = len(o.scanners)
	o.scanners = append(o.scanners, scannerEntry{
		frameID:     scan.FrameID,
		sensorPose:  pose,
		needsUpdate: true,
	})
	log.Printf("registered scanner frame %q at offset (%.3f, %.3f, %.3f)", scan.FrameID, pose.X, pose.Y, pose.Heading)
	return &o.scanners[len(o.scanners)-1], nil
}

// shouldIntegrate applies the per-scan integration policy.
func (o *Orchestrator) shouldIntegrate(entry *scannerEntry) bool {
	if o.state == StateWaitingForFirstScan {
		return true
	}
	if o.forceUpdate || entry.needsUpdate {
		return true
	}
	if o.cycle.UpdateMinDistance > 0 && o.accumDistance >= o.cycle.UpdateMinDistance {
		return true
	}
	if o.cycle.UpdateMinHeading > 0 && math.Abs(o.accumHeading) >= o.cycle.UpdateMinHeading {
		return true
	}
	return false
}

// CheckScanReceived is the stale-scan watchdog: call it periodically with
// the current time. Exceeding the check interval is reported, never fatal,
// and mutates no filter state.
func (o *Orchestrator) CheckScanReceived(now time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cycle.ScannerCheckInterval <= 0 || o.latestScanAt.IsZero() {
		return
	}
	if age := now.Sub(o.latestScanAt); age > o.cycle.ScannerCheckInterval {
		o.events(Event{
			Kind:   EventStaleScan,
			Detail: fmt.Sprintf("no scan received for %v (threshold %v)", age.Round(time.Millisecond), o.cycle.ScannerCheckInterval),
			Stamp:  now,
		})
	}
}

// ScorePose computes the sensor-model likelihood of one candidate pose
// against the latest scan, independent of the sample set. Callers use it to
// compare relocalization candidates.
func (o *Orchestrator) ScorePose(pose Pose) (float64, error) {
	cfg, factors := o.snapshot()

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.field == nil {
		return 0, ErrMapNotReady
	}
	if o.latestScan == nil {
		return 0, fmt.Errorf("no scan to score against: %w", ErrSensorDataInvalid)
	}
	if o.globalActive {
		factors = &o.cycle.GlobalFactors
	}
	return o.model.ScorePose(pose, o.latestScan, cfg, o.field, *factors), nil
}

// LatestScan returns the most recently received scan, integrated or not.
func (o *Orchestrator) LatestScan() *RangeScan {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.latestScan
}
