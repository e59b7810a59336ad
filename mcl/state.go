package mcl

import (
	"sync"
	"time"
)

// maxTrackedEvents bounds the event ring buffer.
const maxTrackedEvents = 100

// StateTracker keeps the read-mostly view of the localization run for HTTP
// endpoints and publishers: the latest pose estimate, a particle snapshot,
// recent degraded-condition events, and cycle counters.
type StateTracker struct {
	mu           sync.RWMutex
	estimate     PoseEstimate
	estimateAt   time.Time
	hasEstimate  bool
	particles    []Particle
	events       []Event
	state        State
	scanCount    int64
	integrations int64
}

// NewStateTracker creates an empty tracker in the waiting-for-map state.
func NewStateTracker() *StateTracker {
	return &StateTracker{state: StateWaitingForMap}
}

// RecordEstimate stores the latest pose estimate and a copy of the particle
// population that produced it.
func (st *StateTracker) RecordEstimate(est PoseEstimate, particles []Particle) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.estimate = est
	st.estimateAt = time.Now()
	st.hasEstimate = true
	st.particles = append(st.particles[:0], particles...)
}

// RecordScan counts a received scan and whether it was integrated.
func (st *StateTracker) RecordScan(integrated bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.scanCount++
	if integrated {
		st.integrations++
	}
}

// RecordEvent appends to the bounded event ring.
func (st *StateTracker) RecordEvent(e Event) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.events = append(st.events, e)
	if len(st.events) > maxTrackedEvents {
		st.events = st.events[len(st.events)-maxTrackedEvents:]
	}
}

// SetState records the orchestrator's lifecycle state.
func (st *StateTracker) SetState(s State) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.state = s
}

// Estimate returns the latest pose estimate and whether one exists yet.
func (st *StateTracker) Estimate() (PoseEstimate, time.Time, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.estimate, st.estimateAt, st.hasEstimate
}

// Particles returns a copy of the latest particle snapshot.
func (st *StateTracker) Particles() []Particle {
	st.mu.RLock()
	defer st.mu.RUnlock()
	result := make([]Particle, len(st.particles))
	copy(result, st.particles)
	return result
}

// Events returns a copy of the recent event ring.
func (st *StateTracker) Events() []Event {
	st.mu.RLock()
	defer st.mu.RUnlock()
	result := make([]Event, len(st.events))
	copy(result, st.events)
	return result
}

// Status summarizes the run for health endpoints.
type Status struct {
	State        State     `json:"state"`
	ScanCount    int64     `json:"scanCount"`
	Integrations int64     `json:"integrations"`
	HasEstimate  bool      `json:"hasEstimate"`
	EstimateAt   time.Time `json:"estimateAt,omitempty"`
}

// Status returns the current run summary.
func (st *StateTracker) Status() Status {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return Status{
		State:        st.state,
		ScanCount:    st.scanCount,
		Integrations: st.integrations,
		HasEstimate:  st.hasEstimate,
		EstimateAt:   st.estimateAt,
	}
}
