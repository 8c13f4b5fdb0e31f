// Package governor implements the homeostatic governor: an entropic
// feedback loop that measures the Shannon entropy of recent request
// inter-arrival intervals and uses it to adapt the dispatcher's
// micro-batching window (spec §4.3). Ported from original_source's
// homeostatic_governor.py — same constants, same 1ms-precision binning,
// same exp(-H/5) scaling.
package governor

import (
	"math"
	"sync"
	"time"

	"github.com/tensorbay/aegis/internal/clock"
)

// Tunables (spec §6.3).
const (
	// DefaultWindowSize bounds the ring of remembered arrival timestamps.
	DefaultWindowSize = 50
	// DefaultBaseWindow is the batch window used when entropy is ~0.
	DefaultBaseWindow = 10 * time.Millisecond
	// CriticalThreshold is the entropy (bits) below which the system is
	// reporting CRITICAL_BURST instead of STABLE.
	CriticalThreshold = 1.5
)

// Status is the governor's classification of the current arrival regime.
type Status string

const (
	StatusCriticalBurst Status = "CRITICAL_BURST"
	StatusStable        Status = "STABLE"
)

// Governor holds the bounded ring of recent arrival timestamps and the last
// computed entropy. Access is serialized under a single mutex — both the
// admit path (writer, via RecordArrival) and the dispatcher (reader, via
// AdaptiveWindow/Status) take it, per spec's "GovernorState: single mutex"
// resource policy.
type Governor struct {
	clock      clock.Clock
	windowSize int
	baseWindow time.Duration

	mu             sync.Mutex
	arrivals       []time.Time // ring, oldest first, len <= windowSize
	currentEntropy float64
}

// New constructs a Governor with the given window size and base batch
// window. Pass DefaultWindowSize/DefaultBaseWindow for spec defaults.
func New(c clock.Clock, windowSize int, baseWindow time.Duration) *Governor {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	if baseWindow <= 0 {
		baseWindow = DefaultBaseWindow
	}
	return &Governor{
		clock:      c,
		windowSize: windowSize,
		baseWindow: baseWindow,
		arrivals:   make([]time.Time, 0, windowSize),
	}
}

// RecordArrival appends Now() to the arrival ring, dropping the oldest
// entry once the window is full. Spec.md leaves open whether rejected
// admission attempts should count — Scheduler.Admit records every attempt
// that reaches the token bucket, rate-limited ones included, since a
// synchronized-burst flood is exactly the regime the governor exists to
// detect; unknown-tenant and invalid requests are not recorded (see
// DESIGN.md).
func (g *Governor) RecordArrival() {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.clock.Now()
	if len(g.arrivals) == g.windowSize {
		copy(g.arrivals, g.arrivals[1:])
		g.arrivals[len(g.arrivals)-1] = now
	} else {
		g.arrivals = append(g.arrivals, now)
	}
}

// entropy computes Shannon entropy H (bits) of the 1ms-binned
// inter-arrival intervals. Caller must hold g.mu.
func (g *Governor) entropy() float64 {
	if len(g.arrivals) < 2 {
		return 0
	}

	bins := make(map[int64]int)
	total := 0
	for i := 1; i < len(g.arrivals); i++ {
		delta := g.arrivals[i].Sub(g.arrivals[i-1])
		if delta < 0 {
			continue // clock anomaly, skip
		}
		// Bin at 1ms precision. Deliberately coarse — do not "improve" to
		// continuous KDE; the control law is calibrated against this
		// histogram (spec §9).
		bucket := delta.Round(time.Millisecond).Nanoseconds()
		bins[bucket]++
		total++
	}
	if total == 0 {
		return 0
	}

	h := 0.0
	for _, count := range bins {
		p := float64(count) / float64(total)
		h -= p * math.Log2(p)
	}
	return h
}

// Entropy returns the last computed entropy, recomputing it from the
// current arrival history.
func (g *Governor) Entropy() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	h := g.entropy()
	g.currentEntropy = h
	return h
}

// AdaptiveWindow returns base_window * exp(-H/5.0) (spec §4.3): H≈0
// (regular arrivals) keeps the window near base, exploiting regularity for
// batching; large H (chaotic) shrinks it to drain the queue faster.
func (g *Governor) AdaptiveWindow() time.Duration {
	h := g.Entropy()
	factor := math.Exp(-h / 5.0)
	return time.Duration(float64(g.baseWindow) * factor)
}

// Status classifies the current regime. CRITICAL_BURST at low entropy
// signals synchronized bursts (near-identical inter-arrival intervals from
// a flood) — paradoxically the regime needing the most aggressive draining
// (spec §4.3).
func (g *Governor) Status() Status {
	g.mu.Lock()
	h := g.currentEntropy
	g.mu.Unlock()
	if h < CriticalThreshold {
		return StatusCriticalBurst
	}
	return StatusStable
}
