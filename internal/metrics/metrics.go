// Package metrics implements the cost/throughput/fairness aggregator (spec
// §4.6): it observes every completed batch and tenant admission to compute
// throughput, GPU utilization, cost-per-token, and Jain's fairness index.
package metrics

import (
	"sync"
	"time"

	"github.com/tensorbay/aegis/internal/clock"
)

// DefaultCostPerHourUSD is the reference A100-class hourly cost (spec §6.3).
const DefaultCostPerHourUSD = 3.00

// wallTimeEpsilon avoids division by zero when total_busy_time is 0 (spec §4.6).
const wallTimeEpsilon = 1e-6

// Snapshot is the on-demand computed metrics view (spec §4.6 and §6.1's
// metrics() contract).
type Snapshot struct {
	TotalOutputTokens       int64
	TotalBusyTimeSec        float64
	WallTimeSec             float64
	ThroughputTPS           float64
	GPUUtilization          float64
	CostPerTokenUSD         float64
	CostPerMillionTokensUSD float64
	JainsFairnessIndex      float64
	PerTenantOutputTokens   map[string]int64
	AdmittedTotal           int64
	RejectedTotal           map[RejectionReason]int64
}

// Aggregator owns MetricsState (spec §3), guarded by a single mutex so a
// Snapshot is atomic with respect to any in-flight RecordBatch (spec §4.6:
// "computing J and throughput concurrently with a metrics update is
// forbidden").
type Aggregator struct {
	clock       clock.Clock
	costPerHour float64

	mu                  sync.RWMutex
	totalOutputTokens   int64
	totalBusyTime       time.Duration
	lastProcessEnd      time.Time
	perTenantOutputToks map[string]int64
	admittedTotal       int64
	rejectedTotal       map[RejectionReason]int64
}

// New constructs an empty Aggregator. lastProcessEnd is seeded to Now() so
// idle_time starts at zero instead of reporting a spurious large idle
// window before the first batch completes.
func New(c clock.Clock, costPerHourUSD float64) *Aggregator {
	if costPerHourUSD <= 0 {
		costPerHourUSD = DefaultCostPerHourUSD
	}
	return &Aggregator{
		clock:               c,
		costPerHour:         costPerHourUSD,
		lastProcessEnd:      c.Now(),
		perTenantOutputToks: make(map[string]int64),
		rejectedTotal:       make(map[RejectionReason]int64),
	}
}

// RecordAdmission tallies one admission decision. reason is ignored (and
// may be empty) when admitted is true.
func (a *Aggregator) RecordAdmission(admitted bool, reason RejectionReason) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if admitted {
		a.admittedTotal++
		return
	}
	a.rejectedTotal[reason]++
}

// BatchOutcome is what the dispatcher reports for a completed batch (spec
// §4.4 step 7): per-request output tokens by tenant, and the batch's
// measured latency.
type BatchOutcome struct {
	OutputTokensByTenant map[string]int
	Latency              time.Duration
}

// RejectionReason enumerates the admission rejection taxonomy (spec §5)
// used as the Prometheus "reason" label.
type RejectionReason string

const (
	ReasonRateLimited    RejectionReason = "rate_limited"
	ReasonUnknownTenant  RejectionReason = "unknown_tenant"
	ReasonInvalidRequest RejectionReason = "invalid_request"
)

// RecordBatch publishes a completed batch's metrics: adds
// output_tokens_expected to both the global and per-tenant counters, adds
// the batch latency to total_busy_time, and advances last_process_end to
// Now().
func (a *Aggregator) RecordBatch(o BatchOutcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for tenantID, tokens := range o.OutputTokensByTenant {
		a.totalOutputTokens += int64(tokens)
		a.perTenantOutputToks[tenantID] += int64(tokens)
	}
	a.totalBusyTime += o.Latency
	a.lastProcessEnd = a.clock.Now()
}

// Snapshot computes the full metrics view atomically (spec §4.6).
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	busy := a.totalBusyTime.Seconds()
	idle := a.clock.Now().Sub(a.lastProcessEnd).Seconds()
	wall := busy + idle
	if busy == 0 {
		wall = wallTimeEpsilon
	}

	throughput := float64(a.totalOutputTokens) / wall
	utilization := busy / wall

	var costPerToken, costPerMillion float64
	if throughput > 0 {
		costPerToken = a.costPerHour / 3600 / throughput
		costPerMillion = costPerToken * 1e6
	}

	perTenant := make(map[string]int64, len(a.perTenantOutputToks))
	for k, v := range a.perTenantOutputToks {
		perTenant[k] = v
	}
	rejected := make(map[RejectionReason]int64, len(a.rejectedTotal))
	for k, v := range a.rejectedTotal {
		rejected[k] = v
	}

	return Snapshot{
		TotalOutputTokens:       a.totalOutputTokens,
		TotalBusyTimeSec:        busy,
		WallTimeSec:             wall,
		ThroughputTPS:           throughput,
		GPUUtilization:          utilization,
		CostPerTokenUSD:         costPerToken,
		CostPerMillionTokensUSD: costPerMillion,
		JainsFairnessIndex:      jainsFairnessIndex(perTenant),
		PerTenantOutputTokens:   perTenant,
		AdmittedTotal:           a.admittedTotal,
		RejectedTotal:           rejected,
	}
}

// jainsFairnessIndex computes J = (sum(x))^2 / (n * sum(x^2)) over the
// per-tenant throughput vector (spec §4.6). n==0 returns 1.0 (perfectly
// fair — vacuously true with no tenants); sum(x^2)==0 returns 0.0.
func jainsFairnessIndex(perTenant map[string]int64) float64 {
	n := len(perTenant)
	if n == 0 {
		return 1.0
	}
	var sum, sumSq float64
	for _, v := range perTenant {
		x := float64(v)
		sum += x
		sumSq += x * x
	}
	if sumSq == 0 {
		return 0.0
	}
	return (sum * sum) / (float64(n) * sumSq)
}
