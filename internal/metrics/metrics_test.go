package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tensorbay/aegis/internal/clock"
)

func TestAggregator_Snapshot_EmptyIsZeroValue(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	a := New(fc, DefaultCostPerHourUSD)
	s := a.Snapshot()
	require.Equal(t, int64(0), s.TotalOutputTokens)
	require.Equal(t, 1.0, s.JainsFairnessIndex) // vacuously fair with no tenants
}

func TestAggregator_RecordBatch_AccumulatesTokensAndBusyTime(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	a := New(fc, DefaultCostPerHourUSD)

	a.RecordBatch(BatchOutcome{
		OutputTokensByTenant: map[string]int{"tenant_a": 100},
		Latency:              10 * time.Millisecond,
	})
	fc.Advance(10 * time.Millisecond)
	a.RecordBatch(BatchOutcome{
		OutputTokensByTenant: map[string]int{"tenant_a": 50, "tenant_b": 50},
		Latency:              10 * time.Millisecond,
	})

	s := a.Snapshot()
	require.Equal(t, int64(200), s.TotalOutputTokens)
	require.InDelta(t, 0.02, s.TotalBusyTimeSec, 1e-9)
	require.Equal(t, int64(150), s.PerTenantOutputTokens["tenant_a"])
	require.Equal(t, int64(50), s.PerTenantOutputTokens["tenant_b"])
}

func TestAggregator_GPUUtilization_IsBusyOverWall(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	a := New(fc, DefaultCostPerHourUSD)

	a.RecordBatch(BatchOutcome{OutputTokensByTenant: map[string]int{"t": 10}, Latency: 100 * time.Millisecond})
	fc.Advance(100 * time.Millisecond) // idle for another 100ms after the batch

	s := a.Snapshot()
	require.InDelta(t, 0.5, s.GPUUtilization, 1e-9)
}

func TestAggregator_CostPerMillionTokens_ScalesFromCostPerToken(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	a := New(fc, 3.0)
	a.RecordBatch(BatchOutcome{OutputTokensByTenant: map[string]int{"t": 1000}, Latency: time.Second})

	s := a.Snapshot()
	require.InDelta(t, s.CostPerTokenUSD*1e6, s.CostPerMillionTokensUSD, 1e-9)
	require.Greater(t, s.CostPerMillionTokensUSD, 0.0)
}

func TestAggregator_JainsFairnessIndex_PerfectEquality(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	a := New(fc, DefaultCostPerHourUSD)
	a.RecordBatch(BatchOutcome{
		OutputTokensByTenant: map[string]int{"tenant_a": 100, "tenant_b": 100, "tenant_c": 100},
		Latency:              time.Millisecond,
	})
	s := a.Snapshot()
	require.InDelta(t, 1.0, s.JainsFairnessIndex, 1e-9)
}

func TestAggregator_JainsFairnessIndex_SingleTenantMonopoly(t *testing.T) {
	// Jain's law: one tenant takes all throughput -> J = 1/n.
	fc := clock.NewFake(time.Unix(0, 0))
	a := New(fc, DefaultCostPerHourUSD)
	a.RecordBatch(BatchOutcome{
		OutputTokensByTenant: map[string]int{"tenant_a": 300, "tenant_b": 0, "tenant_c": 0},
		Latency:              time.Millisecond,
	})
	s := a.Snapshot()
	require.InDelta(t, 1.0/3.0, s.JainsFairnessIndex, 1e-9)
}

func TestAggregator_RecordAdmission_TalliesAdmittedAndRejected(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	a := New(fc, DefaultCostPerHourUSD)
	a.RecordAdmission(true, "")
	a.RecordAdmission(true, "")
	a.RecordAdmission(false, ReasonRateLimited)
	a.RecordAdmission(false, ReasonUnknownTenant)
	a.RecordAdmission(false, ReasonRateLimited)

	s := a.Snapshot()
	require.Equal(t, int64(2), s.AdmittedTotal)
	require.Equal(t, int64(2), s.RejectedTotal[ReasonRateLimited])
	require.Equal(t, int64(1), s.RejectedTotal[ReasonUnknownTenant])
}

func TestAggregator_Snapshot_NoBatchesYetHasZeroThroughput(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	a := New(fc, DefaultCostPerHourUSD)
	fc.Advance(time.Second)
	s := a.Snapshot()
	require.Equal(t, 0.0, s.ThroughputTPS)
	require.Equal(t, 0.0, s.CostPerMillionTokensUSD)
}

func TestNewPrometheusExporter_ObserveAndSync(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	a := New(fc, DefaultCostPerHourUSD)
	exp := NewPrometheusExporter()

	exp.ObserveAdmission(true, "")
	exp.ObserveAdmission(false, ReasonRateLimited)
	a.RecordBatch(BatchOutcome{OutputTokensByTenant: map[string]int{"t": 16}, Latency: time.Millisecond})
	exp.ObserveBatch(4, 16)
	exp.Sync(a.Snapshot())

	mfs, err := exp.Registry().Gather()
	require.NoError(t, err)
	require.NotEmpty(t, mfs)
}
