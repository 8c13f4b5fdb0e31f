package backend

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tensorbay/aegis/internal/clock"
)

// durationFromSeconds converts a floating-point second count (as used
// throughout the latency formulas) into a time.Duration.
func durationFromSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Tunables (spec §6.3), ported from original_source/gpu_simulator.py's
// A100 benchmark constants.
const (
	DefaultPrefillThroughput     = 1024.0 // tokens/second
	DefaultDecodeThroughput      = 128.0  // tokens/second
	DefaultDecodeBatchSaturation = 16
	DefaultMaxKVCache            = 32768 // tokens
)

// Config parameterizes SimulatorBackend. Zero-rate configuration is a
// fatal configuration error surfaced at construction (spec §4.5's
// numerical-rule requirement), not at dispatch time.
type Config struct {
	PrefillThroughput     float64 `yaml:"prefill_throughput"`
	DecodeThroughput      float64 `yaml:"decode_throughput"`
	DecodeBatchSaturation int     `yaml:"decode_batch_saturation"`
	MaxKVCache            int     `yaml:"max_kv_cache"`
}

// DefaultConfig returns the spec §6.3 A100-class tunables.
func DefaultConfig() Config {
	return Config{
		PrefillThroughput:     DefaultPrefillThroughput,
		DecodeThroughput:      DefaultDecodeThroughput,
		DecodeBatchSaturation: DefaultDecodeBatchSaturation,
		MaxKVCache:            DefaultMaxKVCache,
	}
}

// SimulatorBackend is the reference InferenceBackend: a latency simulator
// parameterized by prefill/decode throughputs and a KV-cache ceiling, a
// direct port of original_source/gpu_simulator.py's
// estimate_batch_latency/simulate_inference.
type SimulatorBackend struct {
	cfg   Config
	clock clock.Clock
	log   *logrus.Logger

	mu                sync.Mutex
	kvCacheUsed       int
	batchesProcessed  int
	requestsProcessed int
}

// NewSimulatorBackend validates cfg and constructs a SimulatorBackend.
// Returns an error if either throughput is non-positive or MaxKVCache is
// non-positive — these are fatal configuration errors (spec §4.5).
func NewSimulatorBackend(cfg Config, c clock.Clock, log *logrus.Logger) (*SimulatorBackend, error) {
	if cfg.PrefillThroughput <= 0 {
		return nil, fmt.Errorf("backend config: prefill throughput must be > 0, got %v", cfg.PrefillThroughput)
	}
	if cfg.DecodeThroughput <= 0 {
		return nil, fmt.Errorf("backend config: decode throughput must be > 0, got %v", cfg.DecodeThroughput)
	}
	if cfg.MaxKVCache <= 0 {
		return nil, fmt.Errorf("backend config: max KV cache must be > 0, got %d", cfg.MaxKVCache)
	}
	if cfg.DecodeBatchSaturation <= 0 {
		cfg.DecodeBatchSaturation = DefaultDecodeBatchSaturation
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &SimulatorBackend{cfg: cfg, clock: c, log: log}, nil
}

// RunBatch implements spec §4.5's batch-latency model and KV-cache
// reset-on-overflow stub. An empty batch returns a zero report without
// touching the clock or KV accounting.
func (b *SimulatorBackend) RunBatch(requests []BatchRequest) BatchReport {
	if len(requests) == 0 {
		return BatchReport{}
	}

	batchSize := len(requests)
	maxPrefill := 0
	sumOutput := 0
	sumPrompt := 0
	ids := make([]string, 0, batchSize)
	for _, r := range requests {
		if r.PromptTokens > maxPrefill {
			maxPrefill = r.PromptTokens
		}
		sumOutput += r.OutputTokensExpected
		sumPrompt += r.PromptTokens
		ids = append(ids, r.ID)
	}
	avgOutput := float64(sumOutput) / float64(batchSize)

	ttftS := float64(maxPrefill) / b.cfg.PrefillThroughput
	effectiveDecode := b.cfg.DecodeThroughput * float64(min(batchSize, b.cfg.DecodeBatchSaturation))
	tpotS := float64(batchSize) / effectiveDecode
	totalLatencyS := ttftS + tpotS*avgOutput

	b.mu.Lock()
	if b.kvCacheUsed+sumPrompt > b.cfg.MaxKVCache {
		b.log.WithFields(logrus.Fields{
			"kv_cache_used": b.kvCacheUsed,
			"incoming":      sumPrompt,
			"max_kv_cache":  b.cfg.MaxKVCache,
		}).Warn("KV cache ceiling exceeded, resetting (backend saturation)")
		b.kvCacheUsed = 0
	}
	b.kvCacheUsed += sumPrompt
	kvAfter := b.kvCacheUsed
	b.mu.Unlock()

	b.clock.Sleep(durationFromSeconds(totalLatencyS))

	b.mu.Lock()
	b.batchesProcessed++
	b.requestsProcessed += batchSize
	b.mu.Unlock()

	return BatchReport{
		BatchSize:      batchSize,
		TTFTMs:         ttftS * 1000,
		TPOTMs:         tpotS * 1000,
		TotalLatencyMs: totalLatencyS * 1000,
		KVCacheUsed:    kvAfter,
		RequestIDs:     ids,
	}
}

// Stats returns a snapshot of the backend's counters.
func (b *SimulatorBackend) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		KVCacheUsed:       b.kvCacheUsed,
		BatchesProcessed:  b.batchesProcessed,
		RequestsProcessed: b.requestsProcessed,
	}
}
