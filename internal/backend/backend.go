// Package backend defines the InferenceBackend contract and a reference
// latency-simulator implementation (spec §4.5). The real accelerator is
// out of scope for this module; production callers supply their own
// Backend and wire it into the dispatcher.
package backend

// BatchReport is returned by RunBatch after a batch completes.
type BatchReport struct {
	BatchSize      int
	TTFTMs         float64
	TPOTMs         float64
	TotalLatencyMs float64
	KVCacheUsed    int
	RequestIDs     []string
}

// BatchRequest is the minimal view of a queued request the backend needs:
// just enough to compute TTFT/TPOT/KV-cache accounting, decoupled from
// reqqueue.Request so this package has no dependency on the queue package.
type BatchRequest struct {
	ID                   string
	PromptTokens         int
	OutputTokensExpected int
}

// Backend is the pluggable accelerator contract (spec §4.5). RunBatch
// blocks for the modeled latency (or asynchronously completes — either is
// acceptable per spec §2); it must never be called concurrently by more
// than one dispatcher per spec §4.4's single-worker design.
type Backend interface {
	RunBatch(requests []BatchRequest) BatchReport
	Stats() Stats
}

// Stats is the backend's counters snapshot (spec §3 BackendState).
type Stats struct {
	KVCacheUsed       int
	BatchesProcessed  int
	RequestsProcessed int
}
