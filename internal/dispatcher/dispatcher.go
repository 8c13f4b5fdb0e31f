// Package dispatcher implements the batch-assembly worker loop (spec §4.4):
// a single goroutine that pops the queue's lead request, opens a governed
// batch window, drains whatever else arrives during that window, and hands
// the resulting batch to the backend. Structurally a real-time analogue of
// the teacher's Simulator.Run/Step event loop, adapted from a discrete-event
// tick loop to a wall-clock goroutine with context-driven shutdown.
package dispatcher

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tensorbay/aegis/internal/backend"
	"github.com/tensorbay/aegis/internal/governor"
	"github.com/tensorbay/aegis/internal/metrics"
	"github.com/tensorbay/aegis/internal/reqqueue"
)

func durationFromMillis(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}

// DefaultMaxBatchSize mirrors the backend's decode saturation point (spec
// §6.3): batching further than this buys nothing once decode throughput
// has already saturated.
const DefaultMaxBatchSize = backend.DefaultDecodeBatchSaturation

// Dispatcher owns the single consumer goroutine draining a reqqueue.Queue
// into a backend.Backend, guided by a governor.Governor's adaptive batch
// window (spec §4.4's resource policy: "exactly one dispatcher goroutine
// per Scheduler instance").
type Dispatcher struct {
	queue        *reqqueue.Queue
	gov          *governor.Governor
	backend      backend.Backend
	agg          *metrics.Aggregator
	exporter     *metrics.PrometheusExporter
	maxBatchSize int
	log          *logrus.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New constructs a Dispatcher. exporter may be nil if Prometheus export is
// not wanted.
func New(q *reqqueue.Queue, g *governor.Governor, b backend.Backend, agg *metrics.Aggregator, exporter *metrics.PrometheusExporter, maxBatchSize int, log *logrus.Logger) *Dispatcher {
	if maxBatchSize <= 0 {
		maxBatchSize = DefaultMaxBatchSize
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Dispatcher{
		queue:        q,
		gov:          g,
		backend:      b,
		agg:          agg,
		exporter:     exporter,
		maxBatchSize: maxBatchSize,
		log:          log,
	}
}

// Start launches the dispatch loop in its own goroutine. Calling Start
// twice without an intervening Stop is a programming error.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.wg.Add(1)
	go d.run(ctx)
}

// Stop cancels the loop's context and blocks until the loop has exited. The
// loop observes cancellation only when the queue is empty: the in-flight
// batch completes, and entries still queued are dispatched too (with no
// batch-window wait) before the loop returns.
func (d *Dispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.queue.Broadcast()
	d.wg.Wait()
}

func (d *Dispatcher) closed(ctx context.Context) func() bool {
	return func() bool {
		select {
		case <-ctx.Done():
			return true
		default:
			return false
		}
	}
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	isClosed := d.closed(ctx)
	for {
		lead, ok := d.queue.PopWait(isClosed)
		if !ok {
			return
		}
		d.dispatchBatch(ctx, lead)
	}
}

// dispatchBatch implements spec §4.4 steps 2-7: open the governed batch
// window, drain whatever else has queued during it, run the batch on the
// backend, and publish the result to metrics.
func (d *Dispatcher) dispatchBatch(ctx context.Context, lead reqqueue.Entry) {
	window := d.gov.AdaptiveWindow()
	if window > 0 {
		// A cancelled context during the window still falls through to
		// dispatch what has been drained, rather than dropping the lead
		// request on the floor.
		sleepOrCancel(ctx, window)
	}

	drained := d.queue.DrainUpTo(d.maxBatchSize - 1)
	entries := make([]reqqueue.Entry, 0, 1+len(drained))
	entries = append(entries, lead)
	entries = append(entries, drained...)

	batchReqs := make([]backend.BatchRequest, 0, len(entries))
	outputByTenant := make(map[string]int, len(entries))
	for _, e := range entries {
		r := e.Request
		batchReqs = append(batchReqs, backend.BatchRequest{
			ID:                   r.ID,
			PromptTokens:         r.PromptTokens,
			OutputTokensExpected: r.OutputTokensExpected,
		})
		outputByTenant[r.TenantID] += r.OutputTokensExpected
	}

	report := d.backend.RunBatch(batchReqs)

	d.log.WithFields(logrus.Fields{
		"batch_size":       report.BatchSize,
		"ttft_ms":          report.TTFTMs,
		"tpot_ms":          report.TPOTMs,
		"total_latency_ms": report.TotalLatencyMs,
		"kv_cache_used":    report.KVCacheUsed,
	}).Info("batch dispatched")

	if d.agg != nil {
		d.agg.RecordBatch(metrics.BatchOutcome{
			OutputTokensByTenant: outputByTenant,
			Latency:              durationFromMillis(report.TotalLatencyMs),
		})
	}
	if d.exporter != nil {
		totalOutput := 0
		for _, v := range outputByTenant {
			totalOutput += v
		}
		d.exporter.ObserveBatch(report.BatchSize, totalOutput)
		if d.agg != nil {
			d.exporter.Sync(d.agg.Snapshot())
		}
	}
}

// sleepOrCancel blocks for dur, returning early if ctx is cancelled first.
// Grounded on the context-cancellable-wait idiom used by the pack's
// concurrent job-queue/rate-limiter reference implementations, adapted here
// to the batch-window wait instead of a rate-limit wait.
func sleepOrCancel(ctx context.Context, dur time.Duration) {
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
