// Package scheduler wires the tenant registry, priority queue, homeostatic
// governor, backend, and dispatcher into the single programmatic surface
// named by spec §6.1: one Scheduler value per deployment, no process-wide
// singletons, grounded on the teacher's top-level Simulator as the
// all-components-owned-by-one-struct shape.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/tensorbay/aegis/internal/backend"
	"github.com/tensorbay/aegis/internal/clock"
	"github.com/tensorbay/aegis/internal/config"
	"github.com/tensorbay/aegis/internal/dispatcher"
	"github.com/tensorbay/aegis/internal/governor"
	"github.com/tensorbay/aegis/internal/metrics"
	"github.com/tensorbay/aegis/internal/reqqueue"
	"github.com/tensorbay/aegis/internal/tenant"
)

// EstimatedWaitPerQueuedRequestMs is the documented heuristic from spec
// §6.1: estimated_wait_ms = queue_size * 50.
const EstimatedWaitPerQueuedRequestMs = 50

// AdmitOutcome classifies the result of Admit (spec §6.1's AdmitResult sum
// type, flattened into a Go-idiomatic enum + struct pair).
type AdmitOutcome int

const (
	Queued AdmitOutcome = iota
	Rejected
	UnknownTenant
)

func (o AdmitOutcome) String() string {
	switch o {
	case Queued:
		return "QUEUED"
	case Rejected:
		return "REJECTED"
	case UnknownTenant:
		return "UNKNOWN_TENANT"
	default:
		return "UNKNOWN"
	}
}

// RejectReason names why Rejected was returned.
type RejectReason string

const (
	ReasonRateLimited    RejectReason = "rate_limited"
	ReasonInvalidRequest RejectReason = "invalid_request"
)

// AdmitResult is the outcome of one Admit call.
type AdmitResult struct {
	Outcome         AdmitOutcome
	RequestID       string
	QueuePosition   int
	EstimatedWaitMs int
	Reason          RejectReason
}

// ErrUnknownTenant mirrors tenant.ErrUnknownTenant at the scheduler
// boundary, so callers never need to import internal/tenant directly.
var ErrUnknownTenant = tenant.ErrUnknownTenant

// ErrAlreadyExists mirrors tenant.ErrAlreadyExists.
var ErrAlreadyExists = tenant.ErrAlreadyExists

// AdmitParams are the caller-supplied fields of an admission request.
type AdmitParams struct {
	TenantID             string
	PromptTokens         int
	OutputTokensExpected int
	PriorityBid          int
}

// HealthReport is the health() contract of spec §6.1.
type HealthReport struct {
	QueueSize     int
	TotalRequests int64
	Accepted      int64
	Rejected      int64
	RejectionRate float64
	BackendStats  backend.Stats
}

// Scheduler is the complete admission-and-dispatch pipeline for one
// deployment. It owns every component spec §5 names as a resource with its
// own mutex; Scheduler itself adds no additional locking beyond the atomic
// request counters used for Health().
type Scheduler struct {
	registry   *tenant.Registry
	queue      *reqqueue.Queue
	governor   *governor.Governor
	backend    backend.Backend
	metrics    *metrics.Aggregator
	prometheus *metrics.PrometheusExporter
	dispatcher *dispatcher.Dispatcher
	log        *logrus.Logger

	totalRequests int64
	accepted      int64
	rejected      int64

	startOnce sync.Once
	stopOnce  sync.Once
}

// Option customizes New's construction.
type Option func(*options)

type options struct {
	log      *logrus.Logger
	be       backend.Backend
	exporter *metrics.PrometheusExporter
}

// WithLogger overrides the default logrus.StandardLogger().
func WithLogger(log *logrus.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithBackend overrides the default SimulatorBackend, e.g. to plug in a
// real accelerator driver.
func WithBackend(b backend.Backend) Option {
	return func(o *options) { o.be = b }
}

// WithPrometheus attaches a metrics.PrometheusExporter for scrape wiring.
func WithPrometheus(exp *metrics.PrometheusExporter) Option {
	return func(o *options) { o.exporter = exp }
}

// New constructs a fully wired Scheduler from a config.Bundle and starts
// its dispatcher. Callers must call Stop to shut it down cleanly.
func New(ctx context.Context, cfg config.Bundle, opts ...Option) (*Scheduler, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = logrus.StandardLogger()
	}

	c := clock.New()
	reg := tenant.NewRegistry(c, o.log)
	if err := reg.Bootstrap(cfg.TenantConfigs()); err != nil {
		return nil, err
	}

	q := reqqueue.New()
	gov := governor.New(c, cfg.Governor.WindowSize, cfg.Governor.BaseWindow())

	be := o.be
	if be == nil {
		sb, err := backend.NewSimulatorBackend(cfg.Backend, c, o.log)
		if err != nil {
			return nil, err
		}
		be = sb
	}

	agg := metrics.New(c, cfg.CostPerHourUSD)

	disp := dispatcher.New(q, gov, be, agg, o.exporter, cfg.Dispatch.MaxBatchSize, o.log)

	s := &Scheduler{
		registry:   reg,
		queue:      q,
		governor:   gov,
		backend:    be,
		metrics:    agg,
		prometheus: o.exporter,
		dispatcher: disp,
		log:        o.log,
	}
	s.startOnce.Do(func() { disp.Start(ctx) })
	return s, nil
}

// Stop shuts the dispatcher down, finishing any in-flight batch first.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { s.dispatcher.Stop() })
}

// Admit implements spec §6.1's admit contract: validate, consult the
// tenant's token bucket, record the arrival with the governor whether the
// bucket accepts or rejects, and on acceptance enqueue the request for
// dispatch. Unknown-tenant and invalid requests return before the bucket
// and are not recorded with the governor.
func (s *Scheduler) Admit(p AdmitParams) (AdmitResult, error) {
	atomic.AddInt64(&s.totalRequests, 1)

	if !s.registry.Exists(p.TenantID) {
		atomic.AddInt64(&s.rejected, 1)
		return AdmitResult{Outcome: UnknownTenant}, ErrUnknownTenant
	}

	req, err := reqqueue.NewRequest(reqqueue.Params{
		TenantID:             p.TenantID,
		PromptTokens:         p.PromptTokens,
		OutputTokensExpected: p.OutputTokensExpected,
		PriorityBid:          p.PriorityBid,
	})
	if err != nil {
		// Invalid requests are rejected before bucket consultation and are
		// not counted against the tenant (spec §7).
		atomic.AddInt64(&s.rejected, 1)
		s.metrics.RecordAdmission(false, metrics.ReasonInvalidRequest)
		if s.prometheus != nil {
			s.prometheus.ObserveAdmission(false, metrics.ReasonInvalidRequest)
		}
		return AdmitResult{Outcome: Rejected, Reason: ReasonInvalidRequest}, err
	}

	// The bucket charges amount = prompt_tokens only: it bounds total
	// prompt work per tenant, not output tokens (spec's fairness note).
	decision, err := s.registry.TryConsume(p.TenantID, float64(req.PromptTokens))
	s.governor.RecordArrival()
	if err != nil {
		atomic.AddInt64(&s.rejected, 1)
		s.metrics.RecordAdmission(false, metrics.ReasonUnknownTenant)
		return AdmitResult{Outcome: UnknownTenant}, err
	}
	if decision == tenant.Rejected {
		atomic.AddInt64(&s.rejected, 1)
		s.metrics.RecordAdmission(false, metrics.ReasonRateLimited)
		if s.prometheus != nil {
			s.prometheus.ObserveAdmission(false, metrics.ReasonRateLimited)
		}
		return AdmitResult{Outcome: Rejected, Reason: ReasonRateLimited}, nil
	}

	s.queue.Push(reqqueue.NewEntry(req))
	atomic.AddInt64(&s.accepted, 1)
	s.metrics.RecordAdmission(true, "")
	if s.prometheus != nil {
		s.prometheus.ObserveAdmission(true, "")
	}

	qlen := s.queue.Len()
	return AdmitResult{
		Outcome:         Queued,
		RequestID:       req.ID,
		QueuePosition:   qlen,
		EstimatedWaitMs: qlen * EstimatedWaitPerQueuedRequestMs,
	}, nil
}

// RegisterTenant implements spec §6.1's register_tenant contract.
func (s *Scheduler) RegisterTenant(cfg tenant.Config) error {
	return s.registry.Register(cfg)
}

// TenantStatus implements spec §6.1's tenant_status contract.
func (s *Scheduler) TenantStatus(tenantID string) (tenant.Status, error) {
	return s.registry.Status(tenantID)
}

// Health implements spec §6.1's health contract.
func (s *Scheduler) Health() HealthReport {
	total := atomic.LoadInt64(&s.totalRequests)
	accepted := atomic.LoadInt64(&s.accepted)
	rejected := atomic.LoadInt64(&s.rejected)
	var rate float64
	if total > 0 {
		rate = float64(rejected) / float64(total)
	}
	return HealthReport{
		QueueSize:     s.queue.Len(),
		TotalRequests: total,
		Accepted:      accepted,
		Rejected:      rejected,
		RejectionRate: rate,
		BackendStats:  s.backend.Stats(),
	}
}

// Metrics implements spec §6.1's metrics contract.
func (s *Scheduler) Metrics() metrics.Snapshot {
	return s.metrics.Snapshot()
}

