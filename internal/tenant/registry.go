package tenant

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/tensorbay/aegis/internal/clock"
)

// ErrUnknownTenant is returned when an operation names a tenant that was
// never registered.
var ErrUnknownTenant = errors.New("unknown tenant")

// ErrAlreadyExists is returned by Register when the tenant is already
// registered (spec §6.1: register_tenant → Ok | AlreadyExists).
var ErrAlreadyExists = errors.New("tenant already registered")

// Status is the tenant introspection snapshot exposed at §6.1.
type Status struct {
	TenantID       string
	CurrentTokens  float64
	BurstCap       int
	RateLimit      float64
	UtilizationPct float64
}

// Registry owns every tenant's Config and TokenBucketState. Configs are
// immutable after registration: Register rejects a second registration of
// the same tenant_id with ErrAlreadyExists, and Bootstrap ignores that error
// so the default table can be applied repeatedly.
type Registry struct {
	clock clock.Clock
	log   *logrus.Logger

	mu      sync.RWMutex
	buckets map[string]*bucket
}

// NewRegistry constructs an empty tenant registry.
func NewRegistry(c clock.Clock, log *logrus.Logger) *Registry {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Registry{
		clock:   c,
		log:     log,
		buckets: make(map[string]*bucket),
	}
}

// Register adds a new tenant. Returns ErrAlreadyExists if the tenant_id is
// already registered — configs are immutable once set (spec §3).
func (r *Registry) Register(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.buckets[cfg.TenantID]; exists {
		return ErrAlreadyExists
	}
	r.buckets[cfg.TenantID] = newBucket(cfg, r.clock.Now())
	r.log.WithFields(logrus.Fields{
		"tenant_id":  cfg.TenantID,
		"rate_limit": cfg.RateLimit,
		"burst_cap":  cfg.BurstCap,
	}).Info("tenant registered")
	return nil
}

// Bootstrap registers every config in cfgs, ignoring ErrAlreadyExists so it
// is safe to call repeatedly with the same default table.
func (r *Registry) Bootstrap(cfgs []Config) error {
	for _, cfg := range cfgs {
		if err := r.Register(cfg); err != nil && !errors.Is(err, ErrAlreadyExists) {
			return err
		}
	}
	return nil
}

func (r *Registry) lookup(tenantID string) (*bucket, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.buckets[tenantID]
	return b, ok
}

// TryConsume performs the admission decision point of spec §4.1 for the
// given tenant and token amount. Returns ErrUnknownTenant if the tenant was
// never registered.
func (r *Registry) TryConsume(tenantID string, amount float64) (Decision, error) {
	b, ok := r.lookup(tenantID)
	if !ok {
		return Rejected, ErrUnknownTenant
	}
	decision := b.tryConsume(r.clock, amount)
	return decision, nil
}

// Status returns the tenant's current bucket snapshot for introspection.
func (r *Registry) Status(tenantID string) (Status, error) {
	b, ok := r.lookup(tenantID)
	if !ok {
		return Status{}, ErrUnknownTenant
	}
	tokens, cfg := b.snapshot(r.clock)
	util := (1 - tokens/float64(cfg.BurstCap)) * 100
	return Status{
		TenantID:       tenantID,
		CurrentTokens:  tokens,
		BurstCap:       cfg.BurstCap,
		RateLimit:      cfg.RateLimit,
		UtilizationPct: util,
	}, nil
}

// Exists reports whether tenantID has been registered.
func (r *Registry) Exists(tenantID string) bool {
	_, ok := r.lookup(tenantID)
	return ok
}
