// Package tenant implements per-tenant admission control: tenant
// configuration registration and the token-bucket gatekeeper that decides
// whether an inference request is admitted.
package tenant

import "fmt"

// Config is a tenant's immutable rate-limiting configuration.
type Config struct {
	TenantID  string
	RateLimit float64 // tokens per second, > 0
	BurstCap  int     // > 0
}

// Validate checks that a tenant configuration is well-formed before
// registration.
func (c Config) Validate() error {
	if c.TenantID == "" {
		return fmt.Errorf("tenant config: tenant_id must not be empty")
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("tenant config %q: rate_limit must be > 0, got %v", c.TenantID, c.RateLimit)
	}
	if c.BurstCap <= 0 {
		return fmt.Errorf("tenant config %q: burst_cap must be > 0, got %v", c.TenantID, c.BurstCap)
	}
	return nil
}

// DefaultBootstrap returns the reference deployment's default tenant table
// (spec §6.2).
func DefaultBootstrap() []Config {
	return []Config{
		{TenantID: "tenant_a", RateLimit: 500, BurstCap: 5000},
		{TenantID: "tenant_b", RateLimit: 300, BurstCap: 3000},
		{TenantID: "tenant_c", RateLimit: 1000, BurstCap: 10000},
	}
}
