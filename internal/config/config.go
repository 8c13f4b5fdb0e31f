// Package config loads the scheduler's tunables and tenant bootstrap table
// from a YAML file, grounded on the teacher's sim.PolicyBundle (strict
// gopkg.in/yaml.v3 decoding, a single top-level struct per concern).
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tensorbay/aegis/internal/backend"
	"github.com/tensorbay/aegis/internal/governor"
	"github.com/tensorbay/aegis/internal/metrics"
	"github.com/tensorbay/aegis/internal/tenant"
)

// TenantBootstrap is one row of the bootstrap tenant table (spec §6.2).
type TenantBootstrap struct {
	TenantID  string  `yaml:"tenant_id"`
	RateLimit float64 `yaml:"rate_limit"`
	BurstCap  int     `yaml:"burst_cap"`
}

// Bundle is the full on-disk configuration (spec §6.3's tunables plus the
// tenant bootstrap table), strict-decoded the way the teacher's
// PolicyBundle is.
type Bundle struct {
	Governor       GovernorConfig    `yaml:"governor"`
	Backend        backend.Config    `yaml:"backend"`
	Dispatch       DispatchConfig    `yaml:"dispatch"`
	CostPerHourUSD float64           `yaml:"cost_per_hour_usd"`
	Tenants        []TenantBootstrap `yaml:"tenants"`
}

// GovernorConfig groups the homeostatic governor's tunables.
type GovernorConfig struct {
	WindowSize   int `yaml:"window_size"`
	BaseWindowMs int `yaml:"base_window_ms"`
}

// DispatchConfig groups batch-assembly tunables (spec §4.4).
type DispatchConfig struct {
	MaxBatchSize int `yaml:"max_batch_size"`
}

// DefaultMaxBatchSize mirrors DecodeBatchSaturation (spec §6.3).
const DefaultMaxBatchSize = backend.DefaultDecodeBatchSaturation

// Default returns the built-in configuration: spec §6.3's tunables and
// §6.2's bootstrap tenant table, used when no config file is supplied.
func Default() Bundle {
	rows := tenant.DefaultBootstrap()
	tenants := make([]TenantBootstrap, 0, len(rows))
	for _, r := range rows {
		tenants = append(tenants, TenantBootstrap{TenantID: r.TenantID, RateLimit: r.RateLimit, BurstCap: r.BurstCap})
	}
	return Bundle{
		Governor: GovernorConfig{
			WindowSize:   governor.DefaultWindowSize,
			BaseWindowMs: int(governor.DefaultBaseWindow / time.Millisecond),
		},
		Backend:        backend.DefaultConfig(),
		Dispatch:       DispatchConfig{MaxBatchSize: DefaultMaxBatchSize},
		CostPerHourUSD: metrics.DefaultCostPerHourUSD,
		Tenants:        tenants,
	}
}

// Load reads and strictly decodes a Bundle from path. Unknown keys are
// rejected (spec's ambient config-validation expectation, per the
// teacher's LoadPolicyBundle).
func Load(path string) (Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Bundle{}, fmt.Errorf("reading config: %w", err)
	}
	bundle := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&bundle); err != nil {
		return Bundle{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := bundle.Validate(); err != nil {
		return Bundle{}, err
	}
	return bundle, nil
}

// Validate checks cross-field invariants the YAML decoder cannot express.
func (b Bundle) Validate() error {
	if b.Governor.WindowSize <= 0 {
		return fmt.Errorf("config: governor.window_size must be > 0, got %d", b.Governor.WindowSize)
	}
	if b.Governor.BaseWindowMs <= 0 {
		return fmt.Errorf("config: governor.base_window_ms must be > 0, got %d", b.Governor.BaseWindowMs)
	}
	if b.Dispatch.MaxBatchSize <= 0 {
		return fmt.Errorf("config: dispatch.max_batch_size must be > 0, got %d", b.Dispatch.MaxBatchSize)
	}
	seen := make(map[string]bool, len(b.Tenants))
	for _, t := range b.Tenants {
		if t.TenantID == "" {
			return fmt.Errorf("config: tenant entry missing tenant_id")
		}
		if seen[t.TenantID] {
			return fmt.Errorf("config: duplicate tenant_id %q", t.TenantID)
		}
		seen[t.TenantID] = true
		if t.RateLimit <= 0 || t.BurstCap <= 0 {
			return fmt.Errorf("config: tenant %q must have positive rate_limit and burst_cap", t.TenantID)
		}
	}
	return nil
}

// BaseWindow returns the governor's base batch window as a time.Duration.
func (g GovernorConfig) BaseWindow() time.Duration {
	return time.Duration(g.BaseWindowMs) * time.Millisecond
}

// TenantConfigs converts the bootstrap rows into tenant.Config values.
func (b Bundle) TenantConfigs() []tenant.Config {
	out := make([]tenant.Config, 0, len(b.Tenants))
	for _, t := range b.Tenants {
		out = append(out, tenant.Config{TenantID: t.TenantID, RateLimit: t.RateLimit, BurstCap: t.BurstCap})
	}
	return out
}
