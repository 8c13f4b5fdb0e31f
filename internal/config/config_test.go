package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempYAML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing temp yaml: %v", err)
	}
	return path
}

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default bundle failed validation: %v", err)
	}
}

func TestDefault_HasBootstrapTenants(t *testing.T) {
	b := Default()
	if len(b.Tenants) == 0 {
		t.Fatal("expected default bundle to include bootstrap tenants")
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	yaml := `
governor:
  window_size: 100
  base_window_ms: 20
dispatch:
  max_batch_size: 8
cost_per_hour_usd: 5.0
tenants:
  - tenant_id: custom
    rate_limit: 10
    burst_cap: 100
`
	path := writeTempYAML(t, yaml)
	b, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Governor.WindowSize != 100 {
		t.Errorf("window_size = %d, want 100", b.Governor.WindowSize)
	}
	if b.Dispatch.MaxBatchSize != 8 {
		t.Errorf("max_batch_size = %d, want 8", b.Dispatch.MaxBatchSize)
	}
	if len(b.Tenants) != 1 || b.Tenants[0].TenantID != "custom" {
		t.Errorf("tenants = %+v, want single custom tenant", b.Tenants)
	}
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	path := writeTempYAML(t, "typo_field: 42\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestLoad_MissingFileReturnsError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml")); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestValidate_RejectsDuplicateTenantID(t *testing.T) {
	b := Default()
	b.Tenants = []TenantBootstrap{
		{TenantID: "dup", RateLimit: 1, BurstCap: 1},
		{TenantID: "dup", RateLimit: 1, BurstCap: 1},
	}
	if err := b.Validate(); err == nil {
		t.Fatal("expected error for duplicate tenant_id, got nil")
	}
}

func TestValidate_RejectsNonPositiveWindowSize(t *testing.T) {
	b := Default()
	b.Governor.WindowSize = 0
	if err := b.Validate(); err == nil {
		t.Fatal("expected error for zero window_size, got nil")
	}
}

func TestGovernorConfig_BaseWindow_ConvertsMillisecondsToDuration(t *testing.T) {
	g := GovernorConfig{BaseWindowMs: 15}
	if g.BaseWindow().Milliseconds() != 15 {
		t.Errorf("BaseWindow() = %v, want 15ms", g.BaseWindow())
	}
}
