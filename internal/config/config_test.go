package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default("site-1")
	if cfg.Project.ID != "site-1" {
		t.Fatalf("expected project id site-1, got %s", cfg.Project.ID)
	}
	if cfg.Priority() != "medium" {
		t.Fatalf("expected default priority medium, got %s", cfg.Priority())
	}
	if cfg.ContractorStatus() != "Active" {
		t.Fatalf("expected default contractor status Active, got %s", cfg.ContractorStatus())
	}
	if cfg.RollingWindowDays() != 7 {
		t.Fatalf("expected default rolling window 7, got %d", cfg.RollingWindowDays())
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestFromYAML(t *testing.T) {
	cfg, err := FromYAML([]byte(`
project:
  id: site-1
  name: North Tower
defaults:
  priority: high
  contractor_status: Standby
stats:
  rolling_window_days: 14
webhooks:
  - url: https://example.com/hook
    events: [activity.created]
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Project.Name != "North Tower" || cfg.Defaults.Priority != "high" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.RollingWindowDays() != 14 {
		t.Fatalf("expected window 14, got %d", cfg.RollingWindowDays())
	}
	if len(cfg.Webhooks) != 1 || cfg.Webhooks[0].URL != "https://example.com/hook" {
		t.Fatalf("unexpected webhooks: %+v", cfg.Webhooks)
	}
}

func TestFromYAMLValidation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"missing project id", "project:\n  name: x\n", "project.id"},
		{"bad priority", "project:\n  id: p\ndefaults:\n  priority: urgent\n", "priority"},
		{"bad status", "project:\n  id: p\ndefaults:\n  contractor_status: Busy\n", "contractor_status"},
		{"negative window", "project:\n  id: p\nstats:\n  rolling_window_days: -1\n", "rolling_window_days"},
		{"webhook without url", "project:\n  id: p\nwebhooks:\n  - events: [a]\n", "url"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromYAML([]byte(tc.yaml))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil || cfg != nil {
		t.Fatalf("expected nil,nil for missing file, got %v %v", cfg, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sitebrief.yml"), []byte(GenerateDefault("site-1")), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err = LoadOptional(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg == nil || cfg.Project.ID != "site-1" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}
