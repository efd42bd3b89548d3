package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const minimalYAML = `environment: test
feed:
  source: none
ledger:
  backend: memory
symbols:
  - symbol: EURUSD-OTC
    market: forex
    initial_price: 1.085
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsPayoutFraction(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	s := cfg.Symbols[0]
	if s.Risk.PayoutPct != 0.85 {
		t.Fatalf("defaulted payout_pct = %v, want fraction 0.85", s.Risk.PayoutPct)
	}
	if s.PipSize != 0.0001 {
		t.Fatalf("defaulted pip_size = %v, want 0.0001", s.PipSize)
	}
}

func TestValidateRejectsPercentagePayout(t *testing.T) {
	body := strings.Replace(minimalYAML, "initial_price: 1.085",
		"initial_price: 1.085\n    risk:\n      payout_pct: 85", 1)

	_, err := Load(writeConfig(t, body))
	if err == nil {
		t.Fatalf("expected validation error for payout_pct 85")
	}
	if !strings.Contains(err.Error(), "payout_pct") {
		t.Fatalf("error does not name payout_pct: %v", err)
	}
}

func TestValidateRejectsDuplicateSymbols(t *testing.T) {
	body := minimalYAML + `  - symbol: EURUSD-OTC
    market: forex
    initial_price: 1.085
`
	_, err := Load(writeConfig(t, body))
	if err == nil {
		t.Fatalf("expected validation error for duplicate symbol")
	}
	if !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("error does not mention duplicate: %v", err)
	}
}
