package application

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFleetConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
checks:
  - instrument_id: TILT-4
    device_id: 142939
  - instrument_id: SMG-3
    device_id: 13453
    label: portal seismograph
    source: syscom
    lookback: 2h
    clock_skew: 30m
    grouping: true
    emit_per_breach: true
`)
	cfg, err := LoadFleetConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Checks) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(cfg.Checks))
	}

	first := cfg.Checks[0]
	if first.Source != SourceStore {
		t.Errorf("source must default to store, got %q", first.Source)
	}
	if first.Lookback != time.Hour || first.ClockSkew != 0 {
		t.Errorf("window defaults wrong: lookback=%s skew=%s", first.Lookback, first.ClockSkew)
	}
	if first.Label != "TILT-4" {
		t.Errorf("label must default to the instrument id, got %q", first.Label)
	}

	second := cfg.Checks[1]
	if second.Source != SourceSyscom || second.Lookback != 2*time.Hour || second.ClockSkew != 30*time.Minute {
		t.Errorf("explicit values not honored: %+v", second)
	}
	if !second.Grouping || !second.EmitPerBreach {
		t.Errorf("flags not honored: %+v", second)
	}

	if _, ok := cfg.CheckByInstrument("SMG-3"); !ok {
		t.Error("lookup by instrument must find configured checks")
	}
	if _, ok := cfg.CheckByInstrument("absent"); ok {
		t.Error("lookup must miss unknown instruments")
	}
}

func TestLoadFleetConfigRejectsBadSpecs(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"empty", "checks: []\n"},
		{"missing device", "checks:\n  - instrument_id: TILT-4\n"},
		{"unknown source", "checks:\n  - instrument_id: TILT-4\n    device_id: 1\n    source: carrier-pigeon\n"},
		{"negative skew", "checks:\n  - instrument_id: TILT-4\n    device_id: 1\n    clock_skew: -1h\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.content)
			if _, err := LoadFleetConfig(path); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
