package application

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Reading sources a check can be wired to.
const (
	SourceStore     = "store"
	SourceSyscom    = "syscom"
	SourceMicromate = "micromate"
)

// CheckSpec defines one scheduled threshold check.
type CheckSpec struct {
	InstrumentID  string
	DeviceID      int64
	Label         string
	Source        string
	Lookback      time.Duration
	ClockSkew     time.Duration
	Grouping      bool
	EmitPerBreach bool
}

// Validate checks one spec.
func (c CheckSpec) Validate() error {
	if c.InstrumentID == "" {
		return errors.New("check: empty instrument id")
	}
	if c.DeviceID == 0 {
		return errors.New("check: empty device id")
	}
	switch c.Source {
	case SourceStore, SourceSyscom, SourceMicromate:
	default:
		return fmt.Errorf("check %s: unknown source %q", c.InstrumentID, c.Source)
	}
	if c.Lookback <= 0 {
		return fmt.Errorf("check %s: lookback must be positive", c.InstrumentID)
	}
	if c.ClockSkew < 0 {
		return fmt.Errorf("check %s: negative clock skew", c.InstrumentID)
	}
	return nil
}

// FleetConfig defines the monitored fleet.
type FleetConfig struct {
	Checks []CheckSpec
}

// rawCheck is the yaml shape; durations arrive as Go duration strings.
type rawCheck struct {
	InstrumentID  string `yaml:"instrument_id"`
	DeviceID      int64  `yaml:"device_id"`
	Label         string `yaml:"label"`
	Source        string `yaml:"source"`
	Lookback      string `yaml:"lookback"`
	ClockSkew     string `yaml:"clock_skew"`
	Grouping      bool   `yaml:"grouping"`
	EmitPerBreach bool   `yaml:"emit_per_breach"`
}

type rawConfig struct {
	Checks []rawCheck `yaml:"checks"`
}

// Defaults applied per check when the config omits them. Clock skew
// defaults to zero: only instruments whose clocks are known to lag get a
// shifted window, and they must say so in the config.
const (
	defaultLookback  = time.Hour
	defaultClockSkew = time.Duration(0)
)

// LoadFleetConfig loads the fleet definition from a yaml file.
func LoadFleetConfig(path string) (FleetConfig, error) {
	if path == "" {
		return FleetConfig{}, errors.New("fleet config: empty path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return FleetConfig{}, err
	}
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return FleetConfig{}, fmt.Errorf("fleet config %s: %w", path, err)
	}
	if len(raw.Checks) == 0 {
		return FleetConfig{}, fmt.Errorf("fleet config %s: no checks", path)
	}

	var cfg FleetConfig
	for _, rc := range raw.Checks {
		spec := CheckSpec{
			InstrumentID:  rc.InstrumentID,
			DeviceID:      rc.DeviceID,
			Label:         rc.Label,
			Source:        rc.Source,
			Grouping:      rc.Grouping,
			EmitPerBreach: rc.EmitPerBreach,
		}
		spec.Lookback, err = parseDuration(rc.Lookback, defaultLookback)
		if err != nil {
			return FleetConfig{}, fmt.Errorf("fleet config %s: check %s: lookback: %w", path, rc.InstrumentID, err)
		}
		spec.ClockSkew, err = parseDuration(rc.ClockSkew, defaultClockSkew)
		if err != nil {
			return FleetConfig{}, fmt.Errorf("fleet config %s: check %s: clock_skew: %w", path, rc.InstrumentID, err)
		}
		if spec.Source == "" {
			spec.Source = SourceStore
		}
		if spec.Label == "" {
			spec.Label = spec.InstrumentID
		}
		if err := spec.Validate(); err != nil {
			return FleetConfig{}, err
		}
		cfg.Checks = append(cfg.Checks, spec)
	}
	return cfg, nil
}

func parseDuration(value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	return time.ParseDuration(value)
}

// CheckByInstrument returns the check configured for an instrument.
func (c FleetConfig) CheckByInstrument(instrumentID string) (CheckSpec, bool) {
	for _, check := range c.Checks {
		if check.InstrumentID == instrumentID {
			return check, true
		}
	}
	return CheckSpec{}, false
}
