package instrument

import (
	"errors"
	"time"

	reading "geomon-cloud/internal/readings/domain"
)

// ProfileKind distinguishes single-scalar from per-axis threshold profiles.
// An instrument is exclusively one kind for its whole lifetime.
type ProfileKind string

const (
	KindScalar  ProfileKind = "scalar"
	KindPerAxis ProfileKind = "per-axis"
)

// SeverityValues holds the three optional threshold levels. A nil level
// never breaches; it must not be treated as zero.
type SeverityValues struct {
	Alert    *float64 `json:"alert,omitempty"`
	Warning  *float64 `json:"warning,omitempty"`
	Shutdown *float64 `json:"shutdown,omitempty"`
}

// ThresholdProfile defines which axes an instrument evaluates and the
// thresholds applied to them. Scalar profiles apply the same three levels to
// every listed axis; per-axis profiles carry levels per axis. Axis selection
// is explicit: tiltmeters list X and Z only, excluding the vertical axis
// from alerting to avoid false positives from instrument settling.
type ThresholdProfile struct {
	Kind    ProfileKind
	Axes    []reading.Axis
	Scalar  SeverityValues
	PerAxis map[reading.Axis]SeverityValues
}

// Validate checks the exclusive-kind invariant.
func (p ThresholdProfile) Validate() error {
	switch p.Kind {
	case KindScalar:
		if len(p.PerAxis) != 0 {
			return errors.New("threshold profile: scalar profile carries per-axis values")
		}
	case KindPerAxis:
		if p.Scalar != (SeverityValues{}) {
			return errors.New("threshold profile: per-axis profile carries scalar values")
		}
	default:
		return errors.New("threshold profile: unknown kind")
	}
	if len(p.Axes) == 0 {
		return errors.New("threshold profile: no axes")
	}
	return nil
}

// Levels returns the severity values applied to an axis.
func (p ThresholdProfile) Levels(axis reading.Axis) SeverityValues {
	if p.Kind == KindPerAxis {
		return p.PerAxis[axis]
	}
	return p.Scalar
}

// Instrument is a monitored device with its threshold profile and the
// recipient lists per severity.
type Instrument struct {
	InstrumentID   string           `json:"instrument_id"`
	Name           string           `json:"instrument_name"`
	SerialNumber   string           `json:"serial_number"`
	Location       string           `json:"instrument_location"`
	ProjectID      int64            `json:"project_id"`
	ProjectName    string           `json:"project_name"`
	Profile        ThresholdProfile `json:"-"`
	AlertEmails    []string         `json:"alert_emails"`
	WarningEmails  []string         `json:"warning_emails"`
	ShutdownEmails []string         `json:"shutdown_emails"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Validate checks instrument invariants.
func (i Instrument) Validate() error {
	if i.InstrumentID == "" {
		return errors.New("instrument: empty instrument id")
	}
	return i.Profile.Validate()
}

// Calibration is a per-instrument reference offset subtracted from raw
// readings before threshold comparison. Mutated by configuration endpoints,
// read-only to the alerting core.
type Calibration struct {
	InstrumentID string
	Enabled      bool
	Reference    map[reading.Axis]float64
	ValidFrom    *time.Time
	ValidUntil   *time.Time
}

// ActiveAt reports whether the calibration applies at the given instant.
func (c *Calibration) ActiveAt(t time.Time) bool {
	if c == nil || !c.Enabled {
		return false
	}
	if c.ValidFrom != nil && t.Before(*c.ValidFrom) {
		return false
	}
	if c.ValidUntil != nil && t.After(*c.ValidUntil) {
		return false
	}
	return true
}

// Adjust subtracts reference values from the raw values. Axes without a raw
// value stay absent; axes without a reference value pass through unchanged.
func (c *Calibration) Adjust(values map[reading.Axis]float64) map[reading.Axis]float64 {
	if c == nil || !c.Enabled {
		return values
	}
	adjusted := make(map[reading.Axis]float64, len(values))
	for axis, raw := range values {
		if ref, ok := c.Reference[axis]; ok {
			adjusted[axis] = raw - ref
			continue
		}
		adjusted[axis] = raw
	}
	return adjusted
}
