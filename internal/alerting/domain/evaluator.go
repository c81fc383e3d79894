package alerting

import (
	"math"

	instrument "geomon-cloud/internal/instruments/domain"
	reading "geomon-cloud/internal/readings/domain"
)

// Breach records one axis exceeding one severity threshold.
type Breach struct {
	Axis      reading.Axis `json:"axis"`
	Severity  Severity     `json:"severity"`
	Value     float64      `json:"value"`
	Threshold float64      `json:"threshold"`
}

// Evaluate compares a set of axis values against an instrument's threshold
// profile and returns every severity breach, highest severity first per axis.
//
// Only the axes the profile defines are evaluated. When a calibration is
// given it is applied first; axes missing a raw value are skipped entirely.
// A severity fires iff the threshold is set and abs(value) >= threshold;
// sign carries no significance, only magnitude.
func Evaluate(values map[reading.Axis]float64, cal *instrument.Calibration, profile instrument.ThresholdProfile) []Breach {
	adjusted := cal.Adjust(values)

	var breaches []Breach
	for _, axis := range profile.Axes {
		value, ok := adjusted[axis]
		if !ok {
			continue
		}
		levels := profile.Levels(axis)
		for _, severity := range Severities {
			threshold := thresholdFor(levels, severity)
			if threshold == nil {
				continue
			}
			if math.Abs(value) >= *threshold {
				breaches = append(breaches, Breach{
					Axis:      axis,
					Severity:  severity,
					Value:     value,
					Threshold: *threshold,
				})
			}
		}
	}
	return breaches
}

func thresholdFor(levels instrument.SeverityValues, severity Severity) *float64 {
	switch severity {
	case SeverityAlert:
		return levels.Alert
	case SeverityWarning:
		return levels.Warning
	case SeverityShutdown:
		return levels.Shutdown
	default:
		return nil
	}
}
