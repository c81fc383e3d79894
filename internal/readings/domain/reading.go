package reading

import (
	"errors"
	"time"
)

// Axis identifies one measurement channel of a multi-axis instrument.
type Axis string

const (
	AxisX Axis = "X"
	AxisY Axis = "Y"
	AxisZ Axis = "Z"

	AxisLongitudinal Axis = "Longitudinal"
	AxisTransverse   Axis = "Transverse"
	AxisVertical     Axis = "Vertical"
)

// Reading is one timestamped multi-axis sample from an instrument.
// Timestamp keeps the upstream string byte-for-byte: it is the natural key
// used for alert deduplication, so it is never re-formatted after ingest.
type Reading struct {
	NodeID    int64
	Timestamp string
	At        time.Time
	Values    map[Axis]float64
}

// Validate checks reading invariants.
func (r Reading) Validate() error {
	if r.NodeID == 0 {
		return errors.New("reading: empty node id")
	}
	if r.Timestamp == "" {
		return errors.New("reading: empty timestamp")
	}
	if len(r.Values) == 0 {
		return errors.New("reading: no axis values")
	}
	return nil
}

// Value returns the value for an axis and whether it is present.
func (r Reading) Value(axis Axis) (float64, bool) {
	v, ok := r.Values[axis]
	return v, ok
}

// ParseTimestamp parses an upstream ISO-8601 timestamp. The parsed instant is
// only used for window filtering; dedup always compares the raw string.
func ParseTimestamp(ts string) (time.Time, error) {
	if ts == "" {
		return time.Time{}, errors.New("reading: empty timestamp")
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, ts); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("reading: unparseable timestamp " + ts)
}
