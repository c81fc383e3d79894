// Package adapters binds the reading sources a check can be configured
// with to the checker's fetch port.
package adapters

import (
	"context"
	"errors"
	"time"

	"geomon-cloud/internal/micromate"
	reading "geomon-cloud/internal/readings/domain"
	"geomon-cloud/internal/upstream/syscom"
)

// The store keeps upstream timestamps verbatim; range bounds are rendered
// in the dominant upstream layout and compared as strings. A stored string
// carrying a zone suffix can sort outside naive bounds, so the prefilter
// widens each bound by the largest legal UTC offset. The checker's
// parsed-time filter owns the exact window.
const (
	storeQueryLayout = "2006-01-02T15:04:05"
	storeWindowPad   = 14 * time.Hour
)

// ReadingLister is the slice of the readings repository the store source
// needs.
type ReadingLister interface {
	ListByNode(ctx context.Context, nodeID int64, from, to string, limit int) ([]reading.Reading, error)
}

// StoreSource serves checks from previously ingested readings.
type StoreSource struct {
	store ReadingLister
}

// NewStoreSource constructs a store-backed source.
func NewStoreSource(store ReadingLister) (*StoreSource, error) {
	if store == nil {
		return nil, errors.New("store source: nil store")
	}
	return &StoreSource{store: store}, nil
}

// Fetch lists stored readings for a widened window around [from, to].
// Over-fetching is safe; under-fetching would drop breaches.
func (s *StoreSource) Fetch(ctx context.Context, deviceID int64, from, to time.Time) ([]reading.Reading, error) {
	return s.store.ListByNode(ctx, deviceID,
		from.UTC().Add(-storeWindowPad).Format(storeQueryLayout),
		to.UTC().Add(storeWindowPad).Format(storeQueryLayout), 0)
}

// SyscomSource serves checks straight from the Syscom records API.
type SyscomSource struct {
	client *syscom.Client
}

// NewSyscomSource constructs a Syscom-backed source.
func NewSyscomSource(client *syscom.Client) (*SyscomSource, error) {
	if client == nil {
		return nil, errors.New("syscom source: nil client")
	}
	return &SyscomSource{client: client}, nil
}

// Fetch pulls background records for the device and maps the rows onto
// axis values. An empty window upstream yields no readings and no error.
func (s *SyscomSource) Fetch(ctx context.Context, deviceID int64, from, to time.Time) ([]reading.Reading, error) {
	rows, err := s.client.BackgroundData(ctx, deviceID, from, to)
	if err != nil {
		return nil, err
	}
	readings := make([]reading.Reading, 0, len(rows))
	for _, row := range rows {
		r := reading.Reading{
			NodeID:    deviceID,
			Timestamp: row.Timestamp,
			Values: map[reading.Axis]float64{
				reading.AxisX: row.X,
				reading.AxisY: row.Y,
				reading.AxisZ: row.Z,
			},
		}
		if at, err := reading.ParseTimestamp(row.Timestamp); err == nil {
			r.At = at
		}
		readings = append(readings, r)
	}
	return readings, nil
}

// MicromateSource serves checks from vendor export files. The device id is
// carried onto the readings but does not select files; a store holds one
// instrument's drop directory.
type MicromateSource struct {
	store *micromate.Store
}

// NewMicromateSource constructs a file-backed source.
func NewMicromateSource(store *micromate.Store) (*MicromateSource, error) {
	if store == nil {
		return nil, errors.New("micromate source: nil store")
	}
	return &MicromateSource{store: store}, nil
}

// Fetch parses the export files and maps histogram channels onto the
// longitudinal, transverse, and vertical axes. Individual bad files are
// skipped; only a failing directory scan is an error.
func (s *MicromateSource) Fetch(ctx context.Context, deviceID int64, from, to time.Time) ([]reading.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, _, failures := s.store.Readings()
	if len(rows) == 0 && len(failures) > 0 {
		return nil, failures[0]
	}
	readings := make([]reading.Reading, 0, len(rows))
	for _, row := range rows {
		r := reading.Reading{
			NodeID:    deviceID,
			Timestamp: row.Time,
			Values: map[reading.Axis]float64{
				reading.AxisLongitudinal: float64(row.Longitudinal),
				reading.AxisTransverse:   float64(row.Transverse),
				reading.AxisVertical:     float64(row.Vertical),
			},
		}
		if at, err := reading.ParseTimestamp(row.Time); err == nil {
			r.At = at
		}
		readings = append(readings, r)
	}
	return readings, nil
}
