package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"geomon-cloud/internal/observability/metrics"
	reading "geomon-cloud/internal/readings/domain"
	"geomon-cloud/internal/upstream/loadsensing"
)

// ReadingWriter stores fetched readings. Inserts are idempotent on
// (node, timestamp), so re-fetching a window is safe.
type ReadingWriter interface {
	Insert(ctx context.Context, rd reading.Reading) error
}

// TiltFetcher pulls current tilt readings for one node.
type TiltFetcher interface {
	NodeReadings(ctx context.Context, nodeID int64) ([]loadsensing.NodeReading, error)
}

// IngestService polls the tilt dataserver and stores new readings.
type IngestService struct {
	fetcher TiltFetcher
	store   ReadingWriter
	nodes   []int64
	logger  *log.Logger
}

// NewIngestService constructs an ingest service.
func NewIngestService(fetcher TiltFetcher, store ReadingWriter, nodes []int64, logger *log.Logger) (*IngestService, error) {
	if fetcher == nil {
		return nil, errors.New("ingest: nil fetcher")
	}
	if store == nil {
		return nil, errors.New("ingest: nil store")
	}
	if len(nodes) == 0 {
		return nil, errors.New("ingest: no nodes")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &IngestService{fetcher: fetcher, store: store, nodes: nodes, logger: logger}, nil
}

// FetchNode pulls and stores one node's readings, returning the number
// handed to the store.
func (s *IngestService) FetchNode(ctx context.Context, nodeID int64) (int, error) {
	rows, err := s.fetcher.NodeReadings(ctx, nodeID)
	if err != nil {
		metrics.IncUpstreamError("loadsensing")
		return 0, fmt.Errorf("ingest node %d: %w", nodeID, err)
	}
	stored := 0
	for _, row := range rows {
		rd := reading.Reading{
			NodeID:    nodeID,
			Timestamp: row.Timestamp,
			Values:    make(map[reading.Axis]float64, 3),
		}
		if row.X != nil {
			rd.Values[reading.AxisX] = *row.X
		}
		if row.Y != nil {
			rd.Values[reading.AxisY] = *row.Y
		}
		if row.Z != nil {
			rd.Values[reading.AxisZ] = *row.Z
		}
		if len(rd.Values) == 0 {
			continue
		}
		if at, err := reading.ParseTimestamp(row.Timestamp); err == nil {
			rd.At = at
		}
		if err := s.store.Insert(ctx, rd); err != nil {
			metrics.IncIngestError("store")
			return stored, fmt.Errorf("ingest node %d: store: %w", nodeID, err)
		}
		stored++
	}
	metrics.AddIngested(stored)
	return stored, nil
}

// FetchAll pulls every configured node. Per-node failures are logged and
// counted; the sweep continues.
func (s *IngestService) FetchAll(ctx context.Context) int {
	total := 0
	for _, nodeID := range s.nodes {
		stored, err := s.FetchNode(ctx, nodeID)
		total += stored
		if err != nil {
			s.logger.Printf("ingest error: %v", err)
		}
	}
	return total
}

// Run polls on the interval until ctx is done. The first sweep runs
// immediately.
func (s *IngestService) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	s.logger.Printf("ingest started, interval %s, %d nodes", interval, len(s.nodes))
	s.FetchAll(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Printf("ingest stopped: %v", ctx.Err())
			return
		case <-ticker.C:
			s.FetchAll(ctx)
		}
	}
}
