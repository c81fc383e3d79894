package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	reading "geomon-cloud/internal/readings/domain"
)

// ReadingRepository is a Postgres repository for sensor readings.
type ReadingRepository struct {
	db *sql.DB
}

// NewReadingRepository constructs a repository.
func NewReadingRepository(db *sql.DB) *ReadingRepository {
	return &ReadingRepository{db: db}
}

// Insert stores one reading. Readings are immutable once stored.
func (r *ReadingRepository) Insert(ctx context.Context, rd reading.Reading) error {
	if r == nil || r.db == nil {
		return errors.New("reading repo: nil db")
	}
	if err := rd.Validate(); err != nil {
		return err
	}
	x := axisValue(rd, reading.AxisX)
	y := axisValue(rd, reading.AxisY)
	z := axisValue(rd, reading.AxisZ)
	_, err := r.db.ExecContext(ctx, `
INSERT INTO sensor_readings (node_id, timestamp, x_value, y_value, z_value, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (node_id, timestamp) DO NOTHING`,
		rd.NodeID, rd.Timestamp, x, y, z, time.Now().UTC())
	return err
}

// ListByNode returns readings for a node within [from, to], oldest first.
// Range bounds compare the stored upstream timestamp strings, which sort
// chronologically for a fixed upstream format.
func (r *ReadingRepository) ListByNode(ctx context.Context, nodeID int64, from, to string, limit int) ([]reading.Reading, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reading repo: nil db")
	}
	if nodeID == 0 {
		return nil, errors.New("reading repo: empty node id")
	}
	if limit <= 0 {
		limit = 1000
	}

	query := `
SELECT node_id, timestamp, x_value, y_value, z_value
FROM sensor_readings
WHERE node_id = $1`
	args := []any{nodeID}
	if from != "" {
		args = append(args, from)
		query += ` AND timestamp >= $2`
	}
	if to != "" {
		args = append(args, to)
		if from != "" {
			query += ` AND timestamp <= $3`
		} else {
			query += ` AND timestamp <= $2`
		}
	}
	args = append(args, limit)
	switch len(args) {
	case 2:
		query += ` ORDER BY timestamp ASC LIMIT $2`
	case 3:
		query += ` ORDER BY timestamp ASC LIMIT $3`
	case 4:
		query += ` ORDER BY timestamp ASC LIMIT $4`
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []reading.Reading
	for rows.Next() {
		var (
			rd      reading.Reading
			x, y, z sql.NullFloat64
		)
		if err := rows.Scan(&rd.NodeID, &rd.Timestamp, &x, &y, &z); err != nil {
			return nil, err
		}
		rd.Values = make(map[reading.Axis]float64, 3)
		if x.Valid {
			rd.Values[reading.AxisX] = x.Float64
		}
		if y.Valid {
			rd.Values[reading.AxisY] = y.Float64
		}
		if z.Valid {
			rd.Values[reading.AxisZ] = z.Float64
		}
		if at, err := reading.ParseTimestamp(rd.Timestamp); err == nil {
			rd.At = at
		}
		result = append(result, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func axisValue(rd reading.Reading, axis reading.Axis) any {
	if v, ok := rd.Values[axis]; ok {
		return v
	}
	return nil
}
