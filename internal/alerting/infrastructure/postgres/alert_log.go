package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	alerting "geomon-cloud/internal/alerting/domain"
)

// AlertLogRepository is a Postgres repository for pipeline events.
type AlertLogRepository struct {
	db *sql.DB
}

// NewAlertLogRepository constructs a repository.
func NewAlertLogRepository(db *sql.DB) *AlertLogRepository {
	return &AlertLogRepository{db: db}
}

// Append stores one event.
func (r *AlertLogRepository) Append(ctx context.Context, entry alerting.LogEntry) error {
	if r == nil || r.db == nil {
		return errors.New("alert log repo: nil db")
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO sent_alert_logs (id, level, instrument_id, node_id, message, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.Level, nullString(entry.InstrumentID), nullInt(entry.DeviceID), entry.Message, entry.CreatedAt)
	return err
}

// ListSince returns entries at a level recorded at or after the cutoff,
// newest first.
func (r *AlertLogRepository) ListSince(ctx context.Context, level string, since time.Time) ([]alerting.LogEntry, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert log repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, level, instrument_id, node_id, message, created_at
FROM sent_alert_logs
WHERE level = $1 AND created_at >= $2
ORDER BY created_at DESC`, level, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []alerting.LogEntry
	for rows.Next() {
		var (
			entry        alerting.LogEntry
			instrumentID sql.NullString
			deviceID     sql.NullInt64
		)
		if err := rows.Scan(&entry.ID, &entry.Level, &instrumentID, &deviceID, &entry.Message, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.InstrumentID = instrumentID.String
		entry.DeviceID = deviceID.Int64
		result = append(result, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// LastAt returns the newest entry time at a level, or the zero time when no
// entry exists.
func (r *AlertLogRepository) LastAt(ctx context.Context, level string) (time.Time, error) {
	if r == nil || r.db == nil {
		return time.Time{}, errors.New("alert log repo: nil db")
	}
	var at sql.NullTime
	err := r.db.QueryRowContext(ctx, `
SELECT MAX(created_at) FROM sent_alert_logs WHERE level = $1`, level).Scan(&at)
	if err != nil {
		return time.Time{}, err
	}
	if !at.Valid {
		return time.Time{}, nil
	}
	return at.Time, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}
