package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	alerting "geomon-cloud/internal/alerting/domain"
)

// Postgres unique_violation. The ledger carries a unique index over
// (instrument_id, node_id, timestamp); a violation means another writer
// already recorded the notification.
const uniqueViolation = "23505"

// SentAlertLedger is the Postgres dedup ledger. Records are insert-only.
type SentAlertLedger struct {
	db *sql.DB
}

// NewSentAlertLedger constructs a ledger.
func NewSentAlertLedger(db *sql.DB) *SentAlertLedger {
	return &SentAlertLedger{db: db}
}

// HasAlerted reports whether a notification was already sent for this exact
// (instrument, device, timestamp). The timestamp is matched byte-for-byte
// against the stored upstream string.
func (l *SentAlertLedger) HasAlerted(ctx context.Context, instrumentID string, deviceID int64, timestamp string) (bool, error) {
	if l == nil || l.db == nil {
		return false, errors.New("sent alert ledger: nil db")
	}
	var exists bool
	err := l.db.QueryRowContext(ctx, `
SELECT EXISTS (
	SELECT 1 FROM sent_alerts
	WHERE instrument_id = $1 AND node_id = $2 AND timestamp = $3
)`, instrumentID, deviceID, timestamp).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// Record inserts a ledger record. A unique violation means a concurrent
// writer got there first and is reported as success.
func (l *SentAlertLedger) Record(ctx context.Context, rec alerting.SentAlert) error {
	if l == nil || l.db == nil {
		return errors.New("sent alert ledger: nil db")
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.AlertType == "" {
		rec.AlertType = alerting.AlertTypeAny
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := l.db.ExecContext(ctx, `
INSERT INTO sent_alerts (id, instrument_id, node_id, timestamp, alert_type, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.InstrumentID, rec.DeviceID, rec.Timestamp, rec.AlertType, rec.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return nil
	}
	return err
}

// History returns ledger records newest first, optionally scoped to one
// instrument.
func (l *SentAlertLedger) History(ctx context.Context, instrumentID string, limit int) ([]alerting.SentAlert, error) {
	if l == nil || l.db == nil {
		return nil, errors.New("sent alert ledger: nil db")
	}
	if limit <= 0 {
		limit = 200
	}
	query := `
SELECT id, instrument_id, node_id, timestamp, alert_type, created_at
FROM sent_alerts`
	args := []any{}
	if instrumentID != "" {
		query += ` WHERE instrument_id = $1`
		args = append(args, instrumentID)
	}
	if len(args) == 0 {
		query += ` ORDER BY created_at DESC LIMIT $1`
	} else {
		query += ` ORDER BY created_at DESC LIMIT $2`
	}
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []alerting.SentAlert
	for rows.Next() {
		var rec alerting.SentAlert
		if err := rows.Scan(&rec.ID, &rec.InstrumentID, &rec.DeviceID, &rec.Timestamp, &rec.AlertType, &rec.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
