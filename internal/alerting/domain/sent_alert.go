package alerting

import (
	"errors"
	"time"
)

// AlertTypeAny marks a ledger record covering every severity present in an
// aggregated notification. Per-breach backfill sends record the severity
// name instead.
const AlertTypeAny = "any"

// SentAlert is the dedup ledger's unit of truth: one record per
// (instrument, device, timestamp) that produced an outgoing notification.
// Insert-only; the timestamp is compared byte-for-byte against the upstream
// string, never as a parsed instant.
type SentAlert struct {
	ID           string    `json:"id"`
	InstrumentID string    `json:"instrument_id"`
	DeviceID     int64     `json:"node_id"`
	Timestamp    string    `json:"timestamp"`
	AlertType    string    `json:"alert_type"`
	CreatedAt    time.Time `json:"created_at"`
}

// Validate checks ledger record invariants.
func (s SentAlert) Validate() error {
	if s.InstrumentID == "" {
		return errors.New("sent alert: empty instrument id")
	}
	if s.DeviceID == 0 {
		return errors.New("sent alert: empty device id")
	}
	if s.Timestamp == "" {
		return errors.New("sent alert: empty timestamp")
	}
	return nil
}
