package alerting

import (
	"errors"
	"time"
)

// Log levels recorded in the pipeline event log. ERROR entries feed the
// connection monitor; NOTIFY entries mark monitor emails for cooldown.
const (
	LogLevelInfo   = "INFO"
	LogLevelError  = "ERROR"
	LogLevelNotify = "NOTIFY"
)

// LogEntry is one pipeline event.
type LogEntry struct {
	ID           string    `json:"id"`
	Level        string    `json:"level"`
	InstrumentID string    `json:"instrument_id,omitempty"`
	DeviceID     int64     `json:"node_id,omitempty"`
	Message      string    `json:"message"`
	CreatedAt    time.Time `json:"created_at"`
}

// Validate checks event invariants.
func (e LogEntry) Validate() error {
	if e.Level == "" {
		return errors.New("log entry: empty level")
	}
	if e.Message == "" {
		return errors.New("log entry: empty message")
	}
	return nil
}
