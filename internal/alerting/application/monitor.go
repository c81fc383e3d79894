package application

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"strings"
	"time"

	alerting "geomon-cloud/internal/alerting/domain"
	"geomon-cloud/internal/alerting/notify"
)

// EventLogReader reads back pipeline events.
type EventLogReader interface {
	EventLog
	ListSince(ctx context.Context, level string, since time.Time) ([]alerting.LogEntry, error)
	LastAt(ctx context.Context, level string) (time.Time, error)
}

// Monitor watches the pipeline event log for accumulated ERROR entries and
// emails the operations list. A cooldown keeps a persistent outage from
// producing an email every sweep.
type Monitor struct {
	events     EventLogReader
	mailer     notify.Mailer
	recipients []string
	window     time.Duration
	cooldown   time.Duration
	logger     *log.Logger
	now        func() time.Time
}

// MonitorOption configures a monitor.
type MonitorOption func(*Monitor)

// WithMonitorClock overrides the monitor's clock.
func WithMonitorClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMonitor constructs a monitor. Window defaults to 24 hours, cooldown
// to 6 hours.
func NewMonitor(events EventLogReader, mailer notify.Mailer, recipients []string, window, cooldown time.Duration, logger *log.Logger, opts ...MonitorOption) (*Monitor, error) {
	if events == nil {
		return nil, errors.New("monitor: nil event log")
	}
	if mailer == nil {
		return nil, errors.New("monitor: nil mailer")
	}
	if len(recipients) == 0 {
		return nil, errors.New("monitor: no recipients")
	}
	if window <= 0 {
		window = 24 * time.Hour
	}
	if cooldown <= 0 {
		cooldown = 6 * time.Hour
	}
	if logger == nil {
		logger = log.Default()
	}
	m := &Monitor{
		events:     events,
		mailer:     mailer,
		recipients: recipients,
		window:     window,
		cooldown:   cooldown,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// RunOnce scans the window and sends at most one summary email. It reports
// whether an email went out.
func (m *Monitor) RunOnce(ctx context.Context) (bool, error) {
	now := m.now()
	entries, err := m.events.ListSince(ctx, alerting.LogLevelError, now.Add(-m.window))
	if err != nil {
		return false, fmt.Errorf("monitor: list errors: %w", err)
	}
	if len(entries) == 0 {
		return false, nil
	}

	lastNotified, err := m.events.LastAt(ctx, alerting.LogLevelNotify)
	if err != nil {
		return false, fmt.Errorf("monitor: last notification: %w", err)
	}
	if !lastNotified.IsZero() && now.Sub(lastNotified) < m.cooldown {
		return false, nil
	}

	msg := m.compose(entries)
	if err := m.mailer.Send(ctx, notify.Email{To: m.recipients, Subject: msg.Subject, HTML: msg.HTML}); err != nil {
		return false, fmt.Errorf("monitor: send summary: %w", err)
	}
	if err := m.events.Append(ctx, alerting.LogEntry{
		Level:   alerting.LogLevelNotify,
		Message: fmt.Sprintf("connection summary sent, %d errors in window", len(entries)),
	}); err != nil {
		// The email is out; a failed marker only shortens the cooldown.
		m.logger.Printf("monitor: record notification: %v", err)
	}
	return true, nil
}

// Run blocks, scanning on the given interval until ctx is done.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.RunOnce(ctx); err != nil {
				m.logger.Printf("monitor error: %v", err)
			}
		}
	}
}

const monitorMaxListed = 20

func (m *Monitor) compose(entries []alerting.LogEntry) notify.Message {
	var b strings.Builder
	b.WriteString("<html><body>")
	fmt.Fprintf(&b, "<p>%d pipeline errors in the last %s.</p>", len(entries), m.window)
	b.WriteString("<ul>")
	for i, e := range entries {
		if i == monitorMaxListed {
			fmt.Fprintf(&b, "<li>and %d more</li>", len(entries)-monitorMaxListed)
			break
		}
		label := e.InstrumentID
		if label == "" {
			label = "pipeline"
		}
		fmt.Fprintf(&b, "<li>%s %s: %s</li>", e.CreatedAt.UTC().Format(time.RFC3339), html.EscapeString(label), html.EscapeString(e.Message))
	}
	b.WriteString("</ul></body></html>")
	return notify.Message{
		Subject: fmt.Sprintf("Monitoring pipeline: %d errors in the last %s", len(entries), m.window),
		HTML:    b.String(),
	}
}
