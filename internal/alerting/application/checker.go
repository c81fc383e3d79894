package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	alerting "geomon-cloud/internal/alerting/domain"
	"geomon-cloud/internal/alerting/notify"
	instrument "geomon-cloud/internal/instruments/domain"
	"geomon-cloud/internal/observability/metrics"
	reading "geomon-cloud/internal/readings/domain"
)

// ReadingSource fetches readings for one device inside a time window.
// Sources that cannot filter server-side may return extra readings; the
// checker filters the window again locally.
type ReadingSource interface {
	Fetch(ctx context.Context, deviceID int64, from, to time.Time) ([]reading.Reading, error)
}

// InstrumentReader loads instrument metadata and threshold profiles.
type InstrumentReader interface {
	GetByID(ctx context.Context, instrumentID string) (*instrument.Instrument, error)
}

// CalibrationReader loads reference offsets.
type CalibrationReader interface {
	GetByInstrument(ctx context.Context, instrumentID string) (*instrument.Calibration, error)
}

// Ledger is the dedup ledger.
type Ledger interface {
	HasAlerted(ctx context.Context, instrumentID string, deviceID int64, timestamp string) (bool, error)
	Record(ctx context.Context, rec alerting.SentAlert) error
}

// EventLog records pipeline events for the connection monitor.
type EventLog interface {
	Append(ctx context.Context, entry alerting.LogEntry) error
}

// Result summarizes one check run.
type Result struct {
	InstrumentID string `json:"instrument_id"`
	Fetched      int    `json:"fetched"`
	Evaluated    int    `json:"evaluated"`
	Breaches     int    `json:"breaches"`
	Notified     int    `json:"notified"`
	Suppressed   int    `json:"suppressed"`
}

// Checker runs the threshold check pipeline for one configured instrument:
// fetch, window, group, evaluate, dedup, render, deliver, record.
type Checker struct {
	spec         CheckSpec
	instruments  InstrumentReader
	calibrations CalibrationReader
	source       ReadingSource
	ledger       Ledger
	events       EventLog
	renderer     *notify.Renderer
	mailer       notify.Mailer
	logger       *log.Logger
	loc          *time.Location
	now          func() time.Time
}

// CheckerOption configures a checker.
type CheckerOption func(*Checker)

// WithClock overrides the checker's clock.
func WithClock(now func() time.Time) CheckerOption {
	return func(c *Checker) {
		if now != nil {
			c.now = now
		}
	}
}

// WithEventLog wires the pipeline event log.
func WithEventLog(events EventLog) CheckerOption {
	return func(c *Checker) {
		c.events = events
	}
}

// WithLocation sets the grouping and display time zone.
func WithLocation(loc *time.Location) CheckerOption {
	return func(c *Checker) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// NewChecker constructs a checker.
func NewChecker(
	spec CheckSpec,
	instruments InstrumentReader,
	calibrations CalibrationReader,
	source ReadingSource,
	ledger Ledger,
	renderer *notify.Renderer,
	mailer notify.Mailer,
	logger *log.Logger,
	opts ...CheckerOption,
) (*Checker, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if instruments == nil {
		return nil, errors.New("checker: nil instrument reader")
	}
	if source == nil {
		return nil, errors.New("checker: nil reading source")
	}
	if ledger == nil {
		return nil, errors.New("checker: nil ledger")
	}
	if renderer == nil {
		return nil, errors.New("checker: nil renderer")
	}
	if mailer == nil {
		return nil, errors.New("checker: nil mailer")
	}
	if logger == nil {
		logger = log.Default()
	}
	c := &Checker{
		spec:         spec,
		instruments:  instruments,
		calibrations: calibrations,
		source:       source,
		ledger:       ledger,
		renderer:     renderer,
		mailer:       mailer,
		logger:       logger,
		loc:          time.UTC,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Spec returns the checker's configuration.
func (c *Checker) Spec() CheckSpec {
	return c.spec
}

// evalUnit is one evaluation subject, either a single reading or an hourly
// bucket reduced to per-axis maxima.
type evalUnit struct {
	timestamp string
	at        time.Time
	values    map[reading.Axis]float64
}

// Run executes one check over the configured lookback window ending at
// now minus the instrument's clock skew.
func (c *Checker) Run(ctx context.Context) (Result, error) {
	now := c.now()
	to := now.Add(-c.spec.ClockSkew)
	from := to.Add(-c.spec.Lookback)
	return c.runWindow(ctx, from, to, c.spec.EmitPerBreach, nil)
}

// RunWindow executes one check over an explicit window, used by manual
// triggers and backfill. Non-empty recipients override the instrument's
// configured lists for every severity.
func (c *Checker) RunWindow(ctx context.Context, from, to time.Time, perBreach bool, recipients []string) (Result, error) {
	return c.runWindow(ctx, from, to, perBreach, recipients)
}

func (c *Checker) runWindow(ctx context.Context, from, to time.Time, perBreach bool, recipientOverride []string) (Result, error) {
	started := c.now()
	result := Result{InstrumentID: c.spec.InstrumentID}

	inst, err := c.instruments.GetByID(ctx, c.spec.InstrumentID)
	if err != nil {
		return result, c.fail(ctx, result, started, fmt.Errorf("load instrument %s: %w", c.spec.InstrumentID, err))
	}
	if inst == nil {
		return result, c.fail(ctx, result, started, fmt.Errorf("instrument %s not found", c.spec.InstrumentID))
	}

	readings, err := c.source.Fetch(ctx, c.spec.DeviceID, from, to)
	if err != nil {
		metrics.IncUpstreamError(c.spec.Source)
		return result, c.fail(ctx, result, started, fmt.Errorf("fetch %s device %d: %w", c.spec.Source, c.spec.DeviceID, err))
	}
	result.Fetched = len(readings)
	readings = filterWindow(readings, from, to)
	if len(readings) == 0 {
		// No data in the window is a clean run, not a failure.
		metrics.ObserveCheck(c.spec.InstrumentID, metrics.ResultSuccess, c.now().Sub(started))
		return result, nil
	}

	var cal *instrument.Calibration
	if c.calibrations != nil {
		cal, err = c.calibrations.GetByInstrument(ctx, c.spec.InstrumentID)
		if err != nil {
			return result, c.fail(ctx, result, started, fmt.Errorf("load calibration %s: %w", c.spec.InstrumentID, err))
		}
	}

	var errs []error
	for _, unit := range c.units(readings) {
		result.Evaluated++

		activeCal := cal
		if activeCal != nil && !activeCal.ActiveAt(unit.refTime(c.now)) {
			activeCal = nil
		}
		breaches := alerting.Evaluate(unit.values, activeCal, inst.Profile)
		if len(breaches) == 0 {
			continue
		}
		result.Breaches += len(breaches)
		for _, b := range breaches {
			metrics.IncBreach(c.spec.InstrumentID, string(b.Severity))
		}

		seen, err := c.ledger.HasAlerted(ctx, c.spec.InstrumentID, c.spec.DeviceID, unit.timestamp)
		if err != nil {
			// Fail open: a broken ledger must not silence alerts.
			c.logger.Printf("check %s: ledger lookup error, proceeding: %v", c.spec.Label, err)
		} else if seen {
			result.Suppressed++
			metrics.IncDedupSuppressed()
			continue
		}

		notified, err := c.notify(ctx, *inst, unit, breaches, perBreach, recipientOverride)
		result.Notified += notified
		if err != nil {
			errs = append(errs, err)
		}
	}

	err = errors.Join(errs...)
	if err != nil {
		return result, c.fail(ctx, result, started, err)
	}
	metrics.ObserveCheck(c.spec.InstrumentID, metrics.ResultSuccess, c.now().Sub(started))
	return result, nil
}

// notify renders, delivers, and records one evaluation unit's breaches. The
// ledger is written only after every delivery succeeded; a failed send
// leaves the unit eligible for the next run.
func (c *Checker) notify(ctx context.Context, inst instrument.Instrument, unit evalUnit, breaches []alerting.Breach, perBreach bool, recipientOverride []string) (int, error) {
	sent := 0
	if perBreach {
		for _, breach := range breaches {
			to := recipientOverride
			if len(to) == 0 {
				to = recipientsFor(inst, breach.Severity)
			}
			if len(to) == 0 {
				c.logEvent(ctx, alerting.LogLevelError, fmt.Sprintf("no recipients for %s level %s", inst.InstrumentID, breach.Severity))
				return sent, alerting.ErrNoRecipients
			}
			msg, err := c.renderer.PerBreach(inst, unit.timestamp, unit.at, breach)
			if err != nil {
				return sent, err
			}
			if err := c.send(ctx, to, msg); err != nil {
				return sent, err
			}
			sent++
			if err := c.record(ctx, unit.timestamp, string(breach.Severity)); err != nil {
				return sent, err
			}
		}
		c.logEvent(ctx, alerting.LogLevelInfo, fmt.Sprintf("sent %d per-breach notifications for %s at %s", sent, inst.InstrumentID, unit.timestamp))
		return sent, nil
	}

	to := recipientOverride
	if len(to) == 0 {
		to = recipientsFor(inst, severitiesOf(breaches)...)
	}
	if len(to) == 0 {
		c.logEvent(ctx, alerting.LogLevelError, fmt.Sprintf("no recipients for %s", inst.InstrumentID))
		return 0, alerting.ErrNoRecipients
	}
	msg, err := c.renderer.Aggregated(inst, unit.timestamp, unit.at, breaches)
	if err != nil {
		return 0, err
	}
	if err := c.send(ctx, to, msg); err != nil {
		return 0, err
	}
	sent = 1
	if err := c.record(ctx, unit.timestamp, alerting.AlertTypeAny); err != nil {
		return sent, err
	}
	c.logEvent(ctx, alerting.LogLevelInfo, fmt.Sprintf("sent notification for %s at %s", inst.InstrumentID, unit.timestamp))
	return sent, nil
}

func (c *Checker) send(ctx context.Context, to []string, msg notify.Message) error {
	err := c.mailer.Send(ctx, notify.Email{To: to, Subject: msg.Subject, HTML: msg.HTML})
	if err != nil {
		metrics.IncEmailFailed()
		c.logEvent(ctx, alerting.LogLevelError, fmt.Sprintf("delivery failed for %s: %v", c.spec.InstrumentID, err))
		return fmt.Errorf("send notification: %w", err)
	}
	metrics.IncEmailSent()
	return nil
}

func (c *Checker) record(ctx context.Context, timestamp, alertType string) error {
	err := c.ledger.Record(ctx, alerting.SentAlert{
		InstrumentID: c.spec.InstrumentID,
		DeviceID:     c.spec.DeviceID,
		Timestamp:    timestamp,
		AlertType:    alertType,
	})
	if err != nil {
		return fmt.Errorf("record sent alert: %w", err)
	}
	return nil
}

func (c *Checker) units(readings []reading.Reading) []evalUnit {
	if c.spec.Grouping {
		buckets := alerting.GroupByHour(readings, c.loc)
		units := make([]evalUnit, 0, len(buckets))
		for _, b := range buckets {
			units = append(units, evalUnit{timestamp: b.Timestamp, at: b.Start, values: b.Max})
		}
		return units
	}
	units := make([]evalUnit, 0, len(readings))
	for _, r := range readings {
		units = append(units, evalUnit{timestamp: r.Timestamp, at: r.At, values: r.Values})
	}
	return units
}

func (c *Checker) fail(ctx context.Context, result Result, started time.Time, err error) error {
	metrics.ObserveCheck(c.spec.InstrumentID, metrics.ResultError, c.now().Sub(started))
	c.logEvent(ctx, alerting.LogLevelError, fmt.Sprintf("check %s failed: %v", c.spec.Label, err))
	return err
}

func (c *Checker) logEvent(ctx context.Context, level, message string) {
	if c.events == nil {
		return
	}
	entry := alerting.LogEntry{
		Level:        level,
		InstrumentID: c.spec.InstrumentID,
		DeviceID:     c.spec.DeviceID,
		Message:      message,
	}
	if err := c.events.Append(ctx, entry); err != nil {
		c.logger.Printf("check %s: event log append error: %v", c.spec.Label, err)
	}
}

func (u evalUnit) refTime(now func() time.Time) time.Time {
	if !u.at.IsZero() {
		return u.at
	}
	return now()
}

// filterWindow drops readings outside [from, to]. Readings whose timestamp
// did not parse cannot be windowed and are dropped with them.
func filterWindow(readings []reading.Reading, from, to time.Time) []reading.Reading {
	kept := readings[:0:0]
	for _, r := range readings {
		if r.At.IsZero() {
			continue
		}
		if r.At.Before(from) || r.At.After(to) {
			continue
		}
		kept = append(kept, r)
	}
	return kept
}

// recipientsFor unions the instrument's recipient lists for the given
// severities only. A severity that did not breach contributes nothing.
func recipientsFor(inst instrument.Instrument, severities ...alerting.Severity) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(emails []string) {
		for _, email := range emails {
			if email == "" {
				continue
			}
			if _, ok := seen[email]; ok {
				continue
			}
			seen[email] = struct{}{}
			out = append(out, email)
		}
	}
	for _, sev := range severities {
		switch sev {
		case alerting.SeverityAlert:
			add(inst.AlertEmails)
		case alerting.SeverityWarning:
			add(inst.WarningEmails)
		case alerting.SeverityShutdown:
			add(inst.ShutdownEmails)
		}
	}
	sort.Strings(out)
	return out
}

func severitiesOf(breaches []alerting.Breach) []alerting.Severity {
	present := make(map[alerting.Severity]struct{}, len(breaches))
	for _, b := range breaches {
		present[b.Severity] = struct{}{}
	}
	var out []alerting.Severity
	for _, sev := range alerting.Severities {
		if _, ok := present[sev]; ok {
			out = append(out, sev)
		}
	}
	return out
}
