package application

import (
	"context"
	"errors"
	"log"
	"strings"
	"testing"
	"time"

	alerting "geomon-cloud/internal/alerting/domain"
	"geomon-cloud/internal/alerting/notify"
	instrument "geomon-cloud/internal/instruments/domain"
	reading "geomon-cloud/internal/readings/domain"
)

func fptr(v float64) *float64 { return &v }

type stubInstruments struct {
	inst *instrument.Instrument
	err  error
}

func (s *stubInstruments) GetByID(ctx context.Context, id string) (*instrument.Instrument, error) {
	return s.inst, s.err
}

type stubCalibrations struct {
	cal *instrument.Calibration
	err error
}

func (s *stubCalibrations) GetByInstrument(ctx context.Context, id string) (*instrument.Calibration, error) {
	return s.cal, s.err
}

type stubSource struct {
	readings []reading.Reading
	err      error
	from, to time.Time
}

func (s *stubSource) Fetch(ctx context.Context, deviceID int64, from, to time.Time) ([]reading.Reading, error) {
	s.from, s.to = from, to
	return s.readings, s.err
}

type memLedger struct {
	records   []alerting.SentAlert
	hasErr    error
	recordErr error
}

func (l *memLedger) HasAlerted(ctx context.Context, instrumentID string, deviceID int64, timestamp string) (bool, error) {
	if l.hasErr != nil {
		return false, l.hasErr
	}
	for _, rec := range l.records {
		if rec.InstrumentID == instrumentID && rec.DeviceID == deviceID && rec.Timestamp == timestamp {
			return true, nil
		}
	}
	return false, nil
}

func (l *memLedger) Record(ctx context.Context, rec alerting.SentAlert) error {
	if l.recordErr != nil {
		return l.recordErr
	}
	l.records = append(l.records, rec)
	return nil
}

type memEvents struct {
	entries []alerting.LogEntry
}

func (e *memEvents) Append(ctx context.Context, entry alerting.LogEntry) error {
	entry.CreatedAt = time.Now().UTC()
	e.entries = append(e.entries, entry)
	return nil
}

type stubMailer struct {
	sent []notify.Email
	err  error
}

func (m *stubMailer) Send(ctx context.Context, email notify.Email) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, email)
	return nil
}

func testProfile() instrument.ThresholdProfile {
	return instrument.ThresholdProfile{
		Kind: instrument.KindPerAxis,
		Axes: []reading.Axis{reading.AxisX, reading.AxisZ},
		PerAxis: map[reading.Axis]instrument.SeverityValues{
			reading.AxisX: {Alert: fptr(0.01), Warning: fptr(0.015), Shutdown: fptr(0.025)},
			reading.AxisZ: {Alert: fptr(0.01), Warning: fptr(0.015), Shutdown: fptr(0.025)},
		},
	}
}

func checkerInstrument() *instrument.Instrument {
	return &instrument.Instrument{
		InstrumentID:   "TILT-4",
		Name:           "North Wall Tiltmeter",
		Profile:        testProfile(),
		AlertEmails:    []string{"pm@example.com", "shared@example.com"},
		WarningEmails:  []string{"eng@example.com", "shared@example.com"},
		ShutdownEmails: []string{"ops@example.com"},
	}
}

func testSpec() CheckSpec {
	return CheckSpec{
		InstrumentID: "TILT-4",
		DeviceID:     142939,
		Label:        "north wall",
		Source:       SourceStore,
		Lookback:     time.Hour,
		ClockSkew:    time.Hour,
	}
}

func breachingReading(ts string) reading.Reading {
	at, _ := reading.ParseTimestamp(ts)
	return reading.Reading{
		NodeID:    142939,
		Timestamp: ts,
		At:        at,
		Values: map[reading.Axis]float64{
			reading.AxisX: 0.02,
			reading.AxisZ: 0.005,
		},
	}
}

func newTestChecker(t *testing.T, spec CheckSpec, src ReadingSource, ledger Ledger, mailer notify.Mailer, cal *instrument.Calibration, opts ...CheckerOption) *Checker {
	t.Helper()
	renderer, err := notify.NewRenderer(nil)
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	logger := log.New(&strings.Builder{}, "", 0)
	c, err := NewChecker(spec,
		&stubInstruments{inst: checkerInstrument()},
		&stubCalibrations{cal: cal},
		src, ledger, renderer, mailer, logger, opts...)
	if err != nil {
		t.Fatalf("new checker: %v", err)
	}
	return c
}

func fixedClock(t time.Time) CheckerOption {
	return WithClock(func() time.Time { return t })
}

func TestRunSendsOnceAndRecordsLedger(t *testing.T) {
	now := time.Date(2026, time.August, 20, 16, 0, 0, 0, time.UTC)
	src := &stubSource{readings: []reading.Reading{breachingReading("2026-08-20T14:30:00")}}
	ledger := &memLedger{}
	mailer := &stubMailer{}
	c := newTestChecker(t, testSpec(), src, ledger, mailer, nil, fixedClock(now))

	result, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Breaches != 2 {
		t.Errorf("X at 0.02 must breach alert and warning, got %d breaches", result.Breaches)
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("expected 1 aggregated email, got %d", len(mailer.sent))
	}
	if len(ledger.records) != 1 {
		t.Fatalf("expected 1 ledger record, got %d", len(ledger.records))
	}
	if ledger.records[0].Timestamp != "2026-08-20T14:30:00" {
		t.Errorf("ledger must keep the upstream timestamp verbatim, got %q", ledger.records[0].Timestamp)
	}
	if ledger.records[0].AlertType != alerting.AlertTypeAny {
		t.Errorf("aggregated record must use alert type %q, got %q", alerting.AlertTypeAny, ledger.records[0].AlertType)
	}

	// Second run over the same window must be fully suppressed.
	result, err = c.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if result.Suppressed != 1 {
		t.Errorf("expected 1 suppressed unit, got %d", result.Suppressed)
	}
	if len(mailer.sent) != 1 || len(ledger.records) != 1 {
		t.Errorf("repeat run must not send or record again: sent=%d records=%d", len(mailer.sent), len(ledger.records))
	}
}

func TestRunRecipientsScopedToBreachedSeverities(t *testing.T) {
	now := time.Date(2026, time.August, 20, 16, 0, 0, 0, time.UTC)
	src := &stubSource{readings: []reading.Reading{breachingReading("2026-08-20T14:30:00")}}
	mailer := &stubMailer{}
	c := newTestChecker(t, testSpec(), src, &memLedger{}, mailer, nil, fixedClock(now))

	if _, err := c.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(mailer.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(mailer.sent))
	}
	to := mailer.sent[0].To
	want := []string{"eng@example.com", "pm@example.com", "shared@example.com"}
	if len(to) != len(want) {
		t.Fatalf("recipient union wrong: got %v", to)
	}
	for i := range want {
		if to[i] != want[i] {
			t.Fatalf("recipient union wrong: got %v want %v", to, want)
		}
	}
	for _, addr := range to {
		if addr == "ops@example.com" {
			t.Error("shutdown list must not receive a non-shutdown breach")
		}
	}
}

func TestRunNoDataIsClean(t *testing.T) {
	now := time.Date(2026, time.August, 20, 16, 0, 0, 0, time.UTC)
	src := &stubSource{}
	mailer := &stubMailer{}
	c := newTestChecker(t, testSpec(), src, &memLedger{}, mailer, nil, fixedClock(now))

	result, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("empty window must not fail: %v", err)
	}
	if result.Evaluated != 0 || len(mailer.sent) != 0 {
		t.Errorf("nothing must happen on an empty window: %+v", result)
	}
}

func TestRunWindowAppliesClockSkew(t *testing.T) {
	now := time.Date(2026, time.August, 20, 16, 0, 0, 0, time.UTC)
	src := &stubSource{}
	c := newTestChecker(t, testSpec(), src, &memLedger{}, &stubMailer{}, nil, fixedClock(now))

	if _, err := c.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	wantTo := now.Add(-time.Hour)
	wantFrom := wantTo.Add(-time.Hour)
	if !src.to.Equal(wantTo) || !src.from.Equal(wantFrom) {
		t.Errorf("skew must shift both bounds: got [%s, %s] want [%s, %s]", src.from, src.to, wantFrom, wantTo)
	}
}

func TestRunWithoutConfiguredSkewSeesFreshReadings(t *testing.T) {
	path := writeConfig(t, `
checks:
  - instrument_id: TILT-4
    device_id: 142939
`)
	cfg, err := LoadFleetConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	spec, ok := cfg.CheckByInstrument("TILT-4")
	if !ok {
		t.Fatal("configured check not found")
	}

	now := time.Date(2026, time.August, 20, 16, 0, 0, 0, time.UTC)
	src := &stubSource{readings: []reading.Reading{breachingReading("2026-08-20T15:30:00")}}
	mailer := &stubMailer{}
	c := newTestChecker(t, spec, src, &memLedger{}, mailer, nil, fixedClock(now))

	result, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !src.to.Equal(now) || !src.from.Equal(now.Add(-time.Hour)) {
		t.Errorf("unskewed window must end at now: got [%s, %s]", src.from, src.to)
	}
	if result.Evaluated != 1 || result.Notified != 1 || len(mailer.sent) != 1 {
		t.Errorf("a breach 30m old must be caught on the current tick: %+v", result)
	}
}

func TestRunDeliveryFailureLeavesLedgerUntouched(t *testing.T) {
	now := time.Date(2026, time.August, 20, 16, 0, 0, 0, time.UTC)
	src := &stubSource{readings: []reading.Reading{breachingReading("2026-08-20T14:30:00")}}
	ledger := &memLedger{}
	mailer := &stubMailer{err: errors.New("smtp down")}
	c := newTestChecker(t, testSpec(), src, ledger, mailer, nil, fixedClock(now))

	if _, err := c.Run(context.Background()); err == nil {
		t.Fatal("expected delivery error")
	}
	if len(ledger.records) != 0 {
		t.Fatal("failed delivery must not write the ledger")
	}

	// Once delivery recovers, the same reading goes out.
	mailer.err = nil
	result, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("recovered run: %v", err)
	}
	if result.Notified != 1 || len(ledger.records) != 1 {
		t.Errorf("recovered run must send and record: %+v", result)
	}
}

func TestRunLedgerLookupFailureFailsOpen(t *testing.T) {
	now := time.Date(2026, time.August, 20, 16, 0, 0, 0, time.UTC)
	src := &stubSource{readings: []reading.Reading{breachingReading("2026-08-20T14:30:00")}}
	ledger := &memLedger{hasErr: errors.New("db timeout")}
	mailer := &stubMailer{}
	c := newTestChecker(t, testSpec(), src, ledger, mailer, nil, fixedClock(now))

	result, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Notified != 1 || len(mailer.sent) != 1 {
		t.Error("a broken ledger lookup must not silence the alert")
	}
}

func TestRunGroupingEvaluatesHourlyMaxima(t *testing.T) {
	now := time.Date(2026, time.August, 20, 16, 0, 0, 0, time.UTC)
	spec := testSpec()
	spec.Grouping = true
	spec.Lookback = 2 * time.Hour
	r1 := breachingReading("2026-08-20T14:10:00")
	r1.Values = map[reading.Axis]float64{reading.AxisX: 0.004, reading.AxisZ: 0.002}
	r2 := breachingReading("2026-08-20T14:40:00")
	r2.Values = map[reading.Axis]float64{reading.AxisX: -0.02, reading.AxisZ: 0.003}
	src := &stubSource{readings: []reading.Reading{r1, r2}}
	ledger := &memLedger{}
	mailer := &stubMailer{}
	c := newTestChecker(t, spec, src, ledger, mailer, nil, fixedClock(now))

	result, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Evaluated != 1 {
		t.Fatalf("two readings in one hour must evaluate once, got %d", result.Evaluated)
	}
	if result.Breaches != 2 {
		t.Errorf("hour max 0.02 on X must breach alert and warning, got %d", result.Breaches)
	}
	if len(ledger.records) != 1 || ledger.records[0].Timestamp != "2026-08-20T14:10:00" {
		t.Errorf("bucket must be keyed by its first raw timestamp: %+v", ledger.records)
	}
}

func TestRunAppliesActiveCalibration(t *testing.T) {
	now := time.Date(2026, time.August, 20, 16, 0, 0, 0, time.UTC)
	r := breachingReading("2026-08-20T14:30:00")
	r.Values = map[reading.Axis]float64{reading.AxisX: 0.5, reading.AxisZ: 0.001}
	src := &stubSource{readings: []reading.Reading{r}}
	cal := &instrument.Calibration{
		InstrumentID: "TILT-4",
		Enabled:      true,
		Reference:    map[reading.Axis]float64{reading.AxisX: 0.495},
	}
	mailer := &stubMailer{}
	c := newTestChecker(t, testSpec(), src, &memLedger{}, mailer, cal, fixedClock(now))

	result, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Breaches != 0 {
		t.Errorf("calibrated X of 0.005 must not breach, got %d breaches", result.Breaches)
	}
	if len(mailer.sent) != 0 {
		t.Error("no email expected when calibration absorbs the offset")
	}
}

func TestRunPerBreachEmission(t *testing.T) {
	now := time.Date(2026, time.August, 20, 16, 0, 0, 0, time.UTC)
	src := &stubSource{readings: []reading.Reading{breachingReading("2026-08-20T14:30:00")}}
	ledger := &memLedger{}
	mailer := &stubMailer{}
	c := newTestChecker(t, testSpec(), src, ledger, mailer, nil, fixedClock(now))

	from := now.Add(-3 * time.Hour)
	result, err := c.RunWindow(context.Background(), from, now, true, []string{"backfill@example.com"})
	if err != nil {
		t.Fatalf("run window: %v", err)
	}
	if result.Notified != 2 || len(mailer.sent) != 2 {
		t.Fatalf("per-breach emission must send one email per breach, got %d", len(mailer.sent))
	}
	for _, email := range mailer.sent {
		if len(email.To) != 1 || email.To[0] != "backfill@example.com" {
			t.Errorf("recipient override must replace configured lists, got %v", email.To)
		}
	}
	if len(ledger.records) == 0 {
		t.Fatal("per-breach emission must still record the ledger")
	}
	if ledger.records[0].AlertType != string(alerting.SeverityWarning) {
		t.Errorf("per-breach records carry the severity, got %q", ledger.records[0].AlertType)
	}
}

func TestRunUpstreamErrorLogged(t *testing.T) {
	now := time.Date(2026, time.August, 20, 16, 0, 0, 0, time.UTC)
	src := &stubSource{err: errors.New("connect refused")}
	events := &memEvents{}
	c := newTestChecker(t, testSpec(), src, &memLedger{}, &stubMailer{}, nil,
		fixedClock(now), WithEventLog(events))

	if _, err := c.Run(context.Background()); err == nil {
		t.Fatal("expected upstream error")
	}
	if len(events.entries) != 1 || events.entries[0].Level != alerting.LogLevelError {
		t.Fatalf("fetch failure must land in the event log: %+v", events.entries)
	}
}
