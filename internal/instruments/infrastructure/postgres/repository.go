package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	instrument "geomon-cloud/internal/instruments/domain"
	reading "geomon-cloud/internal/readings/domain"
)

// InstrumentRepository is a Postgres repository for instruments and their
// threshold profiles.
type InstrumentRepository struct {
	db *sql.DB
}

// NewInstrumentRepository constructs a repository.
func NewInstrumentRepository(db *sql.DB) *InstrumentRepository {
	return &InstrumentRepository{db: db}
}

const instrumentColumns = `
instrument_id, instrument_name, serial_number, instrument_location,
project_id, project_name, axes,
alert_value, warning_value, shutdown_value,
x_y_z_alert_values, x_y_z_warning_values, x_y_z_shutdown_values,
alert_emails, warning_emails, shutdown_emails,
created_at, updated_at`

// GetByID returns one instrument, or (nil, nil) when absent.
func (r *InstrumentRepository) GetByID(ctx context.Context, instrumentID string) (*instrument.Instrument, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("instrument repo: nil db")
	}
	if instrumentID == "" {
		return nil, errors.New("instrument repo: empty instrument id")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+instrumentColumns+`
FROM instruments
WHERE instrument_id = $1`, instrumentID)
	inst, err := scanInstrument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// List returns every instrument, ordered by id. A zero projectID means all
// projects.
func (r *InstrumentRepository) List(ctx context.Context, projectID int64) ([]instrument.Instrument, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("instrument repo: nil db")
	}
	query := `
SELECT ` + instrumentColumns + `
FROM instruments`
	args := []any{}
	if projectID != 0 {
		query += ` WHERE project_id = $1`
		args = append(args, projectID)
	}
	query += ` ORDER BY instrument_id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []instrument.Instrument
	for rows.Next() {
		inst, err := scanInstrument(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *inst)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstrument(row rowScanner) (*instrument.Instrument, error) {
	var (
		inst                                  instrument.Instrument
		serial, location, projectName, axes   sql.NullString
		projectID                             sql.NullInt64
		alertVal, warnVal, shutVal            sql.NullFloat64
		alertTriple, warnTriple, shutTriple   sql.NullString
		alertEmails, warnEmails, shutEmails   sql.NullString
		createdAt, updatedAt                  sql.NullTime
	)
	if err := row.Scan(
		&inst.InstrumentID, &inst.Name, &serial, &location,
		&projectID, &projectName, &axes,
		&alertVal, &warnVal, &shutVal,
		&alertTriple, &warnTriple, &shutTriple,
		&alertEmails, &warnEmails, &shutEmails,
		&createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	inst.SerialNumber = serial.String
	inst.Location = location.String
	inst.ProjectID = projectID.Int64
	inst.ProjectName = projectName.String
	inst.AlertEmails = splitEmails(alertEmails.String)
	inst.WarningEmails = splitEmails(warnEmails.String)
	inst.ShutdownEmails = splitEmails(shutEmails.String)
	if createdAt.Valid {
		inst.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		inst.UpdatedAt = updatedAt.Time
	}

	profile, err := buildProfile(
		axes.String,
		nullFloat(alertVal), nullFloat(warnVal), nullFloat(shutVal),
		alertTriple.String, warnTriple.String, shutTriple.String,
	)
	if err != nil {
		return nil, fmt.Errorf("instrument %s: %w", inst.InstrumentID, err)
	}
	inst.Profile = profile
	return &inst, nil
}

// buildProfile maps the stored threshold columns into a profile. Per-axis
// triples take precedence; an instrument carrying both violates the
// exclusive-kind invariant and is rejected on read.
func buildProfile(axesCSV string, alert, warning, shutdown *float64, alertTriple, warnTriple, shutTriple string) (instrument.ThresholdProfile, error) {
	axes := parseAxes(axesCSV)

	hasScalar := alert != nil || warning != nil || shutdown != nil
	hasTriple := alertTriple != "" || warnTriple != "" || shutTriple != ""
	if hasScalar && hasTriple {
		return instrument.ThresholdProfile{}, errors.New("both scalar and per-axis thresholds set")
	}

	if hasTriple {
		perAxis := make(map[reading.Axis]instrument.SeverityValues, 3)
		for _, spec := range []struct {
			triple string
			set    func(*instrument.SeverityValues, *float64)
		}{
			{alertTriple, func(sv *instrument.SeverityValues, v *float64) { sv.Alert = v }},
			{warnTriple, func(sv *instrument.SeverityValues, v *float64) { sv.Warning = v }},
			{shutTriple, func(sv *instrument.SeverityValues, v *float64) { sv.Shutdown = v }},
		} {
			triple, err := parseTriple(spec.triple)
			if err != nil {
				return instrument.ThresholdProfile{}, err
			}
			for axis, v := range triple {
				sv := perAxis[axis]
				spec.set(&sv, v)
				perAxis[axis] = sv
			}
		}
		profile := instrument.ThresholdProfile{Kind: instrument.KindPerAxis, Axes: axes, PerAxis: perAxis}
		return profile, profile.Validate()
	}

	profile := instrument.ThresholdProfile{
		Kind: instrument.KindScalar,
		Axes: axes,
		Scalar: instrument.SeverityValues{
			Alert:    alert,
			Warning:  warning,
			Shutdown: shutdown,
		},
	}
	return profile, profile.Validate()
}

// parseTriple parses an "x,y,z" threshold column. Empty positions mean no
// threshold at that level for that axis.
func parseTriple(s string) (map[reading.Axis]*float64, error) {
	out := map[reading.Axis]*float64{}
	if strings.TrimSpace(s) == "" {
		return out, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return nil, fmt.Errorf("threshold triple %q: expected 3 values", s)
	}
	axes := []reading.Axis{reading.AxisX, reading.AxisY, reading.AxisZ}
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, fmt.Errorf("threshold triple %q: %w", s, err)
		}
		out[axes[i]] = &v
	}
	return out, nil
}

func parseAxes(s string) []reading.Axis {
	if strings.TrimSpace(s) == "" {
		return []reading.Axis{reading.AxisX, reading.AxisY, reading.AxisZ}
	}
	var axes []reading.Axis
	for _, part := range strings.Split(s, ",") {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "x":
			axes = append(axes, reading.AxisX)
		case "y":
			axes = append(axes, reading.AxisY)
		case "z":
			axes = append(axes, reading.AxisZ)
		}
	}
	return axes
}

func splitEmails(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// CalibrationRepository is a Postgres repository for reference offsets.
type CalibrationRepository struct {
	db *sql.DB
}

// NewCalibrationRepository constructs a repository.
func NewCalibrationRepository(db *sql.DB) *CalibrationRepository {
	return &CalibrationRepository{db: db}
}

// GetByInstrument returns the calibration for an instrument, or (nil, nil)
// when none is configured.
func (r *CalibrationRepository) GetByInstrument(ctx context.Context, instrumentID string) (*instrument.Calibration, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("calibration repo: nil db")
	}
	if instrumentID == "" {
		return nil, errors.New("calibration repo: empty instrument id")
	}
	var (
		cal        instrument.Calibration
		enabled    sql.NullBool
		x, y, z    sql.NullFloat64
		from, till sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
SELECT instrument_id, enabled, x_reference, y_reference, z_reference, valid_from, valid_until
FROM reference_values
WHERE instrument_id = $1`, instrumentID).
		Scan(&cal.InstrumentID, &enabled, &x, &y, &z, &from, &till)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cal.Enabled = enabled.Bool
	cal.Reference = make(map[reading.Axis]float64, 3)
	if x.Valid {
		cal.Reference[reading.AxisX] = x.Float64
	}
	if y.Valid {
		cal.Reference[reading.AxisY] = y.Float64
	}
	if z.Valid {
		cal.Reference[reading.AxisZ] = z.Float64
	}
	if from.Valid {
		t := from.Time
		cal.ValidFrom = &t
	}
	if till.Valid {
		t := till.Time
		cal.ValidUntil = &t
	}
	return &cal, nil
}

// Upsert stores or replaces an instrument's calibration.
func (r *CalibrationRepository) Upsert(ctx context.Context, cal instrument.Calibration) error {
	if r == nil || r.db == nil {
		return errors.New("calibration repo: nil db")
	}
	if cal.InstrumentID == "" {
		return errors.New("calibration repo: empty instrument id")
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO reference_values (instrument_id, enabled, x_reference, y_reference, z_reference, valid_from, valid_until, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (instrument_id) DO UPDATE SET
	enabled = EXCLUDED.enabled,
	x_reference = EXCLUDED.x_reference,
	y_reference = EXCLUDED.y_reference,
	z_reference = EXCLUDED.z_reference,
	valid_from = EXCLUDED.valid_from,
	valid_until = EXCLUDED.valid_until,
	updated_at = EXCLUDED.updated_at`,
		cal.InstrumentID, cal.Enabled,
		refValue(cal, reading.AxisX), refValue(cal, reading.AxisY), refValue(cal, reading.AxisZ),
		nullableTime(cal.ValidFrom), nullableTime(cal.ValidUntil), time.Now().UTC())
	return err
}

func refValue(cal instrument.Calibration, axis reading.Axis) any {
	if v, ok := cal.Reference[axis]; ok {
		return v
	}
	return nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
