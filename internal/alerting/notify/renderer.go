package notify

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"time"

	alerting "geomon-cloud/internal/alerting/domain"
	instrument "geomon-cloud/internal/instruments/domain"
)

const displayTimeLayout = "2006-01-02 15:04:05 MST"

const bodyTemplate = `<html>
<body>
<p>{{.Headline}}</p>
<table border="1" cellpadding="4" cellspacing="0">
<tr><th>Instrument</th><td>{{.InstrumentName}} ({{.InstrumentID}})</td></tr>
{{if .Location}}<tr><th>Location</th><td>{{.Location}}</td></tr>{{end}}
{{if .Project}}<tr><th>Project</th><td>{{.Project}}</td></tr>{{end}}
<tr><th>Reading Time</th><td>{{.Time}}</td></tr>
</table>
<p></p>
<table border="1" cellpadding="4" cellspacing="0">
<tr><th>Axis</th><th>Level</th><th>Value</th><th>Threshold</th></tr>
{{range .Rows}}<tr><td>{{.Axis}}</td><td>{{.Severity}}</td><td>{{.Value}}</td><td>{{.Threshold}}</td></tr>
{{end}}</table>
<p>This is an automated notification. Do not reply.</p>
</body>
</html>`

// Message is a rendered notification ready for delivery.
type Message struct {
	Subject string
	HTML    string
}

type breachRow struct {
	Axis      string
	Severity  string
	Value     string
	Threshold string
}

type notificationData struct {
	Headline       string
	InstrumentName string
	InstrumentID   string
	Location       string
	Project        string
	Time           string
	Rows           []breachRow
}

// Renderer builds notification emails. Times are rendered in the renderer's
// location; measured values carry six decimals, thresholds three.
type Renderer struct {
	tpl *template.Template
	loc *time.Location
}

// NewRenderer constructs a renderer. A nil location renders in UTC.
func NewRenderer(loc *time.Location) (*Renderer, error) {
	tpl, err := template.New("threshold-notification").Parse(bodyTemplate)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Renderer{tpl: tpl, loc: loc}, nil
}

// Aggregated renders one email covering every breach of a reading.
func (r *Renderer) Aggregated(inst instrument.Instrument, timestamp string, at time.Time, breaches []alerting.Breach) (Message, error) {
	if len(breaches) == 0 {
		return Message{}, errors.New("renderer: no breaches")
	}
	label := highestLabel(breaches)
	when := r.displayTime(timestamp, at)
	subject := fmt.Sprintf("[%s] %s exceeded thresholds at %s", label, instrumentTitle(inst), when)
	headline := fmt.Sprintf("%s recorded readings above its configured thresholds.", instrumentTitle(inst))
	return r.render(inst, when, subject, headline, breaches)
}

// PerBreach renders one email for a single breach.
func (r *Renderer) PerBreach(inst instrument.Instrument, timestamp string, at time.Time, breach alerting.Breach) (Message, error) {
	when := r.displayTime(timestamp, at)
	subject := fmt.Sprintf("[%s] %s axis %s at %s", breach.Severity.Label(), instrumentTitle(inst), breach.Axis, when)
	headline := fmt.Sprintf("%s recorded a %s-level reading on axis %s.", instrumentTitle(inst), breach.Severity.Label(), breach.Axis)
	return r.render(inst, when, subject, headline, []alerting.Breach{breach})
}

func (r *Renderer) render(inst instrument.Instrument, when, subject, headline string, breaches []alerting.Breach) (Message, error) {
	if r == nil || r.tpl == nil {
		return Message{}, errors.New("renderer: nil renderer")
	}
	data := notificationData{
		Headline:       headline,
		InstrumentName: inst.Name,
		InstrumentID:   inst.InstrumentID,
		Location:       inst.Location,
		Project:        inst.ProjectName,
		Time:           when,
	}
	for _, b := range breaches {
		data.Rows = append(data.Rows, breachRow{
			Axis:      string(b.Axis),
			Severity:  b.Severity.Label(),
			Value:     fmt.Sprintf("%.6f", b.Value),
			Threshold: fmt.Sprintf("%.3f", b.Threshold),
		})
	}
	var buf bytes.Buffer
	if err := r.tpl.Execute(&buf, data); err != nil {
		return Message{}, err
	}
	return Message{Subject: subject, HTML: buf.String()}, nil
}

// displayTime renders the parsed instant in the configured zone, falling
// back to the raw upstream string when parsing failed.
func (r *Renderer) displayTime(timestamp string, at time.Time) string {
	if at.IsZero() {
		return timestamp
	}
	return at.In(r.loc).Format(displayTimeLayout)
}

// highestLabel returns the label of the most severe breach present.
func highestLabel(breaches []alerting.Breach) string {
	for _, sev := range alerting.Severities {
		for _, b := range breaches {
			if b.Severity == sev {
				return sev.Label()
			}
		}
	}
	return breaches[0].Severity.Label()
}

func instrumentTitle(inst instrument.Instrument) string {
	if inst.Name != "" {
		return inst.Name
	}
	return inst.InstrumentID
}
