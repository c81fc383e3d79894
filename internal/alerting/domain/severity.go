package alerting

// Severity is one of the three alert levels. Ordering by convention is
// alert < warning < shutdown; each level is checked independently and a
// single reading can breach all three at once.
type Severity string

const (
	SeverityAlert    Severity = "alert"
	SeverityWarning  Severity = "warning"
	SeverityShutdown Severity = "shutdown"
)

// Severities lists the levels in the order breaches are reported,
// highest first.
var Severities = []Severity{SeverityShutdown, SeverityWarning, SeverityAlert}

// Label returns the human-readable form used in notifications.
func (s Severity) Label() string {
	switch s {
	case SeverityAlert:
		return "Alert"
	case SeverityWarning:
		return "Warning"
	case SeverityShutdown:
		return "Shutdown"
	default:
		return string(s)
	}
}

// Valid reports whether the severity is one of the three levels.
func (s Severity) Valid() bool {
	switch s {
	case SeverityAlert, SeverityWarning, SeverityShutdown:
		return true
	default:
		return false
	}
}
