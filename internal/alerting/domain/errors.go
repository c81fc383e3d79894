package alerting

import "errors"

// ErrNoRecipients indicates an instrument with breaches but no configured
// recipient list for any breached severity.
var ErrNoRecipients = errors.New("alerting: no recipients configured")
