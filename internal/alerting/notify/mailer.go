package notify

import (
	"context"
	"errors"

	gomail "gopkg.in/gomail.v2"
)

// Email is one outgoing message.
type Email struct {
	To      []string
	Subject string
	HTML    string
}

// Mailer delivers notification emails.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// SMTPMailer delivers email over authenticated SMTP.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPMailer constructs an SMTP mailer.
func NewSMTPMailer(host string, port int, username, password, from string) (*SMTPMailer, error) {
	if host == "" {
		return nil, errors.New("smtp mailer: empty host")
	}
	if port == 0 {
		port = 587
	}
	if from == "" {
		from = username
	}
	if from == "" {
		return nil, errors.New("smtp mailer: empty sender")
	}
	return &SMTPMailer{
		dialer: gomail.NewDialer(host, port, username, password),
		from:   from,
	}, nil
}

// Send delivers one message. The SMTP dialer does not take a context, so
// cancellation is only honored before dialing.
func (m *SMTPMailer) Send(ctx context.Context, email Email) error {
	if m == nil || m.dialer == nil {
		return errors.New("smtp mailer: nil mailer")
	}
	if len(email.To) == 0 {
		return errors.New("smtp mailer: no recipients")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", email.To...)
	msg.SetHeader("Subject", email.Subject)
	msg.SetBody("text/html", email.HTML)
	return m.dialer.DialAndSend(msg)
}
