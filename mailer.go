package accounts

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"
)

// Mailer delivers account lifecycle notifications.
type Mailer interface {
	SendConfirmation(ctx context.Context, toEmail, displayName, link string) error
}

// MailerFunc adapts a function to the Mailer interface.
type MailerFunc func(ctx context.Context, toEmail, displayName, link string) error

func (f MailerFunc) SendConfirmation(ctx context.Context, toEmail, displayName, link string) error {
	if f == nil {
		return nil
	}
	return f(ctx, toEmail, displayName, link)
}

// LogMailer writes the confirmation link to the logger instead of sending
// mail. It is the default delivery in development environments.
type LogMailer struct {
	Logger Logger
}

func NewLogMailer(logger Logger) *LogMailer {
	if logger == nil {
		logger = defLogger{}
	}
	return &LogMailer{Logger: logger}
}

func (m *LogMailer) SendConfirmation(_ context.Context, toEmail, displayName, link string) error {
	m.Logger.Info("confirmation mail to=%s name=%s link=%s", toEmail, displayName, link)
	return nil
}

// SMTPMailer delivers confirmation mail over plain SMTP.
type SMTPMailer struct {
	Addr    string
	From    string
	Auth    smtp.Auth
	Subject string
}

func (m *SMTPMailer) SendConfirmation(_ context.Context, toEmail, displayName, link string) error {
	subject := m.Subject
	if subject == "" {
		subject = "Confirm your account"
	}

	body := new(strings.Builder)
	fmt.Fprintf(body, "From: %s\r\n", m.From)
	fmt.Fprintf(body, "To: %s\r\n", toEmail)
	fmt.Fprintf(body, "Subject: %s\r\n", subject)
	fmt.Fprintf(body, "\r\n")
	fmt.Fprintf(body, "Hello %s,\r\n\r\n", displayName)
	fmt.Fprintf(body, "Confirm your account by following this link:\r\n%s\r\n", link)

	if err := smtp.SendMail(m.Addr, m.Auth, m.From, []string{toEmail}, []byte(body.String())); err != nil {
		return fmt.Errorf("smtp send to %s: %w", toEmail, err)
	}

	return nil
}

// MailDispatcher runs deliveries on their own goroutine. The caller never
// waits on the outcome; failures land in the logger only.
type MailDispatcher struct {
	mailer  Mailer
	logger  Logger
	timeout time.Duration
}

func NewMailDispatcher(mailer Mailer, logger Logger) *MailDispatcher {
	if mailer == nil {
		mailer = NewLogMailer(logger)
	}

	if logger == nil {
		logger = defLogger{}
	}

	return &MailDispatcher{
		mailer:  mailer,
		logger:  logger,
		timeout: time.Second * 30,
	}
}

// DispatchConfirmation sends in the background, detached from the request
// context so an early response does not cancel delivery.
func (d *MailDispatcher) DispatchConfirmation(toEmail, displayName, link string) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("confirmation mail panic to=%s: %v", toEmail, r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.mailer.SendConfirmation(ctx, toEmail, displayName, link); err != nil {
			d.logger.Error("confirmation mail error to=%s: %s", toEmail, err)
		}
	}()
}
