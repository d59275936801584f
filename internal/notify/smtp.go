package notify

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// SMTPConfig holds outgoing mail settings.
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
	FromName    string
}

// SMTP sends plain-text confirmations through an authenticated SMTP relay with
// mandatory STARTTLS.
type SMTP struct {
	cfg    SMTPConfig
	logger *zap.Logger
}

// NewSMTP creates an SMTP notifier. An incomplete config is not an error here;
// every Send reports it as a failure instead.
func NewSMTP(cfg SMTPConfig, logger *zap.Logger) *SMTP {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTP{cfg: cfg, logger: logger}
}

// Configured reports whether host and credentials are present.
func (s *SMTP) Configured() bool {
	return s.cfg.Host != "" && s.cfg.Username != "" && s.cfg.Password != ""
}

// Send delivers one confirmation email.
func (s *SMTP) Send(ctx context.Context, c Confirmation) Result {
	if !s.Configured() {
		return Failed("smtp is not configured: set SMTP_HOST, SMTP_USER and SMTP_PASS")
	}

	msg := mail.NewMsg()
	if err := msg.FromFormat(s.cfg.FromName, s.cfg.FromAddress); err != nil {
		return Failed("invalid sender address: %v", err)
	}
	if err := msg.AddToFormat(c.RecipientName, c.ToAddress); err != nil {
		return Failed("invalid recipient address: %v", err)
	}
	msg.Subject(Subject(c))
	msg.SetBodyString(mail.TypeTextPlain, Body(c))

	client, err := mail.NewClient(s.cfg.Host,
		mail.WithPort(s.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.cfg.Username),
		mail.WithPassword(s.cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return Failed("smtp client: %v", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return Failed("smtp send: %v", err)
	}
	s.logger.Debug("confirmation email sent",
		zap.String("registration_id", c.RegistrationID.String()),
		zap.String("host", s.cfg.Host),
	)
	return Delivered()
}

// Subject renders the confirmation subject line.
func Subject(c Confirmation) string {
	return "Registration confirmed – " + c.EventTitle
}

// Body renders the plain-text confirmation body.
func Body(c Confirmation) string {
	return fmt.Sprintf(`Hello %s,

Your registration has been confirmed.

Event: %s
Date: %s
Location: %s
Registration ID: %s

Thank you.
`, c.RecipientName, c.EventTitle, c.EventDate.UTC().Format("2006-01-02 15:04"), c.Location, c.RegistrationID)
}
