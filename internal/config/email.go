package config

import (
	"context"
	"os"
	"strconv"

	"github.com/resend/resend-go/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// Notifier delivers a single email. Failures are returned to the caller so it
// can compensate (the OTP ledger deletes a code whose delivery failed).
type Notifier interface {
	Send(to, subject, html string) error
}

// NewNotifier selects the mail backend from MAIL_PROVIDER: "smtp" uses gomail
// against MAIL_HOST/MAIL_PORT, anything else uses the Resend API.
func NewNotifier(lc fx.Lifecycle, logger *zap.Logger) Notifier {
	from := os.Getenv("FROM_EMAIL")
	if from == "" {
		logger.Fatal("FROM_EMAIL not set")
	}

	var notifier Notifier
	if os.Getenv("MAIL_PROVIDER") == "smtp" {
		host := os.Getenv("MAIL_HOST")
		port, err := strconv.Atoi(os.Getenv("MAIL_PORT"))
		if host == "" || err != nil {
			logger.Fatal("MAIL_HOST or MAIL_PORT not set for smtp provider")
		}
		notifier = &SMTPMailer{
			dialer: gomail.NewDialer(host, port, os.Getenv("MAIL_USERNAME"), os.Getenv("MAIL_PASSWORD")),
			from:   from,
			logger: logger,
		}
	} else {
		apiKey := os.Getenv("RESEND_API_KEY")
		if apiKey == "" {
			logger.Fatal("RESEND_API_KEY not set")
		}
		notifier = &ResendMailer{
			client: resend.NewClient(apiKey),
			from:   from,
			logger: logger,
		}
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Email service initialized")
			return nil
		},
	})
	return notifier
}

type ResendMailer struct {
	client *resend.Client
	from   string
	logger *zap.Logger
}

func (m *ResendMailer) Send(to, subject, html string) error {
	params := &resend.SendEmailRequest{
		From:    m.from,
		To:      []string{to},
		Subject: subject,
		Html:    html,
	}
	if _, err := m.client.Emails.Send(params); err != nil {
		return err
	}
	m.logger.Info("Email sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}

type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
	logger *zap.Logger
}

func (m *SMTPMailer) Send(to, subject, html string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", html)
	if err := m.dialer.DialAndSend(msg); err != nil {
		return err
	}
	m.logger.Info("Email sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}
