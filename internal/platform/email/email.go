package email

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"

	"siteadmin/internal/domain/payroll"
	"siteadmin/internal/platform/config"
)

type noopMailer struct{}

func (noopMailer) Send(context.Context, payroll.Message) error {
	return nil
}

type smtpMailer struct {
	addr string
	auth smtp.Auth
}

func New(cfg config.Config) payroll.Mailer {
	if !cfg.EmailEnabled || cfg.SMTPHost == "" {
		return noopMailer{}
	}
	var auth smtp.Auth
	if cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPHost)
	}
	return &smtpMailer{addr: fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort), auth: auth}
}

func (s *smtpMailer) Send(ctx context.Context, msg payroll.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e, err := buildEmail(msg)
	if err != nil {
		return err
	}
	return e.Send(s.addr, s.auth)
}

func buildEmail(msg payroll.Message) (*email.Email, error) {
	if strings.TrimSpace(msg.To) == "" {
		return nil, fmt.Errorf("mailer: recipient required")
	}
	e := email.NewEmail()
	e.From = msg.From
	e.To = []string{msg.To}
	e.Subject = msg.Subject
	e.HTML = msg.HTML
	for _, a := range msg.Attachments {
		if _, err := e.Attach(bytes.NewReader(a.Data), a.FileName, a.ContentType); err != nil {
			return nil, fmt.Errorf("mailer: attach %s: %w", a.FileName, err)
		}
	}
	return e, nil
}
