package email

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"siteadmin/internal/domain/payroll"
	"siteadmin/internal/platform/config"
)

func TestNewReturnsNoopWhenDisabled(t *testing.T) {
	mailer := New(config.Config{EmailEnabled: false, SMTPHost: "smtp.example.cl"})
	_, ok := mailer.(noopMailer)
	assert.True(t, ok)
	require.NoError(t, mailer.Send(context.Background(), payroll.Message{To: "ana@example.cl"}))
}

func TestBuildEmailWithAttachment(t *testing.T) {
	e, err := buildEmail(payroll.Message{
		From:    "rrhh@example.cl",
		To:      "ana@example.cl",
		Subject: "Payslip OCTUBRE 2026",
		HTML:    []byte("<p>hola</p>"),
		Attachments: []payroll.Attachment{{
			FileName:    "liquidacion_Ana_Soto_2026-10.pdf",
			ContentType: "application/pdf",
			Data:        []byte("%PDF-1.3"),
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ana@example.cl"}, e.To)
	require.Len(t, e.Attachments, 1)
	assert.Equal(t, "liquidacion_Ana_Soto_2026-10.pdf", e.Attachments[0].Filename)

	raw, err := e.Bytes()
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Subject: Payslip OCTUBRE 2026")
	assert.Contains(t, string(raw), "liquidacion_Ana_Soto_2026-10.pdf")
}

func TestBuildEmailRequiresRecipient(t *testing.T) {
	_, err := buildEmail(payroll.Message{Subject: "x"})
	assert.Error(t, err)
}

func TestSendHonoursCancelledContext(t *testing.T) {
	mailer := New(config.Config{EmailEnabled: true, SMTPHost: "127.0.0.1", SMTPPort: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, mailer.Send(ctx, payroll.Message{To: "ana@example.cl"}), context.Canceled)
}
