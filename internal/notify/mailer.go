// Package notify emails stakeholder mailboxes about journalization outcomes.
package notify

import (
	"io"

	"gopkg.in/gomail.v2"

	"github.com/mbu-rpa/journalize/internal/config"
)

// Attachment is an optional file attached to a notification mail.
type Attachment struct {
	Filename string
	Data     []byte
}

// Message is one outbound notification mail.
type Message struct {
	To         string
	Subject    string
	Body       string
	HTMLBody   string
	Attachment *Attachment
}

// Mailer sends notification mails. The SMTP implementation is GomailMailer;
// tests substitute a recording fake.
type Mailer interface {
	Send(msg Message) error
}

// GomailMailer sends mail through an SMTP relay.
type GomailMailer struct {
	dialer *gomail.Dialer
	sender string
}

// NewMailer creates an SMTP mailer from configuration.
func NewMailer(cfg config.SMTPConfig) *GomailMailer {
	return &GomailMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		sender: cfg.Sender,
	}
}

// Send delivers one message.
func (m *GomailMailer) Send(msg Message) error {
	gm := gomail.NewMessage()
	gm.SetHeader("From", m.sender)
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", msg.Subject)
	gm.SetBody("text/plain", msg.Body)
	if msg.HTMLBody != "" {
		gm.AddAlternative("text/html", msg.HTMLBody)
	}
	if msg.Attachment != nil {
		data := msg.Attachment.Data
		gm.Attach(msg.Attachment.Filename, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		}))
	}
	return m.dialer.DialAndSend(gm)
}
