package notify

import (
	"fmt"
	"log/slog"

	"github.com/mbu-rpa/journalize/internal/config"
	"github.com/mbu-rpa/journalize/internal/formtype"
)

// Notification describes a journalization outcome for stakeholder routing.
// ErrorDetail being set makes it a failure notification regardless of the
// other fields.
type Notification struct {
	FormID      string
	FormType    formtype.Definition
	CaseID      string
	CaseTitle   string
	CaseRelURL  string
	ErrorDetail string
	Attachment  *Attachment
}

// Dispatcher routes notifications to stakeholder mailboxes by priority:
// errors go to operations, boundary-violation forms to the specialized
// mailbox, school-family forms to the school mailbox with a per-form-type
// subject, and everything else is silently logged.
type Dispatcher struct {
	mailer Mailer
	cfg    config.NotifyConfig
}

// NewDispatcher creates a notification dispatcher.
func NewDispatcher(mailer Mailer, cfg config.NotifyConfig) *Dispatcher {
	return &Dispatcher{mailer: mailer, cfg: cfg}
}

// Dispatch sends the notification for one form outcome. Delivery failures are
// logged and swallowed; notification must never fail the pipeline.
func (d *Dispatcher) Dispatch(n Notification) {
	msg, ok := d.compose(n)
	if !ok {
		slog.Info("no notification recipient for form type",
			"form_type", n.FormType.ID,
			"form_id", n.FormID,
		)
		return
	}

	if err := d.mailer.Send(msg); err != nil {
		slog.Error("failed to send notification mail",
			"to", msg.To,
			"subject", msg.Subject,
			"error", err,
		)
		return
	}
	slog.Info("notification sent", "to", msg.To, "subject", msg.Subject, "form_id", n.FormID)
}

func (d *Dispatcher) compose(n Notification) (Message, bool) {
	if n.ErrorDetail != "" {
		if d.cfg.OperationsEmail == "" {
			return Message{}, false
		}
		return Message{
			To:      d.cfg.OperationsEmail,
			Subject: fmt.Sprintf("Journalisering fejlede: %s", n.FormType.ID),
			Body: fmt.Sprintf(
				"Journalisering af formular %s fejlede.\n\nSag: %s\n\nFejl:\n%s\n",
				n.FormID, orDash(n.CaseID), n.ErrorDetail,
			),
		}, true
	}

	switch n.FormType.Family {
	case formtype.FamilyRespekt:
		if d.cfg.RespektEmail == "" {
			return Message{}, false
		}
		return Message{
			To:         d.cfg.RespektEmail,
			Subject:    fmt.Sprintf("Ny sag journaliseret: %s", n.CaseTitle),
			Body:       successBody(n),
			Attachment: n.Attachment,
		}, true
	case formtype.FamilySkole:
		if d.cfg.SkoleEmail == "" {
			return Message{}, false
		}
		subject := n.FormType.EmailSubject
		if subject == "" {
			subject = fmt.Sprintf("Ny sag journaliseret: %s", n.CaseTitle)
		}
		return Message{
			To:         d.cfg.SkoleEmail,
			Subject:    subject,
			Body:       successBody(n),
			Attachment: n.Attachment,
		}, true
	default:
		return Message{}, false
	}
}

func successBody(n Notification) string {
	body := fmt.Sprintf("Formular %s er journaliseret.\n\nSag: %s\nTitel: %s\n", n.FormID, n.CaseID, n.CaseTitle)
	if n.CaseRelURL != "" {
		body += fmt.Sprintf("Link: %s\n", n.CaseRelURL)
	}
	return body
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
