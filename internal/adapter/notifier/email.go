// Package notifier delivers run reports to the operator.
package notifier

import (
	"io"
	"path/filepath"

	"gopkg.in/gomail.v2"

	"github.com/adomasb/backstop/internal/config"
	"github.com/adomasb/backstop/internal/infrastructure/runlog"
)

// logTailLines is how much of the run log rides along as the attachment.
const logTailLines = 100

// Email sends a multipart report: the detailed status as the plain-text body
// and the run log tail as a named text attachment. Send errors propagate to
// the caller; email transport is the one path without the never-crash
// discipline, the app just logs the failure.
type Email struct {
	cfg *config.EmailConfig
	log *runlog.File
}

func NewEmail(cfg *config.EmailConfig, log *runlog.File) *Email {
	return &Email{cfg: cfg, log: log}
}

func (e *Email) Send(subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", e.cfg.From)
	m.SetHeader("To", e.cfg.To...)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if tail := e.log.Tail(logTailLines); tail != "" {
		name := filepath.Base(e.log.Path())
		m.Attach(name, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := io.WriteString(w, tail)
			return err
		}))
	}

	d := gomail.NewDialer(e.cfg.Host, e.cfg.Port, e.cfg.Username, e.cfg.Password)
	return d.DialAndSend(m)
}
