// Package mail sends plain-text notification emails over SMTP.
package mail

import (
	"errors"
	"fmt"
	"mime"
	"net/smtp"
	"strings"
	"time"
)

// ErrDisabled is returned by Send when mail delivery is turned off.
var ErrDisabled = errors.New("mail disabled")

type Config struct {
	Enabled  bool
	From     string
	SMTPHost string
	SMTPPort int
	User     string
	Password string
}

type Sender struct {
	cfg    Config
	sendFn func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSender(cfg Config) *Sender {
	return &Sender{cfg: cfg, sendFn: smtp.SendMail}
}

// Send delivers one message to a single recipient.
func (s *Sender) Send(to, subject, body string) error {
	if !s.cfg.Enabled {
		return ErrDisabled
	}
	if strings.ContainsAny(to, "\r\n") || strings.ContainsAny(subject, "\r\n") {
		return errors.New("mail: header injection rejected")
	}
	var auth smtp.Auth
	if s.cfg.User != "" {
		auth = smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.SMTPHost)
	}
	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)
	msg := buildRFC822(s.cfg.From, to, subject, body, time.Now())
	if err := s.sendFn(addr, auth, s.cfg.From, []string{to}, msg); err != nil {
		return fmt.Errorf("mail: send to %s: %w", to, err)
	}
	return nil
}

func buildRFC822(from, to, subject, body string, date time.Time) []byte {
	headers := []string{
		fmt.Sprintf("From: %s", from),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", mime.QEncoding.Encode("utf-8", subject)),
		fmt.Sprintf("Date: %s", date.Format(time.RFC1123Z)),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		strings.ReplaceAll(body, "\n", "\r\n"),
	}
	return []byte(strings.Join(headers, "\r\n"))
}
