// Package mailer delivers one-time codes by email.
package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"student_achievements/backend/internal/shared"
)

// Message is a single HTML email
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers messages
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// New returns an SMTP sender, or a log-only sender when no credentials are
// configured.
func New(cfg shared.SMTPConfig, logger zerolog.Logger) Sender {
	if cfg.Host == "" || cfg.Username == "" || cfg.Password == "" {
		logger.Warn().Msg("SMTP credentials not configured, mail will be logged instead of sent")
		return &LogSender{logger: logger}
	}
	return &SMTPSender{config: cfg, logger: logger}
}

// LogSender writes messages to the log
type LogSender struct {
	logger zerolog.Logger
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Warn().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Str("body", msg.HTML).
		Msg("mail not sent")
	return nil
}

// SMTPSender sends mail through an authenticated SMTP relay. Port 465 uses
// implicit TLS; any other port upgrades with STARTTLS when offered.
type SMTPSender struct {
	config shared.SMTPConfig
	logger zerolog.Logger
}

const dialTimeout = 10 * time.Second

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	address := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
	from := s.config.From
	if from == "" {
		from = s.config.Username
	}

	dialer := &net.Dialer{Timeout: dialTimeout}
	var (
		conn net.Conn
		err  error
	)
	if s.config.Port == 465 {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: s.config.Host}}
		conn, err = tlsDialer.DialContext(ctx, "tcp", address)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", address)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server %s: %w", address, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	if s.config.Port != 465 {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: s.config.Host}); err != nil {
				return fmt.Errorf("STARTTLS failed: %w", err)
			}
		}
	}

	auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to get data writer: %w", err)
	}
	if _, err := w.Write(compose(from, msg)); err != nil {
		return fmt.Errorf("failed to write email message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	s.logger.Debug().Str("to", msg.To).Str("subject", msg.Subject).Msg("mail sent")
	return client.Quit()
}

func compose(from string, msg Message) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + msg.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)
	return []byte(b.String())
}

// OTPMessage is the password reset mail for one code
func OTPMessage(to, subject, code string, ttl time.Duration) Message {
	return Message{
		To:      to,
		Subject: subject,
		HTML: fmt.Sprintf("<p>Your OTP is: <strong>%s</strong></p><p>It is valid for %d minutes.</p>",
			code, int(ttl.Minutes())),
	}
}
