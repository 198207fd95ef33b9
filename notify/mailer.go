/*
Package notify sends the studio's transactional email.

PURPOSE:
  Welcome and password-changed emails are a side channel: they must never
  block or fail the operation that triggered them. The Dispatcher accepts
  messages without waiting, queues them, and hands them to a Mailer from a
  background worker with a per-send timeout. A full queue drops the message
  and logs it.

MAILERS:
  - LogMailer:  writes the message to a logger (development, tests)
  - SMTPMailer: delivers over SMTP with STARTTLS when offered

SEE ALSO:
  - dispatcher.go: queue and worker
  - studio/service.go: Notifier interface
*/
package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// Message is one outgoing email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Bytes renders the message as an RFC 5322 document.
func (m Message) Bytes(from string, at time.Time) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", m.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", m.Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", at.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(m.Body, "\n", "\r\n"))
	return b.Bytes()
}

// Mailer delivers one message. Implementations honor ctx cancellation.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// =============================================================================
// LOG MAILER
// =============================================================================

// LogMailer prints messages instead of sending them.
type LogMailer struct {
	Logger *log.Logger
}

func (m LogMailer) Send(_ context.Context, msg Message) error {
	logger := m.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("[Notify] to=%s subject=%q\n%s", msg.To, msg.Subject, msg.Body)
	return nil
}

// =============================================================================
// SMTP MAILER
// =============================================================================

// SMTPMailer sends through an SMTP relay.
type SMTPMailer struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
}

func (m SMTPMailer) Send(ctx context.Context, msg Message) error {
	addr := net.JoinHostPort(m.Host, strconv.Itoa(m.Port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, m.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake with %s: %w", addr, err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.Host}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if m.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", m.Username, m.Password, m.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(m.From); err != nil {
		return err
	}
	if err := c.Rcpt(msg.To); err != nil {
		return fmt.Errorf("recipient %s: %w", msg.To, err)
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg.Bytes(m.From, time.Now())); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}
