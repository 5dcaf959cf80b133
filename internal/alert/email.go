package alert

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/doridoridoriand/pingalert/internal/config"
)

// EmailChannel sends alerts over SMTP, upgrading with STARTTLS when offered.
type EmailChannel struct {
	cfg config.EmailOptions
	now func() time.Time
}

// NewEmailChannel creates an SMTP channel.
func NewEmailChannel(cfg config.EmailOptions) *EmailChannel {
	return &EmailChannel{cfg: cfg, now: time.Now}
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Configured() bool {
	return c.cfg.SMTPServer != "" && c.cfg.SMTPPort > 0 && c.cfg.Email != "" && c.cfg.Receiver != ""
}

// Send delivers event as a plain text mail from cfg.Email to cfg.Receiver.
func (c *EmailChannel) Send(ctx context.Context, event Event) error {
	addr := net.JoinHostPort(c.cfg.SMTPServer, strconv.Itoa(c.cfg.SMTPPort))

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, c.cfg.SMTPServer)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: c.cfg.SMTPServer}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if ok, _ := client.Extension("AUTH"); ok && c.cfg.Password != "" {
		auth := smtp.PlainAuth("", c.cfg.Email, c.cfg.Password, c.cfg.SMTPServer)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(c.cfg.Email); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(c.cfg.Receiver); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(c.message(event)); err != nil {
		w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp data close: %w", err)
	}
	return client.Quit()
}

func (c *EmailChannel) message(event Event) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", c.cfg.Email)
	fmt.Fprintf(&buf, "To: %s\r\n", c.cfg.Receiver)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", event.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", c.now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(event.Body)
	buf.WriteString("\r\n")
	return buf.Bytes()
}
