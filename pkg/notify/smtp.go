package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/smtp"
	"time"

	"github.com/Latha2211/Selenium-Whatsappbot-replacement-of-Gupshup/pkg/config"
	"github.com/Latha2211/Selenium-Whatsappbot-replacement-of-Gupshup/pkg/store"
)

const senderName = "Campus Lead Bot"

// SMTPNotifier sends alerts and reports through a plain SMTP relay with
// optional STARTTLS, the way the ops mailbox expects them.
type SMTPNotifier struct {
	cfg config.MailSettings
	// send is swappable in tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPNotifier(cfg config.MailSettings) *SMTPNotifier {
	n := &SMTPNotifier{cfg: cfg}
	if cfg.UseTLS {
		n.send = n.sendWithStartTLS
	} else {
		n.send = smtp.SendMail
	}
	return n
}

func (n *SMTPNotifier) SendError(ctx context.Context, report ErrorReport) error {
	if n.cfg.ErrorTo == "" {
		return nil
	}
	subject := fmt.Sprintf("Lead bot error: %s", report.Bot)
	body := errorBody(report)
	return n.sendMail(ctx, n.cfg.ErrorTo, subject, body, report.Screenshot)
}

func (n *SMTPNotifier) SendDailyReport(ctx context.Context, day time.Time, stats []store.StatusCount) error {
	if n.cfg.ReportTo == "" {
		return nil
	}
	subject := fmt.Sprintf("Lead bot daily report %s", day.Format("2006-01-02"))
	body := reportBody(day, stats)
	return n.sendMail(ctx, n.cfg.ReportTo, subject, body, nil)
}

func (n *SMTPNotifier) sendMail(ctx context.Context, to, subject, htmlBody string, screenshot []byte) error {
	if n.cfg.Server == "" || n.cfg.Sender == "" {
		return errors.New("smtp configuration incomplete")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := buildMessage(fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", senderName), n.cfg.Sender),
		to, subject, htmlBody, screenshot)

	addr := fmt.Sprintf("%s:%d", n.cfg.Server, n.cfg.Port)
	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Server)
	}
	if err := n.send(addr, auth, n.cfg.Sender, []string{to}, msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

// sendWithStartTLS mirrors smtp.SendMail but upgrades the connection
// before authenticating, as port-587 relays require.
func (n *SMTPNotifier) sendWithStartTLS(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	c, err := smtp.Dial(addr)
	if err != nil {
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: n.cfg.Server}); err != nil {
			return err
		}
	}
	if a != nil {
		if err := c.Auth(a); err != nil {
			return err
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

// buildMessage assembles a multipart/related MIME message: an HTML body
// plus an optional inline PNG screenshot referenced as cid:screenshot.
func buildMessage(from, to, subject, htmlBody string, screenshot []byte) []byte {
	const boundary = "leadbot-mime-boundary"
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	buf.WriteString("MIME-Version: 1.0\r\n")

	if len(screenshot) == 0 {
		buf.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
		buf.WriteString(htmlBody)
		return buf.Bytes()
	}

	fmt.Fprintf(&buf, "Content-Type: multipart/related; boundary=%q\r\n\r\n", boundary)

	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	buf.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	buf.WriteString(htmlBody)
	buf.WriteString("\r\n")

	fmt.Fprintf(&buf, "--%s\r\n", boundary)
	buf.WriteString("Content-Type: image/png\r\n")
	buf.WriteString("Content-Transfer-Encoding: base64\r\n")
	buf.WriteString("Content-ID: <screenshot>\r\n")
	buf.WriteString("Content-Disposition: inline; filename=\"screenshot.png\"\r\n\r\n")

	encoded := base64.StdEncoding.EncodeToString(screenshot)
	for len(encoded) > 76 {
		buf.WriteString(encoded[:76])
		buf.WriteString("\r\n")
		encoded = encoded[76:]
	}
	buf.WriteString(encoded)
	buf.WriteString("\r\n")

	fmt.Fprintf(&buf, "--%s--\r\n", boundary)
	return buf.Bytes()
}
