package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/smtp"
	"strings"
	"time"
)

// SMTPConfig configures the SMTP sender.
type SMTPConfig struct {
	Addr     string // host:port
	From     string
	Username string
	Password string
}

// SMTPSender delivers messages over plain SMTP with optional AUTH. Relay
// selection, TLS policy and retry belong to the configured mail server; the
// sender makes exactly one attempt per message.
type SMTPSender struct {
	config SMTPConfig
	logger *slog.Logger
	send   func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSender(config SMTPConfig, logger *slog.Logger) (*SMTPSender, error) {
	if config.Addr == "" {
		return nil, errors.New("smtp sender requires a server address")
	}

	if config.From == "" {
		return nil, errors.New("smtp sender requires a from address")
	}

	return &SMTPSender{
		config: config,
		logger: logger.With("module", "delivery"),
		send:   smtp.SendMail,
	}, nil
}

func (s *SMTPSender) Deliver(ctx context.Context, message Message) error {
	if message.Recipient == "" {
		return &Error{Recipient: message.Recipient, Err: errors.New("no recipient")}
	}

	var auth smtp.Auth
	if s.config.Username != "" {
		host := s.config.Addr
		if i := strings.LastIndex(host, ":"); i >= 0 {
			host = host[:i]
		}
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, host)
	}

	payload := encodeMessage(s.config.From, message)

	// net/smtp has no context support, so run the send in a goroutine and
	// abandon it when the context expires. The connection leaks until the
	// client's own dial timeout fires, which is acceptable for a one-shot
	// send path.
	done := make(chan error, 1)

	go func() {
		done <- s.send(s.config.Addr, auth, s.config.From, []string{message.Recipient}, payload)
	}()

	select {
	case err := <-done:
		if err != nil {
			s.logger.ErrorContext(ctx, "SMTP send failed",
				"recipient", message.Recipient, "error", err)

			return &Error{Recipient: message.Recipient, Err: err}
		}

		s.logger.InfoContext(ctx, "Report delivered",
			"recipient", message.Recipient, "subject", message.Subject)

		return nil
	case <-ctx.Done():
		return &Error{Recipient: message.Recipient, Err: ctx.Err()}
	}
}

func encodeMessage(from string, message Message) []byte {
	var sb strings.Builder

	boundary := fmt.Sprintf("briefwell-%d", time.Now().UnixNano())

	fmt.Fprintf(&sb, "From: %s\r\n", from)
	fmt.Fprintf(&sb, "To: %s\r\n", message.Recipient)
	fmt.Fprintf(&sb, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", message.Subject))
	fmt.Fprintf(&sb, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	sb.WriteString("MIME-Version: 1.0\r\n")

	if message.BodyHTML == "" {
		sb.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		sb.WriteString(message.BodyText)

		return []byte(sb.String())
	}

	fmt.Fprintf(&sb, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", boundary)

	fmt.Fprintf(&sb, "--%s\r\n", boundary)
	sb.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	sb.WriteString(message.BodyText)
	sb.WriteString("\r\n")

	fmt.Fprintf(&sb, "--%s\r\n", boundary)
	sb.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	sb.WriteString(message.BodyHTML)
	sb.WriteString("\r\n")

	fmt.Fprintf(&sb, "--%s--\r\n", boundary)

	return []byte(sb.String())
}
