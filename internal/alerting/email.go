package alerting

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog"
)

// EmailAdapter delivers notifications over SMTP.
type EmailAdapter struct {
	host     string
	port     int
	from     string
	username string
	password string
	logger   zerolog.Logger
}

// NewEmailAdapter constructs the email channel. username may be empty for
// unauthenticated relays.
func NewEmailAdapter(host string, port int, from, username, password string, logger zerolog.Logger) *EmailAdapter {
	if port <= 0 {
		port = 587
	}
	return &EmailAdapter{
		host:     host,
		port:     port,
		from:     from,
		username: username,
		password: password,
		logger:   logger.With().Str("component", "alert_email").Logger(),
	}
}

// Name identifies the channel.
func (a *EmailAdapter) Name() string { return "email" }

// Send mails the rendered message. recipient is the destination address and
// is required for this channel.
func (a *EmailAdapter) Send(ctx context.Context, recipient string, msg Message) error {
	if recipient == "" {
		return fmt.Errorf("email: recipient address is required")
	}

	subject := fmt.Sprintf("[%s] %s", strings.ToUpper(string(msg.Severity)), msg.RuleName)
	body := strings.Builder{}
	body.WriteString(fmt.Sprintf("From: %s\r\n", a.from))
	body.WriteString(fmt.Sprintf("To: %s\r\n", recipient))
	body.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	body.WriteString("\r\n")
	body.WriteString(renderMessage(msg))

	addr := net.JoinHostPort(a.host, fmt.Sprintf("%d", a.port))

	var auth smtp.Auth
	if a.username != "" {
		auth = smtp.PlainAuth("", a.username, a.password, a.host)
	}

	// smtp.SendMail has no context hook; run it in a goroutine so the
	// dispatcher's timeout still bounds the attempt.
	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, auth, a.from, []string{recipient}, []byte(body.String()))
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("email send cancelled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send email: %w", err)
		}
	}

	a.logger.Info().
		Str("rule", msg.RuleName).
		Str("severity", string(msg.Severity)).
		Msg("notification delivered via email")
	return nil
}

var _ Adapter = (*EmailAdapter)(nil)
