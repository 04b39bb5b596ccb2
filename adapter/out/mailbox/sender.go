package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"replyflow_server/core/domain"
	"replyflow_server/core/port/out"
	"replyflow_server/pkg/apperr"
)

// acceptedMarker is what the send log records on success. net/smtp does not
// surface the server's DATA reply text, only the error, so the log carries
// this fixed marker instead of a real protocol line.
const acceptedMarker = "accepted"

// SMTPSender implements out.MailSender over net/smtp.
type SMTPSender struct {
	oauth   OAuthConfig
	timeout time.Duration
}

// NewSMTPSender creates a sender with the given dial/submit timeout.
func NewSMTPSender(oauth OAuthConfig, timeout time.Duration) *SMTPSender {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &SMTPSender{oauth: oauth, timeout: timeout}
}

// Send submits one message and returns the server's final response line.
func (s *SMTPSender) Send(ctx context.Context, mb *domain.Mailbox, secret *domain.MailboxSecret, mail *out.OutboundMail) (string, error) {
	address := fmt.Sprintf("%s:%d", mb.SMTPHost, mb.SMTPPort)
	tlsConfig := &tls.Config{
		ServerName:         mb.SMTPHost,
		InsecureSkipVerify: mb.TLSMode == domain.TLSInsecure,
	}

	c, err := s.dial(ctx, mb, address, tlsConfig)
	if err != nil {
		return "", apperr.ConnectionError(mb.SMTPHost, err)
	}
	defer c.Close()

	auth, err := s.auth(ctx, mb, secret)
	if err != nil {
		return "", apperr.ConnectionError(mb.SMTPHost, err)
	}
	if err := c.Auth(auth); err != nil {
		return "", apperr.ConnectionError(mb.SMTPHost, fmt.Errorf("auth: %w", err))
	}

	if err := c.Mail(mail.From); err != nil {
		return "", fmt.Errorf("mail from: %w", err)
	}
	if err := c.Rcpt(mail.To); err != nil {
		return "", fmt.Errorf("rcpt to: %w", err)
	}

	w, err := c.Data()
	if err != nil {
		return "", fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(buildMessage(mail)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close data: %w", err)
	}

	// The acceptance happened at the DATA close above; a failed QUIT does
	// not unsend the message.
	if err := c.Quit(); err != nil {
		return acceptedMarker + "; quit: " + err.Error(), nil
	}
	return acceptedMarker, nil
}

// dial opens the transport according to the mailbox TLS mode. Port 465 style
// deployments use implicit TLS; others negotiate STARTTLS after EHLO.
func (s *SMTPSender) dial(ctx context.Context, mb *domain.Mailbox, address string, tlsConfig *tls.Config) (*smtp.Client, error) {
	dialer := &net.Dialer{Timeout: s.timeout}

	if mb.TLSMode != domain.TLSStartTLS && mb.SMTPPort == 465 {
		conn, err := tls.DialWithDialer(dialer, "tcp", address, tlsConfig)
		if err != nil {
			return nil, err
		}
		return smtp.NewClient(conn, mb.SMTPHost)
	}

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	_ = conn.SetDeadline(time.Now().Add(s.timeout))

	c, err := smtp.NewClient(conn, mb.SMTPHost)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(tlsConfig); err != nil {
			c.Close()
			return nil, err
		}
	} else if mb.TLSMode == domain.TLSStrict {
		c.Close()
		return nil, fmt.Errorf("server does not offer STARTTLS")
	}
	return c, nil
}

func (s *SMTPSender) auth(ctx context.Context, mb *domain.Mailbox, secret *domain.MailboxSecret) (smtp.Auth, error) {
	if mb.AuthMethod == domain.AuthXOAuth2 {
		token, err := s.oauth.accessToken(ctx, secret.Password)
		if err != nil {
			return nil, err
		}
		return &xoauth2SMTPAuth{username: secret.Username, token: token}, nil
	}
	return smtp.PlainAuth("", secret.Username, secret.Password, mb.SMTPHost), nil
}

// xoauth2SMTPAuth is the XOAUTH2 mechanism for net/smtp.
type xoauth2SMTPAuth struct {
	username string
	token    string
}

func (a *xoauth2SMTPAuth) Start(server *smtp.ServerInfo) (string, []byte, error) {
	if !server.TLS {
		return "", nil, fmt.Errorf("xoauth2 requires TLS")
	}
	resp := []byte(fmt.Sprintf("user=%s\x01auth=Bearer %s\x01\x01", a.username, a.token))
	return "XOAUTH2", resp, nil
}

func (a *xoauth2SMTPAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	if more {
		return []byte{}, nil
	}
	return nil, nil
}

// buildMessage renders the RFC 5322 message.
func buildMessage(mail *out.OutboundMail) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", mail.From)
	fmt.Fprintf(&b, "To: %s\r\n", mail.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mail.Subject)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(mail.Body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}
