package mailclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"time"

	"github.com/lgwanai/email-mcp/internal/config"
	"github.com/lgwanai/email-mcp/internal/model"
	"go.uber.org/zap"
)

const smtpDialTimeout = 30 * time.Second

// smtpOnlyClient is the send-only variant. SMTP holds no mailbox, so the
// retrieval operations fail with a typed error and there is no session to
// keep open between sends.
type smtpOnlyClient struct {
	account config.Account
	logger  *zap.Logger
}

func newSMTPOnlyClient(account config.Account, logger *zap.Logger) *smtpOnlyClient {
	return &smtpOnlyClient{account: account, logger: logger}
}

func (c *smtpOnlyClient) Connect(ctx context.Context) error { return nil }

func (c *smtpOnlyClient) Disconnect() error { return nil }

func (c *smtpOnlyClient) FetchMessages(ctx context.Context, f Filter) ([]model.MailMessage, error) {
	return nil, &UnsupportedError{Protocol: "smtp", Op: "fetching messages"}
}

func (c *smtpOnlyClient) SearchMessages(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	return nil, &UnsupportedError{Protocol: "smtp", Op: "searching messages"}
}

func (c *smtpOnlyClient) SendMail(ctx context.Context, req model.SendRequest) error {
	return sendMail(ctx, c.account, req, c.logger)
}

// submitSMTP delivers an already-composed message. SSL accounts use an
// implicit TLS connection; plain accounts dial in the clear and upgrade with
// STARTTLS when the server offers it.
func submitSMTP(ctx context.Context, account config.Account, rcpts []string, msg []byte) error {
	addr := fmt.Sprintf("%s:%d", account.SMTPHost, account.SMTPPort)
	tlsCfg := &tls.Config{ServerName: account.SMTPHost}

	var client *smtp.Client
	if account.SMTPSSL {
		conn, err := tls.Dial("tcp", addr, tlsCfg)
		if err != nil {
			return &ConnectionError{Account: account.Address, Op: "dial smtp", Err: err}
		}
		client, err = smtp.NewClient(conn, account.SMTPHost)
		if err != nil {
			conn.Close()
			return &ConnectionError{Account: account.Address, Op: "smtp handshake", Err: err}
		}
	} else {
		conn, err := net.DialTimeout("tcp", addr, smtpDialTimeout)
		if err != nil {
			return &ConnectionError{Account: account.Address, Op: "dial smtp", Err: err}
		}
		client, err = smtp.NewClient(conn, account.SMTPHost)
		if err != nil {
			conn.Close()
			return &ConnectionError{Account: account.Address, Op: "smtp handshake", Err: err}
		}
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsCfg); err != nil {
				client.Close()
				return &ConnectionError{Account: account.Address, Op: "smtp starttls", Err: err}
			}
		}
	}
	defer client.Close()

	if err := ctx.Err(); err != nil {
		return err
	}

	if ok, _ := client.Extension("AUTH"); ok {
		auth := smtp.PlainAuth("", account.Address, account.Password, account.SMTPHost)
		if err := client.Auth(auth); err != nil {
			return &ConnectionError{Account: account.Address, Op: "smtp auth", Err: err}
		}
	}

	if err := client.Mail(account.Address); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	for _, rcpt := range rcpts {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("RCPT TO %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		w.Close()
		return fmt.Errorf("writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finishing message: %w", err)
	}

	return client.Quit()
}
