package mailclient

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/knadh/go-pop3"
	"github.com/lgwanai/email-mcp/internal/config"
	"github.com/lgwanai/email-mcp/internal/model"
	"go.uber.org/zap"
)

// pop3Client is the sequential-number retrieval variant. POP3 has no
// server-side search, so date filtering happens client side after the page
// is cut, and message numbers stand in for UIDs. Numbers are only stable
// within a session; the cursor contract is therefore weaker than over IMAP.
type pop3Client struct {
	account config.Account
	logger  *zap.Logger
	conn    *pop3.Conn
}

func newPOP3Client(account config.Account, logger *zap.Logger) *pop3Client {
	return &pop3Client{account: account, logger: logger}
}

// Connect opens and authenticates a session. Reconnecting over a live
// session is a no-op.
func (c *pop3Client) Connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	p := pop3.New(pop3.Opt{
		Host:       c.account.POP3Host,
		Port:       c.account.POP3Port,
		TLSEnabled: c.account.POP3SSL,
	})
	conn, err := p.NewConn()
	if err != nil {
		return &ConnectionError{Account: c.account.Address, Op: "dial pop3", Err: err}
	}
	if err := conn.Auth(c.account.Address, c.account.Password); err != nil {
		_ = conn.Quit()
		return &ConnectionError{Account: c.account.Address, Op: "pop3 auth", Err: err}
	}

	c.conn = conn
	c.logger.Debug("pop3 session opened",
		zap.String("account", c.account.Address),
		zap.String("server", fmt.Sprintf("%s:%d", c.account.POP3Host, c.account.POP3Port)))
	return nil
}

// Disconnect sends QUIT and drops the session.
func (c *pop3Client) Disconnect() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Quit()
	c.conn = nil
	return err
}

func (c *pop3Client) messageIDs() ([]int, error) {
	count, _, err := c.conn.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat maildrop: %w", err)
	}
	ids := make([]int, count)
	for i := range ids {
		ids[i] = i + 1
	}
	return ids, nil
}

func (c *pop3Client) fetchOne(id int) (*model.MailMessage, error) {
	buf, err := c.conn.RetrRaw(id)
	if err != nil {
		return nil, fmt.Errorf("retrieving message %d: %w", id, err)
	}
	return DecodeMessage(strconv.Itoa(id), buf)
}

// FetchMessages retrieves decoded messages. The page is cut by reverse,
// cursor and limit first; the date window is applied to the already-cut
// page, so a page may come back smaller than the limit even when matches
// exist outside it. The asymmetry with the UID variant, which filters dates
// server side before limiting, is deliberate and documented.
func (c *pop3Client) FetchMessages(ctx context.Context, f Filter) ([]model.MailMessage, error) {
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}

	nums, err := c.messageIDs()
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(nums))
	for i, n := range nums {
		ids[i] = strconv.Itoa(n)
	}
	ids = sliceWindow(ids, f)

	messages := make([]model.MailMessage, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := strconv.Atoi(id)
		if err != nil {
			continue
		}
		msg, err := c.fetchOne(n)
		if err != nil {
			c.logger.Warn("skipping message", zap.String("id", id), zap.Error(err))
			continue
		}
		if !inDateWindow(msg.Date, f) {
			continue
		}
		messages = append(messages, *msg)
	}
	return messages, nil
}

// inDateWindow tests the message date against the filter window. The end
// date is inclusive of its whole day.
func inDateWindow(date time.Time, f Filter) bool {
	if date.IsZero() {
		return f.StartDate.IsZero() && f.EndDate.IsZero()
	}
	if !f.StartDate.IsZero() && date.Before(f.StartDate) {
		return false
	}
	if !f.EndDate.IsZero() && !date.Before(f.EndDate.AddDate(0, 0, 1)) {
		return false
	}
	return true
}

// SearchMessages scans the maildrop newest first, one budgeted page per call.
func (c *pop3Client) SearchMessages(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}

	ids, err := c.messageIDs()
	if err != nil {
		return nil, err
	}

	ordered := make([]string, len(ids))
	for i, id := range ids {
		ordered[len(ids)-1-i] = strconv.Itoa(id)
	}

	load := func(ctx context.Context, id string) (*model.MailMessage, error) {
		n, err := strconv.Atoi(id)
		if err != nil {
			return nil, err
		}
		return c.fetchOne(n)
	}
	return runKeywordScan(ctx, req, ordered, load, c.logger)
}

// SendMail submits the message over the account's SMTP server.
func (c *pop3Client) SendMail(ctx context.Context, req model.SendRequest) error {
	return sendMail(ctx, c.account, req, c.logger)
}
