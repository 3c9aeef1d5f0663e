package mailclient

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/lgwanai/email-mcp/internal/config"
	"github.com/lgwanai/email-mcp/internal/model"
	"go.uber.org/zap"
)

// imapClient is the UID-addressed retrieval variant. A session is opened
// lazily and reused until Disconnect.
type imapClient struct {
	account config.Account
	logger  *zap.Logger
	conn    *imapclient.Client
}

func newIMAPClient(account config.Account, logger *zap.Logger) *imapClient {
	return &imapClient{account: account, logger: logger}
}

func (c *imapClient) addr() string {
	return fmt.Sprintf("%s:%d", c.account.IMAPHost, c.account.IMAPPort)
}

// Connect dials and authenticates. Reconnecting over a live session is a
// no-op.
func (c *imapClient) Connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	var conn *imapclient.Client
	var err error
	if c.account.IMAPSSL {
		conn, err = imapclient.DialTLS(c.addr(), nil)
	} else {
		conn, err = imapclient.DialStartTLS(c.addr(), nil)
	}
	if err != nil {
		return &ConnectionError{Account: c.account.Address, Op: "dial imap", Err: err}
	}

	if err := conn.Login(c.account.Address, c.account.Password).Wait(); err != nil {
		_ = conn.Logout().Wait()
		return &ConnectionError{Account: c.account.Address, Op: "imap login", Err: err}
	}

	c.conn = conn
	c.logger.Debug("imap session opened",
		zap.String("account", c.account.Address), zap.String("server", c.addr()))
	return nil
}

// Disconnect logs out and drops the session.
func (c *imapClient) Disconnect() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Logout().Wait()
	c.conn = nil
	return err
}

func (c *imapClient) ensure(ctx context.Context) error {
	return c.Connect(ctx)
}

func (c *imapClient) selectFolder(folder string) (string, error) {
	if folder == "" {
		folder = c.account.DefaultFolder
	}
	if _, err := c.conn.Select(folder, nil).Wait(); err != nil {
		return "", fmt.Errorf("selecting %s: %w", folder, err)
	}
	return folder, nil
}

// searchCriteria builds the UID SEARCH criteria for an optional date window.
// The end of the window is pushed one day forward because IMAP BEFORE is
// exclusive of its own date and compares whole days.
func searchCriteria(f Filter) *imap.SearchCriteria {
	criteria := &imap.SearchCriteria{}
	if !f.StartDate.IsZero() {
		criteria.Since = f.StartDate
	}
	if !f.EndDate.IsZero() {
		criteria.Before = f.EndDate.AddDate(0, 0, 1)
	}
	return criteria
}

func (c *imapClient) searchUIDs(f Filter) ([]imap.UID, error) {
	searchData, err := c.conn.UIDSearch(searchCriteria(f), nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching mailbox: %w", err)
	}

	uids := searchData.AllUIDs()
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids, nil
}

// sliceWindow applies the shared fetch windowing to an ordered id list:
// reverse if requested, then resume just after the cursor id, then cap at
// limit. A cursor id that is not present in the list is ignored and the walk
// starts from the beginning.
func sliceWindow(ids []string, f Filter) []string {
	if f.Reverse {
		reversed := make([]string, len(ids))
		for i, id := range ids {
			reversed[len(ids)-1-i] = id
		}
		ids = reversed
	}
	if f.StartUID != "" {
		for i, id := range ids {
			if id == f.StartUID {
				ids = ids[i+1:]
				break
			}
		}
	}
	if f.Limit > 0 && len(ids) > f.Limit {
		ids = ids[:f.Limit]
	}
	return ids
}

// FetchMessages retrieves decoded messages in the filter's window. The order
// of operations matters: the id list is reversed first when requested, then
// the cursor slices it just after its position, then the limit caps it.
func (c *imapClient) FetchMessages(ctx context.Context, f Filter) ([]model.MailMessage, error) {
	if err := c.ensure(ctx); err != nil {
		return nil, err
	}
	folder, err := c.selectFolder(f.Folder)
	if err != nil {
		return nil, err
	}

	uids, err := c.searchUIDs(f)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(uids))
	for i, uid := range uids {
		ids[i] = strconv.FormatUint(uint64(uid), 10)
	}
	ids = sliceWindow(ids, f)

	messages := make([]model.MailMessage, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := strconv.ParseUint(id, 10, 32)
		if err != nil {
			continue
		}
		msg, err := c.fetchOne(imap.UID(n))
		if err != nil {
			c.logger.Warn("skipping message",
				zap.String("folder", folder), zap.String("uid", id), zap.Error(err))
			continue
		}
		messages = append(messages, *msg)
	}
	return messages, nil
}

// fetchOne downloads and decodes a single message by UID. Peek leaves the
// seen flag untouched.
func (c *imapClient) fetchOne(uid imap.UID) (*model.MailMessage, error) {
	section := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := c.conn.Fetch(imap.UIDSetNum(uid), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	})

	msg := fetchCmd.Next()
	if msg == nil {
		fetchCmd.Close()
		return nil, fmt.Errorf("message uid %d not found", uid)
	}
	buf, err := msg.Collect()
	if err != nil {
		fetchCmd.Close()
		return nil, fmt.Errorf("collecting uid %d: %w", uid, err)
	}
	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("closing fetch for uid %d: %w", uid, err)
	}

	raw := buf.FindBodySection(section)
	if raw == nil {
		return nil, fmt.Errorf("message uid %d has no body section", uid)
	}
	return DecodeMessage(strconv.FormatUint(uint64(uid), 10), bytes.NewReader(raw))
}

// SearchMessages scans the folder newest first, one budgeted page per call.
func (c *imapClient) SearchMessages(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	if err := c.ensure(ctx); err != nil {
		return nil, err
	}
	if _, err := c.selectFolder(req.Folder); err != nil {
		return nil, err
	}

	searchData, err := c.conn.UIDSearch(&imap.SearchCriteria{}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("listing mailbox: %w", err)
	}
	uids := searchData.AllUIDs()
	sort.Slice(uids, func(i, j int) bool { return uids[i] > uids[j] })

	ids := make([]string, len(uids))
	for i, uid := range uids {
		ids[i] = strconv.FormatUint(uint64(uid), 10)
	}

	load := func(ctx context.Context, id string) (*model.MailMessage, error) {
		n, err := strconv.ParseUint(id, 10, 32)
		if err != nil {
			return nil, err
		}
		return c.fetchOne(imap.UID(n))
	}
	return runKeywordScan(ctx, req, ids, load, c.logger)
}

// SendMail submits the message over the account's SMTP server.
func (c *imapClient) SendMail(ctx context.Context, req model.SendRequest) error {
	return sendMail(ctx, c.account, req, c.logger)
}
