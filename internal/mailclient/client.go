// Package mailclient retrieves, searches and sends mail over IMAP, POP3 and
// SMTP. A Client is bound to one account; every retrieval method connects on
// demand so callers never manage session state explicitly.
package mailclient

import (
	"context"
	"fmt"
	"time"

	"github.com/lgwanai/email-mcp/internal/config"
	"github.com/lgwanai/email-mcp/internal/model"
	"go.uber.org/zap"
)

// Filter narrows a fetch to a folder, a date window, and a position in the
// mailbox. StartUID is an exclusive cursor: only messages strictly after it
// are returned. Reverse orders results newest first.
type Filter struct {
	Folder    string
	StartDate time.Time
	EndDate   time.Time
	Limit     int
	StartUID  string
	Reverse   bool
}

// SearchRequest describes one page of a keyword search. Field selects where
// keywords are matched: "sender", "recipient", "cc", "subject", "content",
// "attachment" or "all". A message matches when any keyword occurs in the
// scoped field. LastUID is the resume cursor from the previous page, empty
// for the first page.
type SearchRequest struct {
	Folder   string
	Keywords string
	Field    string
	PageSize int
	LastUID  string
}

// SearchResult is one page of matches. LastUID resumes the scan; HasMore
// reports whether unscanned messages remain beyond this page.
type SearchResult struct {
	Messages []model.MailMessage
	HasMore  bool
	LastUID  string
}

// Client is the protocol-independent mail session for one account.
type Client interface {
	// Connect establishes and authenticates the session. Retrieval methods
	// call it implicitly when no session is open.
	Connect(ctx context.Context) error

	// FetchMessages returns decoded messages matching the filter, attachment
	// payloads included.
	FetchMessages(ctx context.Context, f Filter) ([]model.MailMessage, error)

	// SearchMessages scans the folder for keyword matches, one page at a time.
	SearchMessages(ctx context.Context, req SearchRequest) (*SearchResult, error)

	// SendMail composes and submits a message over SMTP.
	SendMail(ctx context.Context, req model.SendRequest) error

	// Disconnect closes the session. It is safe to call when not connected.
	Disconnect() error
}

// ConnectionError wraps a failure to establish or authenticate a session,
// keeping the account and operation for the caller's error envelope.
type ConnectionError struct {
	Account string
	Op      string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Account, e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// UnsupportedError reports an operation the account's protocol cannot serve,
// such as fetching over a send-only account.
type UnsupportedError struct {
	Protocol string
	Op       string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s accounts do not support %s", e.Protocol, e.Op)
}

// New returns the Client variant selected by the account's protocol.
func New(account config.Account, logger *zap.Logger) (Client, error) {
	switch account.Protocol {
	case config.ProtocolIMAP:
		return newIMAPClient(account, logger), nil
	case config.ProtocolPOP3:
		return newPOP3Client(account, logger), nil
	case config.ProtocolSMTP:
		return newSMTPOnlyClient(account, logger), nil
	default:
		return nil, fmt.Errorf("unsupported protocol %q for account %s", account.Protocol, account.Address)
	}
}
