// Package service orchestrates the mail operations behind a uniform JSON
// response envelope. It validates requests, resolves accounts, drives the
// protocol clients, and projects results into serializable payloads.
package service

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lgwanai/email-mcp/internal/archive"
	"github.com/lgwanai/email-mcp/internal/attachment"
	"github.com/lgwanai/email-mcp/internal/config"
	"github.com/lgwanai/email-mcp/internal/mailclient"
	"github.com/lgwanai/email-mcp/internal/model"
	"go.uber.org/zap"
)

// ErrorKind classifies a failed operation for the caller.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindConnection ErrorKind = "connection"
	KindNotFound   ErrorKind = "not_found"
	KindInternal   ErrorKind = "internal"
)

// Response is the envelope every operation returns.
type Response struct {
	Status       string    `json:"status"`
	Message      string    `json:"message,omitempty"`
	Data         any       `json:"data,omitempty"`
	ErrorKind    ErrorKind `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	RequestID    string    `json:"request_id"`
	Timestamp    time.Time `json:"timestamp"`
}

// Service wires the account registry, the attachment store and the archive
// extractor together. newClient is swappable so tests can stub the protocol
// layer.
type Service struct {
	accounts    *config.Manager
	attachments *attachment.Manager
	archives    *archive.Manager
	logger      *zap.Logger

	newClient func(config.Account, *zap.Logger) (mailclient.Client, error)
}

// New builds a Service over the given collaborators.
func New(accounts *config.Manager, attachments *attachment.Manager, archives *archive.Manager, logger *zap.Logger) *Service {
	return &Service{
		accounts:    accounts,
		attachments: attachments,
		archives:    archives,
		logger:      logger,
		newClient:   mailclient.New,
	}
}

func (s *Service) ok(requestID, message string, data any) *Response {
	return &Response{
		Status:    "success",
		Message:   message,
		Data:      data,
		RequestID: requestID,
		Timestamp: time.Now().In(model.FixedZone),
	}
}

func (s *Service) fail(requestID string, kind ErrorKind, err error) *Response {
	return &Response{
		Status:       "error",
		ErrorKind:    kind,
		ErrorMessage: err.Error(),
		RequestID:    requestID,
		Timestamp:    time.Now().In(model.FixedZone),
	}
}

func newRequestID() string { return uuid.NewString() }

// redactAddress keeps only the first three runes of the local part so logs
// never carry a full mailbox name.
func redactAddress(addr string) string {
	i := strings.LastIndex(addr, "@")
	if i < 0 {
		if len(addr) > 3 {
			return addr[:3] + "***"
		}
		return addr
	}
	local, domain := addr[:i], addr[i:]
	if len(local) > 3 {
		local = local[:3] + "***"
	}
	return local + domain
}
