package service

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	"github.com/lgwanai/email-mcp/internal/attachment"
	"github.com/lgwanai/email-mcp/internal/config"
	"github.com/lgwanai/email-mcp/internal/mailclient"
	"github.com/lgwanai/email-mcp/internal/model"
	"go.uber.org/zap"
)

// FetchRequest selects a window of messages from one account.
type FetchRequest struct {
	Account   string `json:"account"`
	Folder    string `json:"folder,omitempty"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	StartUID  string `json:"start_uid,omitempty"`
	Reverse   bool   `json:"reverse,omitempty"`
}

// SearchRequest asks for one page of keyword matches.
type SearchRequest struct {
	Account  string `json:"account"`
	Folder   string `json:"folder,omitempty"`
	Keywords string `json:"keywords"`
	Field    string `json:"field,omitempty"`
	PageSize int    `json:"page_size,omitempty"`
	LastUID  string `json:"last_uid,omitempty"`
}

// SendRequest submits one outbound message.
type SendRequest struct {
	Account     string   `json:"account"`
	To          []string `json:"to"`
	CC          []string `json:"cc,omitempty"`
	BCC         []string `json:"bcc,omitempty"`
	Subject     string   `json:"subject"`
	Body        string   `json:"body"`
	HTMLBody    string   `json:"html_body,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
}

// MessagePayload is the serializable projection of a fetched message. The
// attachment entries describe what landed on disk, never raw payloads.
type MessagePayload struct {
	UID         string                   `json:"uid"`
	Sender      string                   `json:"sender"`
	Recipients  []string                 `json:"recipients"`
	CC          []string                 `json:"cc,omitempty"`
	BCC         []string                 `json:"bcc,omitempty"`
	Subject     string                   `json:"subject"`
	Content     string                   `json:"content"`
	Date        time.Time                `json:"date"`
	Attachments []model.StoredAttachment `json:"attachments"`
}

func classify(err error) ErrorKind {
	var ve *ValidationError
	var se *mailclient.SendError
	var ue *mailclient.UnsupportedError
	var ce *mailclient.ConnectionError
	switch {
	case errors.As(err, &ve), errors.As(err, &se), errors.As(err, &ue):
		return KindValidation
	case errors.As(err, &ce):
		return KindConnection
	case errors.Is(err, attachment.ErrNotFound):
		return KindNotFound
	default:
		return KindInternal
	}
}

func (s *Service) openClient(ctx context.Context, account config.Account) (mailclient.Client, error) {
	client, err := s.newClient(account, s.logger)
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

// project downloads a message's attachments and builds its payload. msg
// attachment data stays in memory only until this call returns.
func (s *Service) project(account config.Account, msg model.MailMessage) MessagePayload {
	payload := MessagePayload{
		UID:         msg.UID,
		Sender:      msg.Sender,
		Recipients:  msg.Recipients,
		CC:          msg.CC,
		BCC:         msg.BCC,
		Subject:     msg.Subject,
		Content:     msg.Body,
		Date:        msg.Date,
		Attachments: []model.StoredAttachment{},
	}
	if len(msg.Attachments) == 0 {
		return payload
	}
	meta, err := s.attachments.Download(account.Address, account.FolderName(), msg.UID, msg.Attachments, true)
	if err != nil {
		s.logger.Warn("attachment download failed",
			zap.String("account", redactAddress(account.Address)),
			zap.String("uid", msg.UID), zap.Error(err))
		return payload
	}
	payload.Attachments = meta.Attachments
	return payload
}

// FetchEmails retrieves messages in the request window, materializing their
// attachments on disk as a side effect.
func (s *Service) FetchEmails(ctx context.Context, req FetchRequest) *Response {
	requestID := newRequestID()
	s.logger.Info("fetch emails",
		zap.String("request_id", requestID),
		zap.String("account", redactAddress(req.Account)),
		zap.String("folder", req.Folder))

	account, err := s.resolveAccount(req.Account)
	if err != nil {
		return s.fail(requestID, classify(err), err)
	}
	start, err := parseDate("start_date", req.StartDate)
	if err != nil {
		return s.fail(requestID, classify(err), err)
	}
	end, err := parseDate("end_date", req.EndDate)
	if err != nil {
		return s.fail(requestID, classify(err), err)
	}
	if err := validateDateWindow(start, end); err != nil {
		return s.fail(requestID, classify(err), err)
	}
	limit, err := validateLimit(req.Limit)
	if err != nil {
		return s.fail(requestID, classify(err), err)
	}

	client, err := s.openClient(ctx, account)
	if err != nil {
		return s.fail(requestID, classify(err), err)
	}
	defer client.Disconnect()

	messages, err := client.FetchMessages(ctx, mailclient.Filter{
		Folder:    req.Folder,
		StartDate: start,
		EndDate:   end,
		Limit:     limit,
		StartUID:  req.StartUID,
		Reverse:   req.Reverse,
	})
	if err != nil {
		return s.fail(requestID, classify(err), err)
	}

	payloads := make([]MessagePayload, 0, len(messages))
	for _, msg := range messages {
		payloads = append(payloads, s.project(account, msg))
	}

	return s.ok(requestID, "emails fetched", map[string]any{
		"account":  account.Address,
		"folder":   req.Folder,
		"count":    len(payloads),
		"messages": payloads,
	})
}

// SearchEmails returns one page of keyword matches with a resume cursor.
func (s *Service) SearchEmails(ctx context.Context, req SearchRequest) *Response {
	requestID := newRequestID()
	s.logger.Info("search emails",
		zap.String("request_id", requestID),
		zap.String("account", redactAddress(req.Account)),
		zap.String("field", req.Field))

	account, err := s.resolveAccount(req.Account)
	if err != nil {
		return s.fail(requestID, classify(err), err)
	}
	if req.Keywords == "" {
		err := &ValidationError{Field: "keywords", Reason: "is required"}
		return s.fail(requestID, classify(err), err)
	}
	field, err := validateSearchField(req.Field)
	if err != nil {
		return s.fail(requestID, classify(err), err)
	}
	pageSize, err := validatePageSize(req.PageSize)
	if err != nil {
		return s.fail(requestID, classify(err), err)
	}

	client, err := s.openClient(ctx, account)
	if err != nil {
		return s.fail(requestID, classify(err), err)
	}
	defer client.Disconnect()

	result, err := client.SearchMessages(ctx, mailclient.SearchRequest{
		Folder:   req.Folder,
		Keywords: req.Keywords,
		Field:    field,
		PageSize: pageSize,
		LastUID:  req.LastUID,
	})
	if err != nil {
		return s.fail(requestID, classify(err), err)
	}

	payloads := make([]MessagePayload, 0, len(result.Messages))
	for _, msg := range result.Messages {
		payloads = append(payloads, s.project(account, msg))
	}

	return s.ok(requestID, "search complete", map[string]any{
		"account":  account.Address,
		"messages": payloads,
		"has_more": result.HasMore,
		"last_uid": result.LastUID,
	})
}

// SendEmail validates and submits one outbound message.
func (s *Service) SendEmail(ctx context.Context, req SendRequest) *Response {
	requestID := newRequestID()
	s.logger.Info("send email",
		zap.String("request_id", requestID),
		zap.String("account", redactAddress(req.Account)),
		zap.Int("recipients", len(req.To)+len(req.CC)+len(req.BCC)))

	account, err := s.resolveAccount(req.Account)
	if err != nil {
		return s.fail(requestID, classify(err), err)
	}
	if len(req.To) == 0 {
		err := &ValidationError{Field: "to", Reason: "at least one recipient is required"}
		return s.fail(requestID, classify(err), err)
	}

	client, err := s.newClient(account, s.logger)
	if err != nil {
		return s.fail(requestID, classify(err), err)
	}

	err = client.SendMail(ctx, model.SendRequest{
		To:              req.To,
		CC:              req.CC,
		BCC:             req.BCC,
		Subject:         req.Subject,
		Body:            req.Body,
		HTMLBody:        req.HTMLBody,
		AttachmentPaths: req.Attachments,
	})
	if err != nil {
		return s.fail(requestID, classify(err), err)
	}

	return s.ok(requestID, "email sent", map[string]any{
		"account":    account.Address,
		"recipients": len(req.To) + len(req.CC) + len(req.BCC),
	})
}

// GetAttachmentInfo returns the stored metadata for one message.
func (s *Service) GetAttachmentInfo(account, uid string) *Response {
	requestID := newRequestID()

	acct, err := s.resolveAccount(account)
	if err != nil {
		return s.fail(requestID, classify(err), err)
	}
	meta, err := s.attachments.Info(acct.FolderName(), uid)
	if err != nil {
		return s.fail(requestID, classify(err), err)
	}
	return s.ok(requestID, "attachment info", meta)
}

// ReadAttachment returns the bytes of a stored attachment, base64 encoded.
func (s *Service) ReadAttachment(account, uid, filename string) *Response {
	requestID := newRequestID()

	acct, err := s.resolveAccount(account)
	if err != nil {
		return s.fail(requestID, classify(err), err)
	}
	if filename == "" {
		err := &ValidationError{Field: "filename", Reason: "is required"}
		return s.fail(requestID, classify(err), err)
	}
	data, err := s.attachments.Read(acct.FolderName(), uid, filename)
	if err != nil {
		return s.fail(requestID, classify(err), err)
	}
	return s.ok(requestID, "attachment read", map[string]any{
		"filename": filename,
		"size":     len(data),
		"content":  base64.StdEncoding.EncodeToString(data),
	})
}

// ListAttachments lists what is stored for one message, extracted trees
// included.
func (s *Service) ListAttachments(account, uid string, hierarchical bool) *Response {
	requestID := newRequestID()

	acct, err := s.resolveAccount(account)
	if err != nil {
		return s.fail(requestID, classify(err), err)
	}
	entries, err := s.attachments.List(acct.FolderName(), uid, hierarchical)
	if err != nil {
		return s.fail(requestID, classify(err), err)
	}
	data := map[string]any{
		"uid":     uid,
		"entries": entries,
	}
	if log, err := s.attachments.ExtractionLog(acct.FolderName(), uid); err == nil {
		data["extraction"] = log.Record
	}
	return s.ok(requestID, "attachments listed", data)
}

// GetStorageStats summarizes the attachment store.
func (s *Service) GetStorageStats() *Response {
	requestID := newRequestID()
	stats, err := s.attachments.Stats()
	if err != nil {
		return s.fail(requestID, classify(err), err)
	}
	return s.ok(requestID, "storage stats", stats)
}

// CleanupAttachments deletes message directories older than days.
func (s *Service) CleanupAttachments(days int) *Response {
	requestID := newRequestID()
	if days == 0 {
		days = 30
	}
	if days < 1 {
		err := &ValidationError{Field: "days", Reason: "must be positive"}
		return s.fail(requestID, classify(err), err)
	}
	removed, freed, err := s.attachments.Cleanup(days)
	if err != nil {
		return s.fail(requestID, classify(err), err)
	}
	return s.ok(requestID, "cleanup complete", map[string]any{
		"days":        days,
		"removed":     removed,
		"freed_bytes": freed,
	})
}

// ExtractArchives re-runs recursive extraction over one message directory.
func (s *Service) ExtractArchives(account, uid string) *Response {
	requestID := newRequestID()

	acct, err := s.resolveAccount(account)
	if err != nil {
		return s.fail(requestID, classify(err), err)
	}
	dir := s.attachments.Dir(acct.FolderName(), uid)
	record, err := s.archives.ProcessDirectory(dir, uid)
	if err != nil {
		return s.fail(requestID, classify(err), err)
	}
	return s.ok(requestID, "extraction complete", record)
}
