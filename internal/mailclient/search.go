package mailclient

import (
	"context"
	"strings"

	"github.com/lgwanai/email-mcp/internal/model"
	"go.uber.org/zap"
)

// scanBudgetFactor bounds one search page: at most pageSize*scanBudgetFactor
// messages are fetched and inspected before the page is returned, matches or
// not. The cursor lets the caller resume where the budget ran out.
const scanBudgetFactor = 10

// messageLoader fetches and decodes one message by UID.
type messageLoader func(ctx context.Context, uid string) (*model.MailMessage, error)

func attachmentNames(msg *model.MailMessage) string {
	names := make([]string, len(msg.Attachments))
	for i, a := range msg.Attachments {
		names[i] = a.Filename
	}
	return strings.Join(names, " ")
}

// matchesKeywords reports whether any keyword occurs in the scoped field of
// the message. Matching is case-insensitive. Field "all" searches sender,
// recipients, cc, subject, body and attachment names together; an unknown
// field matches nothing.
func matchesKeywords(msg *model.MailMessage, keywords []string, field string) bool {
	var haystack string
	switch field {
	case "sender":
		haystack = msg.Sender
	case "recipient":
		haystack = strings.Join(msg.Recipients, " ")
	case "cc":
		haystack = strings.Join(msg.CC, " ")
	case "subject":
		haystack = msg.Subject
	case "content":
		haystack = msg.Body
	case "attachment":
		haystack = attachmentNames(msg)
	case "all":
		haystack = strings.Join([]string{
			msg.Sender,
			strings.Join(msg.Recipients, " "),
			strings.Join(msg.CC, " "),
			msg.Subject,
			msg.Body,
			attachmentNames(msg),
		}, " ")
	default:
		return false
	}
	if haystack == "" {
		return false
	}
	haystack = strings.ToLower(haystack)
	for _, kw := range keywords {
		if strings.Contains(haystack, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// runKeywordScan walks uids from the resume cursor, loading and testing each
// message until a full page of matches is collected or the scan budget is
// spent. uids must be ordered newest first.
func runKeywordScan(ctx context.Context, req SearchRequest, uids []string, load messageLoader, logger *zap.Logger) (*SearchResult, error) {
	keywords := strings.Fields(req.Keywords)
	result := &SearchResult{Messages: []model.MailMessage{}}
	if len(uids) == 0 || len(keywords) == 0 {
		return result, nil
	}

	start := 0
	if req.LastUID != "" {
		for i, uid := range uids {
			if uid == req.LastUID {
				start = i + 1
				break
			}
		}
	}

	budget := req.PageSize * scanBudgetFactor
	lastChecked := start - 1
	for i := start; i < len(uids) && i-start < budget; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lastChecked = i

		msg, err := load(ctx, uids[i])
		if err != nil {
			logger.Warn("skipping undecodable message",
				zap.String("uid", uids[i]), zap.Error(err))
			continue
		}
		if matchesKeywords(msg, keywords, req.Field) {
			result.Messages = append(result.Messages, *msg)
			if len(result.Messages) >= req.PageSize {
				break
			}
		}
	}

	if lastChecked >= start {
		result.HasMore = lastChecked < len(uids)-1
		if n := len(result.Messages); n > 0 {
			result.LastUID = result.Messages[n-1].UID
		} else if result.HasMore {
			result.LastUID = uids[lastChecked]
		}
	}
	return result, nil
}
