package mailclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	netmail "net/mail"
	"os"
	"path/filepath"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/lgwanai/email-mcp/internal/config"
	"github.com/lgwanai/email-mcp/internal/model"
	"go.uber.org/zap"
)

// maxAttachmentSize bounds one outbound attachment. Most providers reject
// messages past 25 MiB anyway, so the limit fails fast before any network IO.
const maxAttachmentSize = 25 << 20

// SendError reports a send request that was rejected before submission.
type SendError struct {
	Path   string
	Reason string
}

func (e *SendError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("attachment %s: %s", e.Path, e.Reason)
	}
	return e.Reason
}

// validateAttachment checks one attachment path. Every path must resolve to
// a regular file under the size limit before anything is transmitted.
func validateAttachment(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return &SendError{Path: path, Reason: "file not found"}
	}
	if !info.Mode().IsRegular() {
		return &SendError{Path: path, Reason: "not a regular file"}
	}
	if info.Size() > maxAttachmentSize {
		return &SendError{Path: path, Reason: fmt.Sprintf("file is %d bytes, limit is %d", info.Size(), maxAttachmentSize)}
	}
	return nil
}

func validateSend(req model.SendRequest) error {
	if len(req.To) == 0 {
		return &SendError{Reason: "no recipients"}
	}
	for _, path := range req.AttachmentPaths {
		if err := validateAttachment(path); err != nil {
			return err
		}
	}
	return nil
}

func parseAddressList(addrs []string) []*mail.Address {
	out := make([]*mail.Address, 0, len(addrs))
	for _, a := range addrs {
		if parsed, err := netmail.ParseAddress(a); err == nil {
			out = append(out, &mail.Address{Name: parsed.Name, Address: parsed.Address})
		} else {
			out = append(out, &mail.Address{Address: a})
		}
	}
	return out
}

// buildMessage composes the full RFC 5322 message: text part, optional HTML
// alternative, then file attachments.
func buildMessage(account config.Account, req model.SendRequest) ([]byte, error) {
	var h mail.Header
	h.SetDate(time.Now().In(model.FixedZone))
	h.SetAddressList("From", []*mail.Address{{Name: account.DisplayName, Address: account.Address}})
	h.SetAddressList("To", parseAddressList(req.To))
	if len(req.CC) > 0 {
		h.SetAddressList("Cc", parseAddressList(req.CC))
	}
	h.SetSubject(req.Subject)

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("creating message writer: %w", err)
	}

	iw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("creating body: %w", err)
	}
	var th mail.InlineHeader
	th.Set("Content-Type", "text/plain; charset=utf-8")
	tw, err := iw.CreatePart(th)
	if err != nil {
		return nil, fmt.Errorf("creating text part: %w", err)
	}
	io.WriteString(tw, req.Body)
	tw.Close()

	if req.HTMLBody != "" {
		var hh mail.InlineHeader
		hh.Set("Content-Type", "text/html; charset=utf-8")
		hw, err := iw.CreatePart(hh)
		if err != nil {
			return nil, fmt.Errorf("creating html part: %w", err)
		}
		io.WriteString(hw, req.HTMLBody)
		hw.Close()
	}
	iw.Close()

	for _, path := range req.AttachmentPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading attachment %s: %w", path, err)
		}
		name := filepath.Base(path)
		ct := mime.TypeByExtension(filepath.Ext(name))
		if ct == "" {
			ct = "application/octet-stream"
		}

		var ah mail.AttachmentHeader
		ah.Set("Content-Type", ct)
		ah.SetFilename(name)
		aw, err := mw.CreateAttachment(ah)
		if err != nil {
			return nil, fmt.Errorf("creating attachment %s: %w", name, err)
		}
		if _, err := aw.Write(data); err != nil {
			aw.Close()
			return nil, fmt.Errorf("writing attachment %s: %w", name, err)
		}
		aw.Close()
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finalizing message: %w", err)
	}
	return buf.Bytes(), nil
}

// sendMail validates, composes and submits one outbound message. Validation
// failures abort before any connection is made.
func sendMail(ctx context.Context, account config.Account, req model.SendRequest, logger *zap.Logger) error {
	if err := validateSend(req); err != nil {
		return err
	}

	msg, err := buildMessage(account, req)
	if err != nil {
		return err
	}

	rcpts := req.AllRecipients()
	if err := submitSMTP(ctx, account, rcpts, msg); err != nil {
		return err
	}

	logger.Info("message sent",
		zap.String("account", account.Address),
		zap.Int("recipients", len(rcpts)),
		zap.Int("attachments", len(req.AttachmentPaths)),
		zap.Int("bytes", len(msg)))
	return nil
}
