package mailclient

import (
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/lgwanai/email-mcp/internal/htmltext"
	"github.com/lgwanai/email-mcp/internal/model"
)

// minConvertedRunes is the threshold below which a converted HTML body is
// considered empty boilerplate and the text/plain part is used instead.
const minConvertedRunes = 10

var wordDecoder = mime.WordDecoder{CharsetReader: charset.Reader}

// decodeHeader resolves RFC 2047 encoded words that survived the library's
// own header decoding, for mailers that emit malformed encodings.
func decodeHeader(s string) string {
	if !strings.Contains(s, "=?") {
		return s
	}
	decoded, err := wordDecoder.DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}

func flattenAddresses(list []*mail.Address) []string {
	out := make([]string, 0, len(list))
	for _, a := range list {
		name := decodeHeader(a.Name)
		if name != "" {
			out = append(out, fmt.Sprintf("%s <%s>", name, a.Address))
		} else {
			out = append(out, a.Address)
		}
	}
	return out
}

func addressField(h mail.Header, key string) []string {
	list, err := h.AddressList(key)
	if err != nil || len(list) == 0 {
		// Fall back to the raw header so a malformed list is not dropped.
		raw := decodeHeader(h.Get(key))
		if raw == "" {
			return nil
		}
		parts := strings.Split(raw, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return flattenAddresses(list)
}

func nonWhitespaceRunes(s string) int {
	n := 0
	for _, r := range s {
		if !strings.ContainsRune(" \t\r\n", r) {
			n++
		}
	}
	return n
}

// DecodeMessage parses one raw RFC 5322 message into a MailMessage. The body
// prefers the HTML part rendered as text; when the conversion yields fewer
// than ten non-whitespace runes, the text/plain part is used instead.
// Attachment payloads are decoded into memory.
func DecodeMessage(uid string, raw io.Reader) (*model.MailMessage, error) {
	mr, err := mail.CreateReader(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing message %s: %w", uid, err)
	}

	msg := &model.MailMessage{UID: uid}

	h := mr.Header
	if subject, err := h.Subject(); err == nil {
		msg.Subject = decodeHeader(subject)
	} else {
		msg.Subject = decodeHeader(h.Get("Subject"))
	}
	if from := addressField(h, "From"); len(from) > 0 {
		msg.Sender = from[0]
	}
	msg.Recipients = addressField(h, "To")
	msg.CC = addressField(h, "Cc")
	msg.BCC = addressField(h, "Bcc")
	if date, err := h.Date(); err == nil && !date.IsZero() {
		msg.Date = date.In(model.FixedZone)
	}

	var plain, html strings.Builder
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Keep what decoded so far instead of losing the message.
			break
		}

		switch ph := part.Header.(type) {
		case *mail.InlineHeader:
			ct, _, _ := ph.ContentType()
			switch ct {
			case "text/plain":
				io.Copy(&plain, part.Body)
			case "text/html":
				io.Copy(&html, part.Body)
			}
		case *mail.AttachmentHeader:
			filename, _ := ph.Filename()
			ct, _, _ := ph.ContentType()
			data, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			decoded := decodeHeader(filename)
			msg.Attachments = append(msg.Attachments, model.AttachmentRef{
				Filename:         decoded,
				OriginalFilename: filename,
				ContentType:      ct,
				Size:             int64(len(data)),
				Data:             data,
			})
		}
	}

	body := plain.String()
	if html.Len() > 0 {
		converted := htmltext.Convert(html.String())
		if nonWhitespaceRunes(converted) >= minConvertedRunes || strings.TrimSpace(body) == "" {
			body = converted
		}
	}
	msg.Body = strings.TrimSpace(body)

	return msg, nil
}
