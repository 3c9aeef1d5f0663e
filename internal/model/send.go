package model

// SendRequest describes an outbound message: a plain text body, an optional
// HTML alternative, and optional attachments read from local paths.
type SendRequest struct {
	To              []string
	CC              []string
	BCC             []string
	Subject         string
	Body            string
	HTMLBody        string
	AttachmentPaths []string
}

// AllRecipients returns the union of to, cc and bcc in order.
func (r SendRequest) AllRecipients() []string {
	out := make([]string, 0, len(r.To)+len(r.CC)+len(r.BCC))
	out = append(out, r.To...)
	out = append(out, r.CC...)
	out = append(out, r.BCC...)
	return out
}
