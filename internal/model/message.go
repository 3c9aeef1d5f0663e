package model

import "time"

// FixedZone is the offset every message timestamp is normalized to, so that
// records from senders in different origin offsets are directly comparable.
var FixedZone = time.FixedZone("UTC+8", 8*60*60)

// MailMessage is a fully decoded mail record. It is constructed once per
// raw-message decode and is immutable afterwards. The UID is assigned by the
// protocol: a folder-relative identifier for UID-addressed stores, a message
// number for sequential stores.
type MailMessage struct {
	UID         string          `json:"uid"`
	Sender      string          `json:"sender"`
	Recipients  []string        `json:"recipients"`
	CC          []string        `json:"cc"`
	BCC         []string        `json:"bcc"`
	Subject     string          `json:"subject"`
	Body        string          `json:"content"`
	Date        time.Time       `json:"date"`
	Attachments []AttachmentRef `json:"attachments"`
}

// AttachmentRef describes one attachment part of a MailMessage before it has
// been materialized to disk.
type AttachmentRef struct {
	// Filename is the logical filename, decoded from any transfer encoding.
	Filename string `json:"filename"`

	// OriginalFilename is the filename as it appeared in the message part.
	OriginalFilename string `json:"original_filename"`

	// ContentType is the declared media type of the part.
	ContentType string `json:"content_type"`

	// Size is the decoded payload size in bytes.
	Size int64 `json:"size"`

	// Data holds the decoded payload. It is owned by the MailMessage that
	// produced it, is valid only for the retrieval session, and must never
	// cross a serialization boundary.
	Data []byte `json:"-"`
}
