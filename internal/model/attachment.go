package model

import "time"

// DownloadStatus is the terminal state of one attachment download.
type DownloadStatus string

const (
	StatusSuccess         DownloadStatus = "success"
	StatusSkippedExisting DownloadStatus = "skipped_existing"
	StatusFailed          DownloadStatus = "failed"
)

// StoredAttachment is the persisted counterpart of an AttachmentRef after
// materialization. Unlike AttachmentRef it carries no payload handle and is
// safe to serialize.
type StoredAttachment struct {
	Filename         string         `json:"filename"`
	OriginalFilename string         `json:"original_filename"`
	SafeFilename     string         `json:"safe_filename"`
	ContentType      string         `json:"content_type"`
	Size             int64          `json:"size"`
	LocalPath        string         `json:"local_path,omitempty"`
	Status           DownloadStatus `json:"download_status"`
	Error            string         `json:"error,omitempty"`
	DownloadTime     time.Time      `json:"download_time"`
}

// AttachmentMetadata is the attachments.json document written next to the
// downloaded files of one message. It is overwritten on every download run.
type AttachmentMetadata struct {
	Account             string             `json:"account"`
	EmailUID            string             `json:"email_uid"`
	DownloadTime        time.Time          `json:"download_time"`
	TotalAttachments    int                `json:"total_attachments"`
	SuccessfulDownloads int                `json:"successful_downloads"`
	Attachments         []StoredAttachment `json:"attachments"`
}
