// Package attachment materializes mail attachments on disk and serves them
// back. Files live under base/<account-folder>/<uid>/, each message directory
// carrying an attachments.json sidecar describing what was written.
package attachment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lgwanai/email-mcp/internal/fsutil"
	"github.com/lgwanai/email-mcp/internal/model"
	"go.uber.org/zap"
)

// MetadataFile is the per-message sidecar name. It is rewritten whole on
// every download run.
const MetadataFile = "attachments.json"

// extractionLogFile mirrors the archive package's sidecar name so listings
// can exclude it without importing that package.
const extractionLogFile = "extraction_log.json"

// ErrNotFound reports that no stored attachment matched the requested name.
var ErrNotFound = errors.New("attachment not found")

// Extractor is the hook invoked after a download that wrote at least one new
// file, so nested archives are unpacked without the caller orchestrating it.
type Extractor interface {
	ProcessDirectory(dir, emailUID string) (model.ExtractionRecord, error)
}

// Manager owns the attachment store rooted at basePath.
type Manager struct {
	basePath  string
	logger    *zap.Logger
	extractor Extractor
}

// NewManager builds a Manager. extractor may be nil to disable automatic
// archive extraction.
func NewManager(basePath string, extractor Extractor, logger *zap.Logger) *Manager {
	return &Manager{basePath: basePath, logger: logger, extractor: extractor}
}

// Dir returns the storage directory for one message.
func (m *Manager) Dir(accountFolder, uid string) string {
	return filepath.Join(m.basePath, accountFolder, fsutil.SanitizeFilename(uid))
}

// Download writes the attachments of one message to disk and records the
// outcome in attachments.json. A file whose bytes already exist under the
// same name is skipped; a name collision with different bytes gets a numeric
// suffix. Individual failures are captured per attachment and do not abort
// the run. When autoExtract is set and at least one file was written, the
// extractor is run over the message directory.
func (m *Manager) Download(account, accountFolder, uid string, refs []model.AttachmentRef, autoExtract bool) (*model.AttachmentMetadata, error) {
	dir := m.Dir(accountFolder, uid)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}

	now := time.Now().In(model.FixedZone)
	meta := &model.AttachmentMetadata{
		Account:          account,
		EmailUID:         uid,
		DownloadTime:     now,
		TotalAttachments: len(refs),
		Attachments:      make([]model.StoredAttachment, 0, len(refs)),
	}

	for _, ref := range refs {
		stored := model.StoredAttachment{
			Filename:         ref.Filename,
			OriginalFilename: ref.OriginalFilename,
			ContentType:      ref.ContentType,
			Size:             ref.Size,
			DownloadTime:     now,
		}

		safe := fsutil.SanitizeFilename(ref.Filename)
		target := filepath.Join(dir, safe)

		if existing, err := os.ReadFile(target); err == nil {
			if bytes.Equal(existing, ref.Data) {
				stored.SafeFilename = safe
				stored.LocalPath = target
				stored.Status = model.StatusSkippedExisting
				meta.Attachments = append(meta.Attachments, stored)
				continue
			}
			safe = fsutil.UniqueName(dir, safe)
			target = filepath.Join(dir, safe)
		}

		if err := os.WriteFile(target, ref.Data, 0o644); err != nil {
			stored.Status = model.StatusFailed
			stored.Error = err.Error()
			m.logger.Warn("attachment write failed",
				zap.String("uid", uid), zap.String("filename", ref.Filename), zap.Error(err))
			meta.Attachments = append(meta.Attachments, stored)
			continue
		}

		stored.SafeFilename = safe
		stored.LocalPath = target
		stored.Status = model.StatusSuccess
		meta.SuccessfulDownloads++
		meta.Attachments = append(meta.Attachments, stored)
	}

	if err := m.writeMetadata(dir, meta); err != nil {
		return meta, err
	}

	if autoExtract && m.extractor != nil && meta.SuccessfulDownloads > 0 {
		if _, err := m.extractor.ProcessDirectory(dir, uid); err != nil {
			m.logger.Warn("automatic extraction failed",
				zap.String("uid", uid), zap.Error(err))
		}
	}

	m.logger.Info("attachments downloaded",
		zap.String("account", account), zap.String("uid", uid),
		zap.Int("total", meta.TotalAttachments),
		zap.Int("written", meta.SuccessfulDownloads))
	return meta, nil
}

func (m *Manager) writeMetadata(dir string, meta *model.AttachmentMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, MetadataFile), data, 0o644); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}
	return nil
}

// Info loads the attachments.json sidecar for one message.
func (m *Manager) Info(accountFolder, uid string) (*model.AttachmentMetadata, error) {
	data, err := os.ReadFile(filepath.Join(m.Dir(accountFolder, uid), MetadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading metadata: %w", err)
	}
	var meta model.AttachmentMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}
	return &meta, nil
}

// ExtractionLog loads the extraction sidecar for one message, if an
// extraction has run there.
func (m *Manager) ExtractionLog(accountFolder, uid string) (*model.ExtractionLog, error) {
	data, err := os.ReadFile(filepath.Join(m.Dir(accountFolder, uid), extractionLogFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading extraction log: %w", err)
	}
	var log model.ExtractionLog
	if err := json.Unmarshal(data, &log); err != nil {
		return nil, fmt.Errorf("decoding extraction log: %w", err)
	}
	return &log, nil
}

// Read returns the bytes of a stored attachment. The name is resolved in
// four steps: the literal name, the sanitized name, the metadata record, and
// finally a stem-prefix scan of the message directory that catches files
// renamed during collision handling.
func (m *Manager) Read(accountFolder, uid, filename string) ([]byte, error) {
	dir := m.Dir(accountFolder, uid)

	if data, err := os.ReadFile(filepath.Join(dir, filepath.Base(filename))); err == nil {
		return data, nil
	}

	safe := fsutil.SanitizeFilename(filename)
	if data, err := os.ReadFile(filepath.Join(dir, safe)); err == nil {
		return data, nil
	}

	if meta, err := m.Info(accountFolder, uid); err == nil {
		for _, a := range meta.Attachments {
			if a.Filename != filename && a.OriginalFilename != filename && a.SafeFilename != filename {
				continue
			}
			if a.LocalPath != "" {
				if data, err := os.ReadFile(a.LocalPath); err == nil {
					return data, nil
				}
			}
			if a.SafeFilename != "" {
				if data, err := os.ReadFile(filepath.Join(dir, a.SafeFilename)); err == nil {
					return data, nil
				}
			}
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, ErrNotFound
	}
	stem, _, _ := strings.Cut(filename, ".")
	for _, e := range entries {
		if e.IsDir() || isSidecar(e.Name()) || stem == "" {
			continue
		}
		if strings.HasPrefix(e.Name(), stem) {
			return os.ReadFile(filepath.Join(dir, e.Name()))
		}
	}
	return nil, ErrNotFound
}

// ListEntry is one row of a directory listing.
type ListEntry struct {
	Path  string `json:"path"`
	Size  int64  `json:"size"`
	IsDir bool   `json:"is_dir"`
}

func isSidecar(name string) bool {
	return name == MetadataFile || name == extractionLogFile
}

// List walks the message directory. With hierarchical set, directories are
// included as entries of their own; otherwise only files are returned.
// Sidecar documents are never listed.
func (m *Manager) List(accountFolder, uid string, hierarchical bool) ([]ListEntry, error) {
	dir := m.Dir(accountFolder, uid)
	var entries []ListEntry
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if hierarchical {
				entries = append(entries, ListEntry{Path: rel, IsDir: true})
			}
			return nil
		}
		if isSidecar(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		entries = append(entries, ListEntry{Path: rel, Size: info.Size()})
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return entries, nil
}

// Stats summarizes the whole store.
type Stats struct {
	Accounts   int   `json:"accounts"`
	Messages   int   `json:"messages"`
	Files      int   `json:"files"`
	TotalBytes int64 `json:"total_bytes"`
}

// Stats walks the store root and counts accounts, message directories, files
// and bytes. Sidecars count toward bytes but not files.
func (m *Manager) Stats() (Stats, error) {
	var s Stats
	accounts, err := os.ReadDir(m.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, err
	}
	for _, acct := range accounts {
		if !acct.IsDir() {
			continue
		}
		s.Accounts++
		acctDir := filepath.Join(m.basePath, acct.Name())
		msgs, err := os.ReadDir(acctDir)
		if err != nil {
			continue
		}
		for _, msg := range msgs {
			if !msg.IsDir() {
				continue
			}
			s.Messages++
			filepath.WalkDir(filepath.Join(acctDir, msg.Name()), func(path string, d fs.DirEntry, err error) error {
				if err != nil || d.IsDir() {
					return nil
				}
				info, err := d.Info()
				if err != nil {
					return nil
				}
				s.TotalBytes += info.Size()
				if !isSidecar(d.Name()) {
					s.Files++
				}
				return nil
			})
		}
	}
	return s, nil
}

// Cleanup removes message directories older than the given number of days,
// judged by the directory's own modification time. It returns how many
// directories were removed and the bytes reclaimed.
func (m *Manager) Cleanup(days int) (removed int, freed int64, err error) {
	cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour)

	accounts, err := os.ReadDir(m.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, err
	}
	for _, acct := range accounts {
		if !acct.IsDir() {
			continue
		}
		acctDir := filepath.Join(m.basePath, acct.Name())
		msgs, err := os.ReadDir(acctDir)
		if err != nil {
			continue
		}
		for _, msg := range msgs {
			if !msg.IsDir() {
				continue
			}
			msgDir := filepath.Join(acctDir, msg.Name())
			info, err := msg.Info()
			if err != nil || !info.ModTime().Before(cutoff) {
				continue
			}
			var size int64
			filepath.WalkDir(msgDir, func(path string, d fs.DirEntry, err error) error {
				if err != nil || d.IsDir() {
					return nil
				}
				if fi, err := d.Info(); err == nil {
					size += fi.Size()
				}
				return nil
			})
			if err := os.RemoveAll(msgDir); err != nil {
				m.logger.Warn("cleanup failed", zap.String("dir", msgDir), zap.Error(err))
				continue
			}
			removed++
			freed += size
		}
	}

	m.logger.Info("cleanup finished",
		zap.Int("days", days), zap.Int("removed", removed), zap.Int64("freed_bytes", freed))
	return removed, freed, nil
}
