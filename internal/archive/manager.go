// Package archive detects and extracts compressed attachments, recursively
// and loop-safely: archives found inside archives are extracted in later
// rounds, and every archive is marked processed before extraction starts so
// a self-containing archive can never cause an infinite loop.
package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lgwanai/email-mcp/internal/fsutil"
	"github.com/lgwanai/email-mcp/internal/model"
	"github.com/ulikunitz/xz"
	"go.uber.org/zap"
)

// ExtractionLogFile is the sidecar written by ProcessDirectory.
const ExtractionLogFile = "extraction_log.json"

// maxRounds bounds the recursion depth of nested archives.
const maxRounds = 10

// Format classifies an archive by filename.
type Format string

const (
	FormatZip     Format = "zip"
	FormatTar     Format = "tar"
	FormatTarGz   Format = "tar.gz"
	FormatTarBz2  Format = "tar.bz2"
	FormatTarXz   Format = "tar.xz"
	FormatGzip    Format = "gz"
	FormatBzip2   Format = "bz2"
	FormatXz      Format = "xz"
	FormatRar     Format = "rar"
	Format7z      Format = "7z"
	FormatUnknown Format = ""
)

// DetectFormat classifies name by extension. Compound suffixes win over the
// single-extension table so "a.tar.gz" is not mistaken for a bare gzip file.
func DetectFormat(name string) Format {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return FormatTarGz
	case strings.HasSuffix(lower, ".tar.bz2"), strings.HasSuffix(lower, ".tbz2"):
		return FormatTarBz2
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".txz"):
		return FormatTarXz
	}
	switch filepath.Ext(lower) {
	case ".zip":
		return FormatZip
	case ".tar":
		return FormatTar
	case ".gz":
		return FormatGzip
	case ".bz2":
		return FormatBzip2
	case ".xz":
		return FormatXz
	case ".rar":
		return FormatRar
	case ".7z":
		return Format7z
	}
	return FormatUnknown
}

// IsArchive reports whether name carries a recognized archive extension,
// including the formats that are detected but not extractable.
func IsArchive(name string) bool {
	return DetectFormat(name) != FormatUnknown
}

// Manager extracts archives found under attachment directories.
type Manager struct {
	logger    *zap.Logger
	processed map[string]bool
}

func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		logger:    logger,
		processed: make(map[string]bool),
	}
}

// sanitizeMemberPath rewrites an archive member name so it cannot escape the
// destination directory. Absolute paths and parent references are stripped
// component by component.
func sanitizeMemberPath(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	parts := strings.Split(name, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		switch p {
		case "", ".", "..":
			continue
		}
		out = append(out, fsutil.SanitizeFilename(p))
	}
	return filepath.Join(out...)
}

func writeMember(destDir, member string, r io.Reader) (string, error) {
	rel := sanitizeMemberPath(member)
	if rel == "" {
		return "", fmt.Errorf("member %q has no usable name", member)
	}
	parent := filepath.Join(destDir, filepath.Dir(rel))
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", err
	}

	// An occupied name gets the numeric disambiguator instead of being
	// overwritten.
	name := fsutil.UniqueName(parent, filepath.Base(rel))
	rel = filepath.Join(filepath.Dir(rel), name)

	f, err := os.Create(filepath.Join(destDir, rel))
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return "", err
	}
	return rel, nil
}

func (m *Manager) extractZip(path, destDir string) ([]string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening zip: %w", err)
	}
	defer zr.Close()

	var files []string
	for _, zf := range zr.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return files, fmt.Errorf("opening member %s: %w", zf.Name, err)
		}
		rel, err := writeMember(destDir, zf.Name, rc)
		rc.Close()
		if err != nil {
			return files, fmt.Errorf("extracting member %s: %w", zf.Name, err)
		}
		files = append(files, rel)
	}
	return files, nil
}

func (m *Manager) extractTar(path, destDir string, format Format) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	switch format {
	case FormatTarGz:
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	case FormatTarBz2:
		r = bzip2.NewReader(f)
	case FormatTarXz:
		xr, err := xz.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("opening xz stream: %w", err)
		}
		r = xr
	}

	tr := tar.NewReader(r)
	var files []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return files, fmt.Errorf("reading tar: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		rel, err := writeMember(destDir, hdr.Name, tr)
		if err != nil {
			return files, fmt.Errorf("extracting member %s: %w", hdr.Name, err)
		}
		files = append(files, rel)
	}
	return files, nil
}

// extractSingle handles single-file compression. The output name is the
// archive name minus its compression suffix, or "extracted_file" when that
// leaves nothing.
func (m *Manager) extractSingle(path, destDir string, format Format) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	var r io.Reader
	switch format {
	case FormatGzip:
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	case FormatBzip2:
		r = bzip2.NewReader(f)
	case FormatXz:
		xr, err := xz.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("opening xz stream: %w", err)
		}
		r = xr
	default:
		return nil, fmt.Errorf("format %q is not single-file compression", format)
	}

	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if name == "" || name == base {
		name = "extracted_file"
	}
	rel, err := writeMember(destDir, name, r)
	if err != nil {
		return nil, err
	}
	return []string{rel}, nil
}

// Extract unpacks one archive into destDir and returns the relative paths of
// the extracted files. Rar and 7z are recognized but skipped because no
// pure-Go decoder is wired in for them.
func (m *Manager) Extract(path, destDir string) ([]string, error) {
	format := DetectFormat(filepath.Base(path))
	switch format {
	case FormatZip:
		return m.extractZip(path, destDir)
	case FormatTar, FormatTarGz, FormatTarBz2, FormatTarXz:
		return m.extractTar(path, destDir, format)
	case FormatGzip, FormatBzip2, FormatXz:
		return m.extractSingle(path, destDir, format)
	case FormatRar, Format7z:
		m.logger.Warn("skipping unsupported archive format",
			zap.String("archive", filepath.Base(path)), zap.String("format", string(format)))
		return nil, nil
	default:
		return nil, fmt.Errorf("%s is not a recognized archive", filepath.Base(path))
	}
}

// findArchives walks root and returns archive paths not yet processed.
func (m *Manager) findArchives(root string) ([]string, error) {
	var found []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !IsArchive(d.Name()) {
			return nil
		}
		if m.processed[path] {
			return nil
		}
		found = append(found, path)
		return nil
	})
	return found, err
}

// ExtractRecursively extracts every archive under root, round by round, until
// a round finds nothing new or the round limit is hit. Each archive is added
// to the processed set before extraction begins, so an archive that contains
// itself is extracted exactly once.
func (m *Manager) ExtractRecursively(root string) model.ExtractionRecord {
	record := model.ExtractionRecord{}

	for round := 1; round <= maxRounds; round++ {
		archives, err := m.findArchives(root)
		if err != nil {
			record.Errors = append(record.Errors, fmt.Sprintf("scanning %s: %v", root, err))
			break
		}
		if len(archives) == 0 {
			break
		}

		r := model.ExtractionRound{Round: round, ArchivesFound: len(archives)}
		for _, path := range archives {
			m.processed[path] = true

			// Members land next to the archive itself.
			destDir := filepath.Dir(path)

			files, err := m.Extract(path, destDir)
			if err != nil {
				r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", filepath.Base(path), err))
				m.logger.Warn("extraction failed",
					zap.String("archive", filepath.Base(path)), zap.Error(err))
				continue
			}
			if len(files) == 0 {
				continue
			}
			r.Extracted = append(r.Extracted, model.ArchiveOutcome{
				Archive:     filepath.Base(path),
				ExtractedTo: destDir,
				Files:       files,
			})
			record.TotalExtracted += len(files)
		}
		record.Rounds = append(record.Rounds, r)
		record.Errors = append(record.Errors, r.Errors...)

		if round == maxRounds {
			// Only report the limit when a rescan still finds unprocessed
			// archives; a final round that extracted everything is complete.
			if remaining, err := m.findArchives(root); err == nil && len(remaining) > 0 {
				m.logger.Warn("extraction round limit reached", zap.String("root", root))
				record.Errors = append(record.Errors,
					fmt.Sprintf("round limit %d reached, nested archives remain", maxRounds))
			}
		}
	}
	return record
}

// ProcessDirectory runs a fresh recursive extraction over dir and writes the
// extraction_log.json sidecar. The processed set is reset so repeated calls
// re-examine archives added since the last run.
func (m *Manager) ProcessDirectory(dir, emailUID string) (model.ExtractionRecord, error) {
	m.processed = make(map[string]bool)

	record := m.ExtractRecursively(dir)

	log := model.ExtractionLog{
		EmailUID:       emailUID,
		ExtractionTime: time.Now().In(model.FixedZone),
		Record:         record,
	}
	data, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return record, fmt.Errorf("encoding extraction log: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ExtractionLogFile), data, 0o644); err != nil {
		return record, fmt.Errorf("writing extraction log: %w", err)
	}

	m.logger.Info("directory processed",
		zap.String("dir", dir),
		zap.Int("extracted", record.TotalExtracted),
		zap.Int("rounds", len(record.Rounds)))
	return record, nil
}
