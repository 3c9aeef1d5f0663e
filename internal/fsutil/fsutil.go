// Package fsutil provides filename hygiene helpers shared by the attachment
// store and the archive extractor.
package fsutil

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const maxFilenameLen = 255

// SanitizeFilename rewrites name so it is safe to create on any common
// filesystem. Path separators and shell-hostile characters become
// underscores, leading and trailing dots and spaces are trimmed, and the
// result is capped at 255 bytes while preserving the extension.
func SanitizeFilename(name string) string {
	if name == "" {
		return "unnamed_file"
	}

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case strings.ContainsRune(`<>:"/\|?*`, r), r < 0x20:
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}

	cleaned := strings.Trim(b.String(), ". ")
	if cleaned == "" {
		return "unnamed_file"
	}

	if len(cleaned) > maxFilenameLen {
		ext := filepath.Ext(cleaned)
		if len(ext) >= maxFilenameLen {
			ext = ""
		}
		cleaned = cleaned[:maxFilenameLen-len(ext)] + ext
	}
	return cleaned
}

// UniqueName returns a filename that does not yet exist inside dir. When name
// is taken, a numeric suffix is appended to the stem: report.pdf becomes
// report_1.pdf, then report_2.pdf, and so on.
func UniqueName(dir, name string) string {
	candidate := name
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 1; ; n++ {
		if _, err := os.Stat(filepath.Join(dir, candidate)); os.IsNotExist(err) {
			return candidate
		}
		candidate = stem + "_" + strconv.Itoa(n) + ext
	}
}
