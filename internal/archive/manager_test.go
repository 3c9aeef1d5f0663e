package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/lgwanai/email-mcp/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(zap.NewNop())
}

func zipBytes(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func writeZip(t *testing.T, path string, files map[string][]byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, zipBytes(t, files), 0o644))
}

func writeTarGz(t *testing.T, path string, files map[string][]byte) {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, data := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(data)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func writeGz(t *testing.T, path string, data []byte) {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write(data)
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		name string
		want Format
	}{
		{"a.zip", FormatZip},
		{"a.tar", FormatTar},
		{"a.tar.gz", FormatTarGz},
		{"a.tgz", FormatTarGz},
		{"a.tar.bz2", FormatTarBz2},
		{"a.tbz2", FormatTarBz2},
		{"a.tar.xz", FormatTarXz},
		{"a.txz", FormatTarXz},
		{"a.gz", FormatGzip},
		{"a.bz2", FormatBzip2},
		{"a.xz", FormatXz},
		{"a.rar", FormatRar},
		{"a.7z", Format7z},
		{"A.ZIP", FormatZip},
		{"a.txt", FormatUnknown},
		{"archive", FormatUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DetectFormat(tc.name))
		})
	}
}

func TestExtractZip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bundle.zip")
	writeZip(t, path, map[string][]byte{
		"readme.txt":       []byte("hello"),
		"nested/inner.txt": []byte("deep"),
	})

	dest := filepath.Join(dir, "out")
	files, err := newTestManager(t).Extract(path, dest)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"readme.txt", filepath.Join("nested", "inner.txt")}, files)

	data, err := os.ReadFile(filepath.Join(dest, "nested", "inner.txt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("deep"), data)
}

func TestExtractZipBlocksTraversal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "evil.zip")
	writeZip(t, path, map[string][]byte{
		"../../escape.txt": []byte("out"),
		"/abs/path.txt":    []byte("abs"),
	})

	dest := filepath.Join(dir, "out")
	files, err := newTestManager(t).Extract(path, dest)
	require.NoError(t, err)

	for _, rel := range files {
		assert.True(t, filepath.IsLocal(rel), "member escaped: %s", rel)
		_, err := os.Stat(filepath.Join(dest, rel))
		assert.NoError(t, err)
	}
	_, err = os.Stat(filepath.Join(dir, "escape.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestExtractTarGz(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bundle.tar.gz")
	writeTarGz(t, path, map[string][]byte{"doc.md": []byte("# doc")})

	dest := filepath.Join(dir, "out")
	files, err := newTestManager(t).Extract(path, dest)
	require.NoError(t, err)
	require.Equal(t, []string{"doc.md"}, files)

	data, err := os.ReadFile(filepath.Join(dest, "doc.md"))
	require.NoError(t, err)
	assert.Equal(t, []byte("# doc"), data)
}

func TestExtractSingleGzipNaming(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt.gz")
	writeGz(t, path, []byte("plain notes"))

	dest := filepath.Join(dir, "out")
	files, err := newTestManager(t).Extract(path, dest)
	require.NoError(t, err)
	require.Equal(t, []string{"notes.txt"}, files)

	data, err := os.ReadFile(filepath.Join(dest, "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("plain notes"), data)
}

func TestExtractRarSkipped(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "locked.rar")
	require.NoError(t, os.WriteFile(path, []byte("Rar!"), 0o644))

	files, err := newTestManager(t).Extract(path, filepath.Join(dir, "out"))
	assert.NoError(t, err)
	assert.Empty(t, files)
}

func TestExtractUnknownFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := newTestManager(t).Extract(path, filepath.Join(dir, "out"))
	assert.Error(t, err)
}

func TestExtractRecursivelyNestedArchives(t *testing.T) {
	dir := t.TempDir()

	inner := zipBytes(t, map[string][]byte{"secret.txt": []byte("innermost")})
	middle := zipBytes(t, map[string][]byte{"inner.zip": inner})
	writeZip(t, filepath.Join(dir, "outer.zip"), map[string][]byte{"middle.zip": middle})

	record := newTestManager(t).ExtractRecursively(dir)

	assert.Equal(t, 3, record.TotalExtracted)
	assert.Len(t, record.Rounds, 3)
	assert.Empty(t, record.Errors)

	var secret string
	filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err == nil && info.Name() == "secret.txt" {
			secret = path
		}
		return nil
	})
	require.NotEmpty(t, secret)
	data, err := os.ReadFile(secret)
	require.NoError(t, err)
	assert.Equal(t, []byte("innermost"), data)
}

// nestedZip builds depth zip layers around a single text file.
func nestedZip(t *testing.T, depth int) []byte {
	t.Helper()
	payload := zipBytes(t, map[string][]byte{"kernel.txt": []byte("core")})
	for i := 1; i < depth; i++ {
		payload = zipBytes(t, map[string][]byte{fmt.Sprintf("layer%d.zip", i): payload})
	}
	return payload
}

func TestExtractRecursivelyRoundLimit(t *testing.T) {
	// A chain that finishes exactly on the last round is complete and must
	// not be reported as truncated.
	exact := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(exact, "outer.zip"), nestedZip(t, maxRounds), 0o644))

	record := newTestManager(t).ExtractRecursively(exact)
	assert.Len(t, record.Rounds, maxRounds)
	assert.Empty(t, record.Errors)

	// One layer deeper leaves an unprocessed archive behind.
	over := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(over, "outer.zip"), nestedZip(t, maxRounds+1), 0o644))

	record = newTestManager(t).ExtractRecursively(over)
	require.Len(t, record.Errors, 1)
	assert.Contains(t, record.Errors[0], "round limit")
}

func TestExtractRecursivelyProcessesEachArchiveOnce(t *testing.T) {
	dir := t.TempDir()
	writeZip(t, filepath.Join(dir, "a.zip"), map[string][]byte{"a.txt": []byte("a")})

	m := newTestManager(t)
	first := m.ExtractRecursively(dir)
	assert.Equal(t, 1, first.TotalExtracted)

	// The original archive is already in the processed set.
	second := m.ExtractRecursively(dir)
	assert.Zero(t, second.TotalExtracted)
	assert.Empty(t, second.Rounds)
}

func TestExtractRecursivelyRecordsCorruptArchives(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.zip"), []byte("not a zip"), 0o644))
	writeZip(t, filepath.Join(dir, "good.zip"), map[string][]byte{"ok.txt": []byte("fine")})

	record := newTestManager(t).ExtractRecursively(dir)

	assert.Equal(t, 1, record.TotalExtracted)
	require.Len(t, record.Errors, 1)
	assert.Contains(t, record.Errors[0], "broken.zip")
}

func TestProcessDirectoryWritesSidecar(t *testing.T) {
	dir := t.TempDir()
	writeZip(t, filepath.Join(dir, "bundle.zip"), map[string][]byte{"file.txt": []byte("data")})

	m := newTestManager(t)
	record, err := m.ProcessDirectory(dir, "555")
	require.NoError(t, err)
	assert.Equal(t, 1, record.TotalExtracted)

	raw, err := os.ReadFile(filepath.Join(dir, ExtractionLogFile))
	require.NoError(t, err)

	var log model.ExtractionLog
	require.NoError(t, json.Unmarshal(raw, &log))
	assert.Equal(t, "555", log.EmailUID)
	assert.Equal(t, 1, log.Record.TotalExtracted)
	require.Len(t, log.Record.Rounds, 1)
	assert.Equal(t, 1, log.Record.Rounds[0].ArchivesFound)
}

func TestProcessDirectoryResetsProcessedSet(t *testing.T) {
	dir := t.TempDir()
	writeZip(t, filepath.Join(dir, "bundle.zip"), map[string][]byte{"file.txt": []byte("data")})

	m := newTestManager(t)
	_, err := m.ProcessDirectory(dir, "1")
	require.NoError(t, err)

	// A fresh run re-examines everything; the member name collides with the
	// first run's output and gets disambiguated.
	record, err := m.ProcessDirectory(dir, "1")
	require.NoError(t, err)
	assert.Equal(t, 1, record.TotalExtracted)

	_, err = os.Stat(filepath.Join(dir, "file_1.txt"))
	assert.NoError(t, err)
}
