package archive

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsyy/eye-pacs/constants"
	"github.com/nsyy/eye-pacs/internal/classify"
)

var fixed = time.Date(2025, 3, 28, 10, 46, 45, 0, time.Local)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestArchiveMovesIntoDatedTree(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(src, "roomA", "4.pdf"), "%PDF")

	c := classify.New(classify.WithClock(func() time.Time { return fixed })).Classify("roomA/4.pdf")
	m := NewMover(dst, nil, WithClock(func() time.Time { return fixed }))

	row, err := m.Archive(src, filepath.Join("roomA", "4.pdf"), c)
	require.NoError(t, err)

	want := filepath.Join(dst, "20250328", "roomA", "refraction-four-map_20250328104645.pdf")
	assert.FileExists(t, want)
	assert.NoFileExists(t, filepath.Join(src, "roomA", "4.pdf"))

	assert.Equal(t, "refraction-four-map_20250328104645.pdf", row.Name)
	assert.Equal(t, want, DecodePath(row.Addr))
	assert.Equal(t, constants.MachineAnteriorSegment, row.Machine)
	assert.Equal(t, fixed, row.Time)
	assert.Nil(t, row.Value)
}

func TestArchiveRetryProducesOneRow(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	writeFile(t, filepath.Join(src, "8.pdf"), "%PDF")
	m := NewMover(dst, nil, WithClock(func() time.Time { return fixed }))
	c := classify.New(classify.WithClock(func() time.Time { return fixed })).Classify("8.pdf")

	orig := link
	link = func(string, string) error { return syscall.EACCES }
	_, err := m.Archive(src, "8.pdf", c)
	link = orig
	require.Error(t, err)
	assert.FileExists(t, filepath.Join(src, "8.pdf"))

	var rows int
	if _, err := m.Archive(src, "8.pdf", c); err == nil {
		rows++
	}
	if _, err := m.Archive(src, "8.pdf", c); err == nil {
		rows++
	}
	assert.Equal(t, 1, rows)
	assert.NoFileExists(t, filepath.Join(src, "8.pdf"))
	assert.FileExists(t, filepath.Join(dst, "20250328", "endothelial-cell-report_20250328104645.pdf"))
}

func TestArchiveDoesNotOverwrite(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	m := NewMover(dst, nil, WithClock(func() time.Time { return fixed }))
	c := classify.Result{Basename: "scan.pdf", Machine: constants.MachineUnregistered}

	writeFile(t, filepath.Join(src, "scan.pdf"), "one")
	first, err := m.Archive(src, "scan.pdf", c)
	require.NoError(t, err)
	writeFile(t, filepath.Join(src, "scan.pdf"), "two")
	second, err := m.Archive(src, "scan.pdf", c)
	require.NoError(t, err)

	assert.Equal(t, "scan.pdf", first.Name)
	assert.Equal(t, "scan-1.pdf", second.Name)
	b, err := os.ReadFile(DecodePath(first.Addr))
	require.NoError(t, err)
	assert.Equal(t, "one", string(b))
}

func TestMoveFileCrossDevice(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.pdf")
	dst := filepath.Join(dir, "out", "b.pdf")
	writeFile(t, src, "payload")
	require.NoError(t, os.MkdirAll(filepath.Dir(dst), 0o755))

	orig := link
	var linked []string
	link = func(o, n string) error {
		linked = append(linked, o)
		if o == src {
			return &os.LinkError{Op: "link", Old: o, New: n, Err: syscall.EXDEV}
		}
		return orig(o, n)
	}
	defer func() { link = orig }()

	require.NoError(t, MoveFile(src, dst))
	require.Len(t, linked, 2)
	assert.Equal(t, src, linked[0])
	assert.Contains(t, filepath.Base(linked[1]), ".partial-")
	assert.NoFileExists(t, src)
	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(b))

	entries, err := os.ReadDir(filepath.Dir(dst))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no partial file left behind")
}

func TestMoveFileOtherErrorLeavesSource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.pdf")
	writeFile(t, src, "x")

	err := MoveFile(src, filepath.Join(dir, "missing-dir", "b.pdf"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, syscall.EXDEV))
	assert.FileExists(t, src)
}

func TestMoveFileKeepsExistingDestination(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.pdf")
	dst := filepath.Join(dir, "b.pdf")
	writeFile(t, src, "new")
	writeFile(t, dst, "old")

	err := MoveFile(src, dst)
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrExist))
	assert.FileExists(t, src)
	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "old", string(b))
}

func TestMoveFileWithoutHardLinks(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.pdf")
	dst := filepath.Join(dir, "b.pdf")
	writeFile(t, src, "x")

	orig := link
	link = func(o, n string) error { return &os.LinkError{Op: "link", Old: o, New: n, Err: syscall.EPERM} }
	defer func() { link = orig }()

	require.NoError(t, MoveFile(src, dst))
	assert.NoFileExists(t, src)
	assert.FileExists(t, dst)

	writeFile(t, src, "y")
	assert.True(t, errors.Is(MoveFile(src, dst), os.ErrExist))
	assert.FileExists(t, src)
}

func TestArchiveNameTakenDuringMove(t *testing.T) {
	src, dst := t.TempDir(), t.TempDir()
	m := NewMover(dst, nil, WithClock(func() time.Time { return fixed }))
	writeFile(t, filepath.Join(src, "scan.pdf"), "ours")

	// another writer claims the free name between the check and the link
	orig := link
	claimed := false
	link = func(o, n string) error {
		if !claimed {
			claimed = true
			writeFile(t, n, "theirs")
		}
		return orig(o, n)
	}
	defer func() { link = orig }()

	row, err := m.Archive(src, "scan.pdf", classify.Result{Basename: "scan.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "scan-1.pdf", row.Name)
	assert.NoFileExists(t, filepath.Join(src, "scan.pdf"))

	b, err := os.ReadFile(filepath.Join(dst, "20250328", "scan.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "theirs", string(b))
	b, err = os.ReadFile(DecodePath(row.Addr))
	require.NoError(t, err)
	assert.Equal(t, "ours", string(b))
}

func TestArchiveMissingSource(t *testing.T) {
	m := NewMover(t.TempDir(), nil)
	_, err := m.Archive(t.TempDir(), "gone.pdf", classify.Result{Basename: "gone.pdf"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestSaveUpload(t *testing.T) {
	dst := t.TempDir()
	m := NewMover(dst, nil, WithClock(func() time.Time { return fixed }))

	row, err := m.Save("../../scan.pdf", strings.NewReader("%PDF-1.4"))
	require.NoError(t, err)

	want := filepath.Join(dst, "20250328", "scan.pdf")
	assert.Equal(t, want, DecodePath(row.Addr))
	assert.Equal(t, constants.MachineManualUpload, row.Machine)
	body, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(body))

	again, err := m.Save("scan.pdf", strings.NewReader("second"))
	require.NoError(t, err)
	assert.Equal(t, "scan-1.pdf", again.Name)
}
