package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// link is swapped in tests to simulate a cross-device archive mount or a
// destination that appears after the free-name check.
var link = os.Link

// MoveFile moves src to dst and never replaces an existing dst: it links src
// at dst, which fails with fs.ErrExist when dst is taken, then removes src.
// When the two paths are on different filesystems it copies into a hidden
// temp file next to dst, links that into place and only then removes src, so
// dst never appears half written.
func MoveFile(src, dst string) error {
	err := link(src, dst)
	switch {
	case err == nil:
		return removeSource(src, dst)
	case errors.Is(err, syscall.EXDEV):
		return copyThenRemove(src, dst)
	case noHardLinks(err):
		return renameNoReplace(src, dst)
	default:
		return err
	}
}

// noHardLinks reports a filesystem that refuses hard links (vfat, some SMB
// mounts).
func noHardLinks(err error) bool {
	return errors.Is(err, errors.ErrUnsupported) || errors.Is(err, syscall.EPERM)
}

// renameNoReplace is the fallback for filesystems without hard links. The
// existence check and the rename are not atomic there.
func renameNoReplace(src, dst string) error {
	if _, err := os.Lstat(dst); err == nil {
		return &os.LinkError{Op: "rename", Old: src, New: dst, Err: fs.ErrExist}
	}
	return os.Rename(src, dst)
}

func removeSource(src, dst string) error {
	if err := os.Remove(src); err != nil {
		// keep the source as the single copy
		_ = os.Remove(dst)
		return fmt.Errorf("remove source after move: %w", err)
	}
	return nil
}

func copyThenRemove(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".partial-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	_ = os.Chmod(tmpPath, fi.Mode().Perm())

	err = link(tmpPath, dst)
	if noHardLinks(err) {
		err = renameNoReplace(tmpPath, dst)
	}
	if err != nil {
		return err
	}
	return removeSource(src, dst)
}

// maxPlaceAttempts bounds retries when free names keep being taken.
const maxPlaceAttempts = 10

// moveToFreeName moves src to want, or to the next free numbered variant when
// something else claims the name first. It returns the path used.
func moveToFreeName(src, want string) (string, error) {
	for i := 0; i < maxPlaceAttempts; i++ {
		dst := uniquePath(want)
		err := MoveFile(src, dst)
		if err == nil {
			return dst, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", err
		}
	}
	return "", fmt.Errorf("no free name for %s after %d attempts", want, maxPlaceAttempts)
}

// uniquePath returns path, or path with a numeric suffix before the extension
// when something already exists there.
func uniquePath(path string) string {
	if _, err := os.Lstat(path); errors.Is(err, os.ErrNotExist) {
		return path
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s-%d%s", base, i, ext)
		if _, err := os.Lstat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate
		}
	}
}
