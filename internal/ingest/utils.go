package ingest

import (
	"path/filepath"
	"strings"
)

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".")
}

// Eligible reports whether a dropped file is picked up: not hidden and named
// "...pdf". The suffix test is case-sensitive, matching what the devices write.
func Eligible(path string) bool {
	base := filepath.Base(path)
	return !IsHidden(base) && strings.HasSuffix(base, "pdf")
}
