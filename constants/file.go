package constants

import (
	"path/filepath"
	"strings"
)

// AllowedExtensions holds the file extensions picked up by ingestion.
var AllowedExtensions = map[string]struct{}{
	"pdf": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsPDF reports whether name carries a .pdf extension, any case.
func IsPDF(name string) bool {
	return NormalizeExt(filepath.Ext(name)) == "pdf"
}

// DateDirLayout names the per-day archive partition.
const DateDirLayout = "20060102"

// StampLayout is appended to classified basenames.
const StampLayout = "20060102150405"

// ReportTimeLayout is how report_time is stored in the catalog.
const ReportTimeLayout = "2006-01-02 15:04:05"
