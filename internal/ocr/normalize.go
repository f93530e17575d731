package ocr

import (
	"regexp"
	"strings"

	"golang.org/x/text/width"
)

var (
	reCRLF       = regexp.MustCompile(`\r\n?`)
	reTabs       = regexp.MustCompile(`\t+`)
	reMultiSpace = regexp.MustCompile(`[ \x{00A0}\x{3000}]{2,}`)
	reMultiBlank = regexp.MustCompile(`\n{3,}`)
	reBoxNoise   = regexp.MustCompile(`[│┃┆┇┊┋]+`)
	reDecComma   = regexp.MustCompile(`(\d)\s*[，,]\s*(\d)`)
)

// Normalize folds full-width ASCII (digits, letters, colons) to half width,
// collapses whitespace runs and strips box-drawing noise. Han characters are
// left untouched.
func Normalize(s string) string {
	s = reCRLF.ReplaceAllString(s, "\n")
	s = width.Narrow.String(s)
	s = reBoxNoise.ReplaceAllString(s, " ")
	s = reTabs.ReplaceAllString(s, " ")
	s = reMultiSpace.ReplaceAllString(s, " ")
	s = reMultiBlank.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// NormalizeDecimalComma tightens "43 , 25" to "43,25" so comma-decimal values
// survive tokenization. Used for instruments that print European decimals.
func NormalizeDecimalComma(s string) string {
	return reDecComma.ReplaceAllString(s, "$1,$2")
}
