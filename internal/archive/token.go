package archive

import (
	"os"
	"strings"
)

// Sentinel replaces path separators in stored path tokens.
const Sentinel = '&'

// EncodePath turns a filesystem path into a path token. Separators become '&'.
// A literal '&' or '%' in the path is percent-escaped so DecodePath can
// restore it; paths without those characters encode as plain substitution.
func EncodePath(p string) string {
	var b strings.Builder
	b.Grow(len(p))
	for i := 0; i < len(p); i++ {
		switch c := p[i]; {
		case c == '%':
			b.WriteString("%25")
		case c == Sentinel:
			b.WriteString("%26")
		case os.IsPathSeparator(c):
			b.WriteByte(Sentinel)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// DecodePath reverses EncodePath. It must run before any filesystem access.
func DecodePath(token string) string {
	var b strings.Builder
	b.Grow(len(token))
	for i := 0; i < len(token); i++ {
		c := token[i]
		switch {
		case c == Sentinel:
			b.WriteByte(os.PathSeparator)
		case c == '%' && strings.HasPrefix(token[i+1:], "26"):
			b.WriteByte(Sentinel)
			i += 2
		case c == '%' && strings.HasPrefix(token[i+1:], "25"):
			b.WriteByte('%')
			i += 2
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
