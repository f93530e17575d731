package archive

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodePathLegacyFormat(t *testing.T) {
	p := "/home/nsyy/pdf-report-catalog/20250328/roomA/refraction-four-map_20250328104645.pdf"
	assert.Equal(t, "&home&nsyy&pdf-report-catalog&20250328&roomA&refraction-four-map_20250328104645.pdf", EncodePath(p))
	assert.Equal(t, p, DecodePath(EncodePath(p)))
}

func TestPathTokenRoundTrip(t *testing.T) {
	paths := []string{
		"",
		"/",
		"relative/dir/file.pdf",
		"/srv/samba/shared/角膜内皮细胞报告_张三.pdf",
		"/a&b/c.pdf",
		"/a%26b/c.pdf",
		"/100%/x%25y&&z.pdf",
		"/trailing%",
		"/odd%2",
		"&leading",
		"/bad\xffutf8/file.pdf",
	}
	for _, p := range paths {
		assert.Equal(t, p, DecodePath(EncodePath(p)), "path %q", p)
	}
}

func TestDecodeLegacyTokens(t *testing.T) {
	assert.Equal(t, "/home/nsyy/x.pdf", DecodePath("&home&nsyy&x.pdf"))
	assert.Equal(t, "/100%/x", DecodePath("&100%&x"))
}
