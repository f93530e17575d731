package ocr

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frag(text string, x, y, w, h int) Fragment {
	return Fragment{Text: text, Confidence: 0.9, Position: QuadFromRect(image.Rect(x, y-h/2, x+w, y+h/2))}
}

func TestSortReadingOrder_GroupsRowsWithinThreshold(t *testing.T) {
	in := []Fragment{
		frag("third", 0, 300, 20, 10),
		frag("second", 50, 100, 20, 10),
		frag("first", 10, 102, 20, 10),
	}
	out := SortReadingOrder(in, DefaultRowThreshold)
	assert.Equal(t, []string{"first", "second", "third"}, Texts(out))
}

func TestSortReadingOrder_RowAnchoredOnFirstFragment(t *testing.T) {
	// 100 -> 108 -> 116: the third is 16px from the row's first fragment.
	in := []Fragment{
		frag("c", 0, 116, 10, 6),
		frag("b", 30, 108, 10, 6),
		frag("a", 60, 100, 10, 6),
	}
	out := SortReadingOrder(in, DefaultRowThreshold)
	assert.Equal(t, []string{"b", "a", "c"}, Texts(out))
}

func TestSortReadingOrder_Empty(t *testing.T) {
	assert.Empty(t, SortReadingOrder(nil, DefaultRowThreshold))
}

func TestMerge_JoinsAdjacentOnSameLine(t *testing.T) {
	a := frag("CD", 100, 50, 40, 20)
	a.Confidence = 0.8
	b := frag("2650", 150, 50, 60, 20)
	b.Confidence = 0.95

	out := Merge([]Fragment{b, a}, MergeLine)
	require.Len(t, out, 1)
	assert.Equal(t, "CD 2650", out[0].Text)
	assert.InDelta(t, 0.8, out[0].Confidence, 1e-9)
	assert.Equal(t, Point{100, 40}, out[0].Position[0])
	assert.Equal(t, Point{210, 60}, out[0].Position[2])
}

func TestMerge_ParagraphSeparator(t *testing.T) {
	out := Merge([]Fragment{frag("a", 0, 50, 40, 20), frag("b", 45, 50, 40, 20)}, MergeParagraph)
	require.Len(t, out, 1)
	assert.Equal(t, "a\nb", out[0].Text)
}

func TestMerge_KeepsDistantFragments(t *testing.T) {
	far := []Fragment{frag("left", 0, 50, 10, 20), frag("right", 500, 50, 10, 20)}
	assert.Len(t, Merge(far, MergeLine), 2)

	stacked := []Fragment{frag("top", 0, 50, 100, 20), frag("bottom", 0, 200, 100, 20)}
	assert.Len(t, Merge(stacked, MergeLine), 2)
}

func TestMerge_NoneIsIdentity(t *testing.T) {
	in := []Fragment{frag("a", 0, 50, 40, 20), frag("b", 45, 50, 40, 20)}
	assert.Equal(t, in, Merge(in, MergeNone))
}
