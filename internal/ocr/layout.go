package ocr

import (
	"math"
	"sort"
)

// DefaultRowThreshold groups fragments whose vertical centers are within 10px.
const DefaultRowThreshold = 10.0

// MergeLevel selects how adjacent fragments are combined.
type MergeLevel int

const (
	MergeNone      MergeLevel = 0 // keep engine fragments
	MergeLine      MergeLevel = 1 // join same-line neighbours with a space
	MergeParagraph MergeLevel = 2 // join with a newline
)

// SortReadingOrder orders fragments into rows (top to bottom) and each row
// left to right. A row starts at the first fragment whose center is more than
// threshold away from the center of the row's first fragment.
func SortReadingOrder(frags []Fragment, threshold float64) []Fragment {
	if len(frags) == 0 {
		return nil
	}
	sorted := append([]Fragment(nil), frags...)
	sort.SliceStable(sorted, func(i, j int) bool {
		yi, yj := sorted[i].Position.CenterY(), sorted[j].Position.CenterY()
		if yi != yj {
			return yi < yj
		}
		return sorted[i].Position[0].X < sorted[j].Position[0].X
	})

	var rows [][]Fragment
	var rowY float64
	for i, f := range sorted {
		y := f.Position.CenterY()
		if i == 0 || math.Abs(y-rowY) > threshold {
			rows = append(rows, nil)
			rowY = y
		}
		rows[len(rows)-1] = append(rows[len(rows)-1], f)
	}

	out := make([]Fragment, 0, len(sorted))
	for _, row := range rows {
		sort.SliceStable(row, func(i, j int) bool {
			return row[i].Position[0].X < row[j].Position[0].X
		})
		out = append(out, row...)
	}
	return out
}

// Merge joins geometrically adjacent fragments. Two fragments merge when their
// vertical overlap exceeds 30% of the shorter height and the horizontal gap is
// below 2.5 times the width of the fragment being extended. The merged
// confidence is the minimum of its parts.
func Merge(frags []Fragment, level MergeLevel) []Fragment {
	if level == MergeNone || len(frags) <= 1 {
		return frags
	}
	sep := " "
	if level == MergeParagraph {
		sep = "\n"
	}

	sorted := append([]Fragment(nil), frags...)
	sort.SliceStable(sorted, func(i, j int) bool {
		yi, yj := sorted[i].Position.CenterY(), sorted[j].Position.CenterY()
		if yi != yj {
			return yi < yj
		}
		return sorted[i].Position[0].X < sorted[j].Position[0].X
	})

	var merged []Fragment
	cur := sorted[0]
	for _, next := range sorted[1:] {
		c, n := cur.Position, next.Position
		overlap := min(c.MaxY(), n.MaxY()) - max(c.MinY(), n.MinY())
		minHeight := min(c.MaxY()-c.MinY(), n.MaxY()-n.MinY())
		gap := n[0].X - c[1].X
		width := c[1].X - c[0].X

		if float64(overlap) > float64(minHeight)*0.3 && float64(gap) < float64(width)*2.5 {
			cur = Fragment{
				Text:       cur.Text + sep + next.Text,
				Confidence: math.Min(cur.Confidence, next.Confidence),
				Position: Quad{
					{min(c[0].X, n[0].X), min(c[0].Y, n[0].Y)},
					{max(c[1].X, n[1].X), min(c[1].Y, n[1].Y)},
					{max(c[2].X, n[2].X), max(c[2].Y, n[2].Y)},
					{min(c[3].X, n[3].X), max(c[3].Y, n[3].Y)},
				},
			}
			continue
		}
		merged = append(merged, cur)
		cur = next
	}
	return append(merged, cur)
}

// Texts returns the fragment texts in order.
func Texts(frags []Fragment) []string {
	out := make([]string, 0, len(frags))
	for _, f := range frags {
		out = append(out, f.Text)
	}
	return out
}
