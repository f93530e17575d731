package ocr

import (
	"image"
	"image/draw"
)

// Preprocess converts img to grayscale, sharpens it with a 3x3 kernel and
// binarizes it with an Otsu threshold.
func Preprocess(img image.Image) *image.Gray {
	return Binarize(Sharpen(Grayscale(img)))
}

// Grayscale returns a copy of img as 8-bit gray, rebased to (0,0).
func Grayscale(img image.Image) *image.Gray {
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), img, b.Min, draw.Src)
	return g
}

// Sharpen applies the kernel [-1 -1 -1; -1 9 -1; -1 -1 -1]. Edge pixels use
// replicated borders.
func Sharpen(src *image.Gray) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(b)
	w, h := b.Dx(), b.Dy()
	at := func(x, y int) int {
		x = max(0, min(w-1, x))
		y = max(0, min(h-1, y))
		return int(src.Pix[y*src.Stride+x])
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum := 9 * at(x, y)
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if dx != 0 || dy != 0 {
						sum -= at(x+dx, y+dy)
					}
				}
			}
			dst.Pix[y*dst.Stride+x] = uint8(max(0, min(255, sum)))
		}
	}
	return dst
}

// OtsuThreshold picks the threshold maximizing between-class variance.
func OtsuThreshold(g *image.Gray) uint8 {
	var hist [256]int
	b := g.Bounds()
	for y := 0; y < b.Dy(); y++ {
		row := g.Pix[y*g.Stride : y*g.Stride+b.Dx()]
		for _, p := range row {
			hist[p]++
		}
	}
	total := b.Dx() * b.Dy()
	if total == 0 {
		return 0
	}

	var sumAll float64
	for i, n := range hist {
		sumAll += float64(i * n)
	}

	var (
		sumB   float64
		wB     int
		best   float64
		thresh int
	)
	for t := 0; t < 256; t++ {
		wB += hist[t]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t * hist[t])
		mB := sumB / float64(wB)
		mF := (sumAll - sumB) / float64(wF)
		between := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			thresh = t
		}
	}
	return uint8(thresh)
}

// Binarize maps pixels above the Otsu threshold to white and the rest to black.
func Binarize(g *image.Gray) *image.Gray {
	t := OtsuThreshold(g)
	out := image.NewGray(g.Bounds())
	for i, p := range g.Pix {
		if p > t {
			out.Pix[i] = 255
		}
	}
	return out
}
