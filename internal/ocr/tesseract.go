package ocr

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/nsyy/eye-pacs/internal/core/runner"
)

// Tesseract recognizes images by shelling out to the tesseract CLI in TSV
// mode and grouping words into line fragments.
type Tesseract struct {
	cfg    Config
	runner runner.Runner
	logger *slog.Logger
}

func NewTesseract(cfg Config, r runner.Runner, logger *slog.Logger) *Tesseract {
	return &Tesseract{cfg: cfg.withDefaults(), runner: r, logger: logger}
}

func (t *Tesseract) Recognize(ctx context.Context, img image.Image) ([]Fragment, error) {
	dir, err := os.MkdirTemp("", "ehp-ocr-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "region.png")
	f, err := os.Create(in)
	if err != nil {
		return nil, err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return nil, fmt.Errorf("encode region: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}

	args := []string{in, "stdout", "-l", t.cfg.Language}
	if t.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.cfg.TessdataDir)
	}
	if t.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(t.cfg.PSM))
	}
	if t.cfg.OEM > 0 {
		args = append(args, "--oem", strconv.Itoa(t.cfg.OEM))
	}
	args = append(args, "tsv")

	out, _, err := t.runner.Run(ctx, t.cfg.Tesseract, t.logger, args...)
	if err != nil {
		return nil, fmt.Errorf("tesseract: %w", err)
	}

	// Offsets in the TSV are relative to the written PNG; shift back into
	// the caller's coordinate space.
	return ParseTSV(out, img.Bounds().Min), nil
}

type tsvWord struct {
	text string
	conf float64
	rect image.Rectangle
}

type lineKey struct {
	block, par, line int
}

// ParseTSV groups level-5 (word) rows into one fragment per text line.
// Adjacent Han characters are joined without a space.
func ParseTSV(data []byte, origin image.Point) []Fragment {
	lines := map[lineKey][]tsvWord{}
	var order []lineKey

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	header := true
	for sc.Scan() {
		if header {
			header = false
			continue
		}
		cols := strings.Split(sc.Text(), "\t")
		if len(cols) < 12 || cols[0] != "5" {
			continue
		}
		text := strings.TrimSpace(cols[11])
		conf, err := strconv.ParseFloat(cols[10], 64)
		if text == "" || err != nil || conf < 0 {
			continue
		}
		// block par line left top width height
		n, ok := atois(cols[2], cols[3], cols[4], cols[6], cols[7], cols[8], cols[9])
		if !ok {
			continue
		}
		key := lineKey{n[0], n[1], n[2]}
		r := image.Rect(n[3], n[4], n[3]+n[5], n[4]+n[6]).Add(origin)
		if _, seen := lines[key]; !seen {
			order = append(order, key)
		}
		lines[key] = append(lines[key], tsvWord{text: text, conf: conf / 100, rect: r})
	}

	frags := make([]Fragment, 0, len(order))
	for _, k := range order {
		words := lines[k]
		sort.SliceStable(words, func(i, j int) bool { return words[i].rect.Min.X < words[j].rect.Min.X })
		var sb strings.Builder
		rect := words[0].rect
		conf := words[0].conf
		for i, w := range words {
			if i > 0 {
				if !(endsHan(words[i-1].text) && startsHan(w.text)) {
					sb.WriteByte(' ')
				}
				rect = rect.Union(w.rect)
				conf = min(conf, w.conf)
			}
			sb.WriteString(w.text)
		}
		frags = append(frags, Fragment{
			Text:       sb.String(),
			Confidence: clamp01(conf),
			Position:   QuadFromRect(rect),
		})
	}
	return frags
}

func startsHan(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.Is(unicode.Han, r)
}

func endsHan(s string) bool {
	r, _ := utf8.DecodeLastRuneInString(s)
	return unicode.Is(unicode.Han, r)
}

func atois(ss ...string) ([]int, bool) {
	out := make([]int, len(ss))
	for i, s := range ss {
		v, err := strconv.Atoi(s)
		if err != nil {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}
