package extract

import (
	"regexp"
	"strings"

	"github.com/nsyy/eye-pacs/constants"
	"github.com/nsyy/eye-pacs/internal/classify"
	"github.com/nsyy/eye-pacs/internal/ocr"
)

// Template is a region list plus the parser applied to the recognized text.
// DPI is the render resolution the regions were measured at.
type Template struct {
	Name    string
	DPI     int
	Regions []ocr.Region
	Parse   func(text string) Fields
}

// TemplateDPI is the resolution every built-in template is authored at.
const TemplateDPI = 300

const (
	sep  = `[：:\s]*`
	han  = `[\x{4e00}-\x{9fa5}]`
	num  = `([\d\.]+)`
	eyeL = "左眼"
	eyeR = "右眼"
)

var (
	reEndoName = regexp.MustCompile(`姓名` + sep + `(` + han + `{2,4})`)
	reEndoCD   = regexp.MustCompile(`(?i)CD` + sep + `(\d+)`)

	reRefSurname = regexp.MustCompile(`姓` + sep + `([A-Za-z]+)`)
	reRefGiven   = regexp.MustCompile(`名` + sep + `([A-Za-z]+)`)
	reRefEye     = regexp.MustCompile(`眼睛` + sep + `(` + eyeL + `|` + eyeR + `)`)
	reRefK1      = regexp.MustCompile(`K1` + sep + num + `\s*D?`)
	reRefK2      = regexp.MustCompile(`K2` + sep + num + `\s*D?`)
	reRefRm      = regexp.MustCompile(`Rm` + sep + num + `\s*毫?米?`)
	reRefThin    = regexp.MustCompile(`最薄点位置` + sep + `(\d+)\s*微?米?`)

	reTopoName = regexp.MustCompile(`^\s*(` + han + `{2,4})`)
	reTopoFlat = regexp.MustCompile(`平K\s*` + num)
	reTopoStep = regexp.MustCompile(`陡K\s*` + num)
	reTopoE    = regexp.MustCompile(`平面e\s*` + num)

	reM7Curv     = regexp.MustCompile(`(\d+,\d+)\s+D`)
	reM7Diopter  = regexp.MustCompile(`(-?\d+,\d+\s+D\s+-?\d+,\d+\s+Dx\s*\d+)`)
	reM7Light    = regexp.MustCompile(`(\d+,\d+\s+mm)`)
	reM7CutDepth = regexp.MustCompile(`(\d+\s+um)`)
	reM7CutTime  = regexp.MustCompile(`(\d+\s+s)\b`)
)

var (
	endothelialRegions = []ocr.Region{
		{Left: 330, Top: 430, Right: 2200, Bottom: 550},
		{Left: 1250, Top: 1080, Right: 1650, Bottom: 1280},
		{Left: 1250, Top: 2380, Right: 1650, Bottom: 2580},
	}
	refractionRegions = []ocr.Region{
		{Left: 50, Top: 1150, Right: 700, Bottom: 1450},
		{Left: 60, Top: 1450, Right: 700, Bottom: 1710},
		{Left: 60, Top: 2250, Right: 700, Bottom: 2500},
	}
	topographyRegions = []ocr.Region{
		{Left: 50, Top: 150, Right: 1100, Bottom: 300},
		{Left: 50, Top: 1600, Right: 1100, Bottom: 2000},
		{Left: 1750, Top: 1600, Right: 2800, Bottom: 2000},
	}
	master700Regions = []ocr.Region{
		{Left: 300, Top: 940, Right: 1200, Bottom: 1100},
		{Left: 400, Top: 1350, Right: 1600, Bottom: 1450},
		{Left: 300, Top: 1555, Right: 1200, Bottom: 1625},
		{Left: 1425, Top: 700, Right: 2380, Bottom: 780},
		{Left: 1425, Top: 940, Right: 2380, Bottom: 1020},
	}
)

var master700Keys = []string{"corneal_curvate", "diopter", "light_area", "cut_depth", "cut_time"}

// Select picks the template for an archived report basename. The second
// result is false for report types that are not extracted.
func Select(reportName string) (Template, bool) {
	switch classify.TypeForArchivedName(reportName) {
	case constants.TypeEndothelial:
		return Template{Name: "endothelial", DPI: TemplateDPI, Regions: endothelialRegions, Parse: ParseEndothelial}, true
	case constants.TypeRefractionFour:
		return Template{Name: "refraction-four", DPI: TemplateDPI, Regions: refractionRegions, Parse: ParseRefractionFour}, true
	case constants.TypeTopography, constants.TypeTopography1:
		return Template{Name: "topography", DPI: TemplateDPI, Regions: topographyRegions, Parse: ParseTopography}, true
	case constants.TypeMaster700:
		eye := master700Eye(reportName)
		if eye == "" {
			return Template{}, false
		}
		return Template{
			Name:    "master700-" + eye,
			DPI:     TemplateDPI,
			Regions: master700Regions,
			Parse:   func(text string) Fields { return ParseMaster700(text, eye) },
		}, true
	default:
		return Template{}, false
	}
}

func master700Eye(name string) string {
	switch {
	case strings.Contains(name, "OD"):
		return "od"
	case strings.Contains(name, "OS"):
		return "os"
	default:
		return ""
	}
}

// first returns the first capture of re in text.
func first(re *regexp.Regexp, text string) (string, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// captures returns the first capture of every match of re in text.
func captures(re *regexp.Regexp, text string) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		out = append(out, m[1])
	}
	return out
}

func (f Fields) setFirst(key string, re *regexp.Regexp, text string) {
	if v, ok := first(re, text); ok {
		f[key] = v
	}
}

// setPair maps the first match to r_<key> and the second to l_<key>. Once
// the right eye is read, a missing left eye is recorded as "".
func (f Fields) setPair(key string, re *regexp.Regexp, text string) {
	vals := captures(re, text)
	if len(vals) == 0 {
		return
	}
	f["r_"+key], f["l_"+key] = vals[0], ""
	if len(vals) > 1 {
		f["l_"+key] = vals[1]
	}
}

// ParseEndothelial reads name and cell density. A single density reading
// applies to both eyes.
func ParseEndothelial(text string) Fields {
	f := Fields{}
	f.setFirst(NameKey, reEndoName, text)
	cds := captures(reEndoCD, text)
	switch {
	case len(cds) >= 2:
		f["r_cd"], f["l_cd"] = cds[0], cds[1]
	case len(cds) == 1:
		f["r_cd"], f["l_cd"] = cds[0], cds[0]
	}
	return f
}

// ParseRefractionFour reads the Latin name, the examined eye and the
// keratometry block, prefixing measurements with l_ or r_.
func ParseRefractionFour(text string) Fields {
	f := Fields{}
	surname, _ := first(reRefSurname, text)
	given, _ := first(reRefGiven, text)
	if name := surname + given; name != "" {
		f[NameKey] = name
	}

	p := "r_"
	if eye, ok := first(reRefEye, text); ok {
		f["eye"] = eye
		if eye == eyeL {
			p = "l_"
		}
	}
	f.setFirst(p+"k1", reRefK1, text)
	f.setFirst(p+"k2", reRefK2, text)
	f.setFirst(p+"rm", reRefRm, text)
	f.setFirst(p+"thinnest_point", reRefThin, text)
	return f
}

// ParseTopography reads a leading Han name and per-eye flat K, steep K and
// flat-plane eccentricity.
func ParseTopography(text string) Fields {
	f := Fields{}
	f.setFirst(NameKey, reTopoName, text)
	f.setPair("pk1", reTopoFlat, text)
	f.setPair("xk2", reTopoStep, text)
	f.setPair("pe", reTopoE, text)
	return f
}

// ParseMaster700 reads a biometer surgery report for one eye ("od" or "os").
// Values keep the instrument's comma decimals and units. Every key is
// present; unmatched values are "".
func ParseMaster700(text, eye string) Fields {
	text = ocr.NormalizeDecimalComma(text)
	f := Fields{NameKey: ""}
	for _, k := range master700Keys {
		f[k+"_"+eye] = ""
	}
	if curv := captures(reM7Curv, text); len(curv) > 0 {
		f["corneal_curvate_"+eye] = strings.Join(curv[:min(2, len(curv))], ",")
	}
	f.setFirst("diopter_"+eye, reM7Diopter, text)
	f.setFirst("light_area_"+eye, reM7Light, text)
	f.setFirst("cut_depth_"+eye, reM7CutDepth, text)
	f.setFirst("cut_time_"+eye, reM7CutTime, text)
	return f
}
