// Package classify maps an instrument's export filename onto a report type,
// an archive basename and the machine that produced it.
package classify

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/nsyy/eye-pacs/constants"
)

// Result is the classification of one file.
type Result struct {
	ReportType constants.ReportType
	Basename   string // final file name, extension included
	Machine    string
}

// Rule is one row of the decision table. Match sees the bare file name.
type Rule struct {
	Name    string
	Match   func(filename string) bool
	Type    constants.ReportType
	Slug    string // canonical basename, stamped at classification time
	Machine string
}

// Classifier evaluates two ordered chains: primary rules, then secondary
// rules whose match overrides the primary result. A Master700 export pattern
// on the original stem overrides both.
type Classifier struct {
	primary   []Rule
	secondary []Rule
	now       func() time.Time
}

type Option func(*Classifier)

// WithClock fixes the time used for the basename stamp.
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) {
		if now != nil {
			c.now = now
		}
	}
}

func New(opts ...Option) *Classifier {
	c := &Classifier{
		primary:   PrimaryRules(),
		secondary: SecondaryRules(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Classify decides type, basename and machine for relPath. Only the base name
// takes part in matching. Every basename carries the stamp except a Master700
// export, which keeps its own timestamped stem. Only PDFs are matched against
// the rule chains.
func (c *Classifier) Classify(relPath string) Result {
	filename := filepath.Base(relPath)
	ext := filepath.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)

	stamp := c.now().Format(constants.StampLayout)
	res := Result{
		ReportType: constants.TypeUnregistered,
		Basename:   stem + "_" + stamp + ext,
		Machine:    constants.MachineUnregistered,
	}
	if constants.IsPDF(filename) {
		if r, ok := firstMatch(c.primary, filename); ok {
			res = r.result(stamp, ext)
		}
		if r, ok := firstMatch(c.secondary, filename); ok {
			res = r.result(stamp, ext)
		}
	}

	if IsMaster700Stem(stem) {
		res = Result{
			ReportType: constants.TypeMaster700,
			Basename:   constants.Master700Prefix + "_" + stem + ext,
			Machine:    constants.MachineMaster700,
		}
	}
	return res
}

// IsMaster700Stem matches names like 2025021003_OS_2025-02-10_18-26-12:
// four underscore-separated parts, the first exactly ten characters.
func IsMaster700Stem(stem string) bool {
	if !strings.Contains(stem, "_") {
		return false
	}
	parts := strings.Split(stem, "_")
	return len(parts) == 4 && len(parts[0]) == 10
}

func firstMatch(rules []Rule, filename string) (Rule, bool) {
	for _, r := range rules {
		if r.Match(filename) {
			return r, true
		}
	}
	return Rule{}, false
}

func (r Rule) result(stamp, ext string) Result {
	return Result{
		ReportType: r.Type,
		Basename:   r.Slug + "_" + stamp + ext,
		Machine:    r.Machine,
	}
}
