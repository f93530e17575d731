package stability

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/nsyy/eye-pacs/internal/core/runner"
)

// NoLocks is used on hosts without a lock-holder probe.
type NoLocks struct{}

func (NoLocks) IsLocked(context.Context, string) bool { return false }

// LsofChecker asks lsof whether any process has the file open. lsof exits
// non-zero when nothing holds the file; a missing binary counts as not locked.
type LsofChecker struct {
	Bin    string
	Runner runner.Runner
	Logger *slog.Logger
}

func NewLsofChecker(bin string, r runner.Runner, logger *slog.Logger) *LsofChecker {
	if bin == "" {
		bin = "lsof"
	}
	if r == nil {
		r = runner.Exec{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LsofChecker{Bin: bin, Runner: r, Logger: logger}
}

func (c *LsofChecker) IsLocked(ctx context.Context, path string) bool {
	out, _, err := c.Runner.Run(ctx, c.Bin, c.Logger, path)
	if err != nil {
		return false
	}
	return len(bytes.TrimSpace(out)) > 0
}
