package stability

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsyy/eye-pacs/internal/core/runner"
)

type fakeInfo struct {
	size  int64
	mtime time.Time
}

func (f fakeInfo) Name() string       { return "f.pdf" }
func (f fakeInfo) Size() int64        { return f.size }
func (f fakeInfo) Mode() fs.FileMode  { return 0o644 }
func (f fakeInfo) ModTime() time.Time { return f.mtime }
func (f fakeInfo) IsDir() bool        { return false }
func (f fakeInfo) Sys() any           { return nil }

// scripted returns the given infos in order, repeating the last one.
func scripted(infos ...fakeInfo) StatFunc {
	i := 0
	return func(string) (fs.FileInfo, error) {
		fi := infos[min(i, len(infos)-1)]
		i++
		return fi, nil
	}
}

type countingSleep struct {
	calls []time.Duration
}

func (c *countingSleep) sleep(_ context.Context, d time.Duration) error {
	c.calls = append(c.calls, d)
	return nil
}

type lockedChecker bool

func (l lockedChecker) IsLocked(context.Context, string) bool { return bool(l) }

func TestIsStableIdenticalSamples(t *testing.T) {
	mt := time.Date(2025, 3, 28, 10, 0, 0, 0, time.Local)
	s := &countingSleep{}
	g := NewGate(nil, WithSleep(s.sleep), WithStat(scripted(fakeInfo{100, mt})))

	assert.True(t, g.IsStable(context.Background(), "f.pdf"))
	assert.Equal(t, []time.Duration{time.Second, time.Second}, s.calls)
}

func TestIsStableSizeChangesWithConstantMtime(t *testing.T) {
	mt := time.Date(2025, 3, 28, 10, 0, 0, 0, time.Local)
	cases := map[string][]fakeInfo{
		"first to second": {{100, mt}, {200, mt}, {200, mt}},
		"second to third": {{100, mt}, {100, mt}, {250, mt}},
		"first to third":  {{100, mt}, {100, mt}, {101, mt}},
	}
	for name, infos := range cases {
		t.Run(name, func(t *testing.T) {
			s := &countingSleep{}
			g := NewGate(nil, WithSleep(s.sleep), WithStat(scripted(infos...)))
			assert.False(t, g.IsStable(context.Background(), "f.pdf"))
		})
	}
}

func TestIsStableMtimeChanges(t *testing.T) {
	mt := time.Date(2025, 3, 28, 10, 0, 0, 0, time.Local)
	s := &countingSleep{}
	g := NewGate(nil, WithSleep(s.sleep), WithStat(scripted(fakeInfo{100, mt}, fakeInfo{100, mt.Add(time.Second)})))
	assert.False(t, g.IsStable(context.Background(), "f.pdf"))
}

func TestIsStableStatError(t *testing.T) {
	s := &countingSleep{}
	g := NewGate(nil, WithSleep(s.sleep), WithStat(func(string) (fs.FileInfo, error) {
		return nil, fs.ErrNotExist
	}))
	assert.False(t, g.IsStable(context.Background(), "gone.pdf"))
	assert.Empty(t, s.calls)
}

func TestIsStableLocked(t *testing.T) {
	mt := time.Now()
	s := &countingSleep{}
	g := NewGate(nil, WithSleep(s.sleep), WithStat(scripted(fakeInfo{1, mt})), WithLockChecker(lockedChecker(true)))
	assert.False(t, g.IsStable(context.Background(), "f.pdf"))
}

func TestIsStableRealFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "4.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))
	g := NewGate(nil, WithInterval(0))
	assert.True(t, g.IsStable(context.Background(), path))
	assert.False(t, g.IsStable(context.Background(), path+".missing"))
}

func TestAwaitRetriesThenDefers(t *testing.T) {
	s := &countingSleep{}
	g := NewGate(nil,
		WithSamples(1),
		WithSleep(s.sleep),
		WithStat(scripted(fakeInfo{1, time.Now()})),
		WithLockChecker(lockedChecker(true)),
	)
	ok := g.Await(context.Background(), "f.pdf", 3, 5*time.Second)
	assert.False(t, ok)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second}, s.calls)
}

func TestAwaitSucceedsAfterWriterFinishes(t *testing.T) {
	mt := time.Now()
	s := &countingSleep{}
	g := NewGate(nil,
		WithSamples(2),
		WithSleep(s.sleep),
		WithStat(scripted(fakeInfo{1, mt}, fakeInfo{2, mt}, fakeInfo{3, mt}, fakeInfo{3, mt})),
	)
	assert.True(t, g.Await(context.Background(), "f.pdf", 3, 5*time.Second))
}

func TestAwaitStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g := NewGate(nil, WithSamples(1), WithStat(scripted(fakeInfo{1, time.Now()})), WithLockChecker(lockedChecker(true)))
	assert.False(t, g.Await(ctx, "f.pdf", 3, time.Hour))
}

func TestLsofChecker(t *testing.T) {
	f := &runner.Fake{Handler: func(name string, args []string) ([]byte, []byte, error) {
		switch args[0] {
		case "/open.pdf":
			return []byte("COMMAND PID USER\nsmbd 42 nsyy\n"), nil, nil
		case "/missing-bin.pdf":
			return nil, nil, errors.New("exec: \"lsof\": executable file not found")
		default:
			return nil, nil, errors.New("exit status 1")
		}
	}}
	c := NewLsofChecker("", f, nil)
	assert.True(t, c.IsLocked(context.Background(), "/open.pdf"))
	assert.False(t, c.IsLocked(context.Background(), "/closed.pdf"))
	assert.False(t, c.IsLocked(context.Background(), "/missing-bin.pdf"))
	assert.Equal(t, "lsof", f.Calls()[0].Name)
}
