package runner

import (
	"context"
	"errors"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunsCommand(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	out, _, err := Exec{}.Run(context.Background(), "sh", nil, "-c", "printf hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(out))

	_, _, err = Exec{}.Run(context.Background(), "sh", nil, "-c", "exit 3")
	require.Error(t, err)
	assert.True(t, IsExitError(err))
}

func TestExecMissingBinary(t *testing.T) {
	_, _, err := Exec{}.Run(context.Background(), "definitely-not-a-binary-ehp", nil)
	require.Error(t, err)
	assert.False(t, IsExitError(err))
}

func TestFakeRecordsCalls(t *testing.T) {
	f := &Fake{Handler: func(name string, args []string) ([]byte, []byte, error) {
		if name == "fail" {
			return nil, []byte("bad"), errors.New("boom")
		}
		return []byte("ok"), nil, nil
	}}
	out, _, err := f.Run(context.Background(), "lsof", nil, "/tmp/x.pdf")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(out))
	_, _, err = f.Run(context.Background(), "fail", nil)
	require.Error(t, err)

	calls := f.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "lsof /tmp/x.pdf", calls[0].String())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 8))
	assert.Equal(t, "ab...(truncated)", truncate("abcdef", 2))
}
