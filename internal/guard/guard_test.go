package guard

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.lock")

	g, err := Acquire(path)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), mustAtoi(t, data))

	require.NoError(t, g.Release())

	_, err = os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestAcquire_Contention(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.lock")

	a, err := Acquire(path)
	require.NoError(t, err)

	// flock is per open file description, so a second acquire in the
	// same process conflicts just like one from another process.
	_, err = Acquire(path)

	var held *ErrAlreadyHeld
	require.ErrorAs(t, err, &held)
	assert.Equal(t, os.Getpid(), held.HolderPID)
	assert.Contains(t, held.Error(), "held by pid")

	require.NoError(t, a.Release())

	b, err := Acquire(path)
	require.NoError(t, err)
	require.NoError(t, b.Release())
}

func TestRelease_RefusesForeignPID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.lock")

	g, err := Acquire(path)
	require.NoError(t, err)

	// Simulate a newer holder having rewritten the file.
	require.NoError(t, os.WriteFile(path, []byte("999999\n"), 0o644))

	require.NoError(t, g.Release())

	// The file must survive a refused cleanup.
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestLockPath(t *testing.T) {
	p1 := LockPath("token-a")
	p2 := LockPath("token-b")

	assert.NotEqual(t, p1, p2)
	assert.Equal(t, p1, LockPath("token-a"))
	assert.NotContains(t, p1, "token-a")
	assert.True(t, strings.HasPrefix(filepath.Base(p1), "tgproxybot-"))
}

func mustAtoi(t *testing.T, data []byte) int {
	t.Helper()

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(t, err)
	return pid
}
