//go:build darwin || linux || freebsd || netbsd || openbsd

package lock

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExclusiveConflicts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "INBOX.mbox")
	first, err := os.Create(path)
	require.NoError(t, err)
	defer first.Close()

	unlock, err := Exclusive(first)
	require.NoError(t, err)

	// flock locks belong to the open file description, so a second open
	// conflicts even inside the same process.
	second, err := os.Open(path)
	require.NoError(t, err)
	defer second.Close()

	_, err = Exclusive(second)
	require.ErrorIs(t, err, ErrLocked)

	require.NoError(t, unlock())
	unlockSecond, err := Exclusive(second)
	require.NoError(t, err)
	require.NoError(t, unlockSecond())
}
