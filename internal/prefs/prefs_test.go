package prefs

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPreferencesRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "donatemail")
	p, err := OpenDir(dir, "donatemail")
	require.NoError(t, err)
	require.Empty(t, p.Get(LastServer))
	require.Equal(t, "Yahoo", p.GetOr(LastServer, "Yahoo"))

	p.Set(LastServer, "Gmail")
	p.Set(LastLogin, "me@example.org")
	require.NoError(t, p.Save())
	require.Equal(t, filepath.Join(dir, "donatemail.pref"), p.Path())

	again, err := OpenDir(dir, "donatemail")
	require.NoError(t, err)
	require.Equal(t, "Gmail", again.Get(LastServer))
	require.Equal(t, []string{LastLogin, LastServer}, again.Keys())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestOpenDirRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.pref"), []byte("{"), 0o600))
	_, err := OpenDir(dir, "app")
	require.Error(t, err)
}

func TestSaveReplacesPreviousFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.pref")
	require.NoError(t, os.WriteFile(path, []byte(`{"LastServer":"Yahoo","Old":"x"}`), 0o644))

	p, err := OpenDir(dir, "app")
	require.NoError(t, err)
	p.Set(LastServer, "Gmail")
	require.NoError(t, p.Save())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.JSONEq(t, `{"LastServer":"Gmail","Old":"x"}`, string(data))
	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}
}

func TestReplaceFileMissingDir(t *testing.T) {
	dir := t.TempDir()
	err := replaceFile(filepath.Join(dir, "gone", "app.pref"), []byte("{}"), 0o600)
	require.ErrorIs(t, err, os.ErrNotExist)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}
