package delivery

import (
	"archive/zip"
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"donatemail/internal/download"
	"donatemail/internal/progress"
)

type event struct {
	status progress.Status
	n      int64
	total  int64
}

func writeMbox(t *testing.T, dir string, size int) (string, []byte) {
	t.Helper()
	content := bytes.Repeat([]byte("From a@b Mon Jan  2 15:04:05 2006\nSubject: x\n\nbody\n\n"), size)
	path := filepath.Join(dir, "INBOX.mbox")
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path, content
}

func entries(t *testing.T, path string) map[string]*zip.File {
	t.Helper()
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	t.Cleanup(func() { zr.Close() })
	out := make(map[string]*zip.File)
	var names []string
	for _, f := range zr.File {
		out[f.Name] = f
		names = append(names, f.Name)
	}
	require.Equal(t, []string{bagitName, "data/INBOX.mbox", manifestName, bagInfoName, tagManifestName}, names)
	return out
}

func read(t *testing.T, f *zip.File) string {
	t.Helper()
	rc, err := f.Open()
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func TestBuild(t *testing.T) {
	prev := now
	now = func() time.Time { return time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { now = prev })

	dir := t.TempDir()
	src, content := writeMbox(t, dir, 100)
	dest := DeliveryName(dir, now())
	require.Equal(t, filepath.Join(dir, "delivery_20240305100000.zip"), dest)

	var events []event
	d := New(dest, src, download.DummyResult(src))
	count, err := d.Build(func(s progress.Status, n, total int64, _ string) {
		events = append(events, event{s, n, total})
	})
	require.NoError(t, err)
	require.Equal(t, 5, count)

	size := int64(len(content))
	require.Equal(t, []event{
		{progress.Start, 0, size},
		{progress.Running, size, size},
		{progress.Complete, size, size},
	}, events)

	files := entries(t, dest)
	require.Equal(t, bagitContent, read(t, files[bagitName]))
	require.Equal(t, string(content), read(t, files["data/INBOX.mbox"]))
	require.Equal(t, zip.Deflate, files["data/INBOX.mbox"].Method)
	require.Equal(t, zip.Store, files[bagInfoName].Method)
	require.Equal(t, os.FileMode(0o666), files[bagitName].Mode().Perm())

	sum := md5.Sum(content)
	require.Equal(t, hex.EncodeToString(sum[:])+" data/INBOX.mbox\n", read(t, files[manifestName]))

	info := read(t, files[bagInfoName])
	require.Contains(t, info, "Source-Organization: Yahoo\n")
	require.Contains(t, info, "External-Description: 7998 mails from folder 'test'\n")
	require.True(t, strings.HasSuffix(info, "Payload-Oxum: "+strconv.FormatInt(size, 10)+".1\n"))

	tags := read(t, files[tagManifestName])
	require.Len(t, strings.Split(strings.TrimSpace(tags), "\n"), 3)
	require.Contains(t, tags, md5Hex([]byte(bagitContent))+" bagit.txt\n")

	report, err := Verify(dest)
	require.NoError(t, err)
	require.Equal(t, size, report.Bytes)
	require.Equal(t, "Yahoo", report.BagInfo["Source-Organization"])

	d.Clean()
	require.NoFileExists(t, src)
	d.Clean()
}

func TestBuildChunks(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "big.mbox")
	content := bytes.Repeat([]byte{'x'}, chunkSize+10)
	require.NoError(t, os.WriteFile(src, content, 0o644))

	var running []int64
	d := New(filepath.Join(dir, "out.zip"), src, nil)
	_, err := d.Build(func(s progress.Status, n, _ int64, _ string) {
		if s == progress.Running {
			running = append(running, n)
		}
	})
	require.NoError(t, err)
	require.Equal(t, []int64{chunkSize, chunkSize + 10}, running)

	report, err := Verify(d.DestZip)
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(chunkSize+10)+".1", report.BagInfo["Payload-Oxum"])
}

func TestBuildJobInfo(t *testing.T) {
	dir := t.TempDir()
	src, _ := writeMbox(t, dir, 1)
	job := download.DummyJob(src)
	job.SetYears(2001, 2002)
	d := New(filepath.Join(dir, "out.zip"), src, JobInfo{Job: job})
	_, err := d.Build(nil)
	require.NoError(t, err)

	report, err := Verify(d.DestZip)
	require.NoError(t, err)
	require.Equal(t, "Mails from folder 'test' in the years [2001-2002]", report.BagInfo["External-Description"])
}

func TestBuildMissingSource(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "out.zip")
	var statuses []progress.Status
	_, err := New(dest, filepath.Join(dir, "none.mbox"), nil).Build(func(s progress.Status, _, _ int64, _ string) {
		statuses = append(statuses, s)
	})
	require.Error(t, err)
	require.Equal(t, []progress.Status{progress.Error}, statuses)
	require.NoFileExists(t, dest)
}

func TestBuildRemovesPartialZip(t *testing.T) {
	dir := t.TempDir()
	src, _ := writeMbox(t, dir, 1)
	dest := filepath.Join(dir, "missing", "out.zip")
	_, err := New(dest, src, nil).Build(nil)
	require.Error(t, err)
	require.NoFileExists(t, dest)
}

func TestVerifyDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	src, _ := writeMbox(t, dir, 3)
	dest := filepath.Join(dir, "bad.zip")

	f, err := os.Create(dest)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	require.NoError(t, writeStored(zw, bagitName, bagitContent))
	require.NoError(t, writeStored(zw, "data/INBOX.mbox", "tampered"))
	require.NoError(t, writeStored(zw, manifestName, md5Hex([]byte("original"))+" data/INBOX.mbox\n"))
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	_, err = Verify(dest)
	require.ErrorIs(t, err, ErrInvalidBag)
	require.FileExists(t, src)
}

func TestVerifyDetectsUnlistedPayload(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "bad.zip")
	f, err := os.Create(dest)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	require.NoError(t, writeStored(zw, bagitName, bagitContent))
	require.NoError(t, writeStored(zw, "data/a.mbox", "a"))
	require.NoError(t, writeStored(zw, "data/b.mbox", "b"))
	require.NoError(t, writeStored(zw, manifestName, md5Hex([]byte("a"))+" data/a.mbox\n"))
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	_, err = Verify(dest)
	require.ErrorIs(t, err, ErrInvalidBag)
	require.Contains(t, err.Error(), "data/b.mbox")
}
