package download

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"donatemail/internal/folder"
	"donatemail/internal/lock"
)

func TestMboxWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "INBOX.mbox")
	w, err := CreateMbox(path)
	require.NoError(t, err)

	_, err = CreateMbox(path)
	require.ErrorIs(t, err, lock.ErrLocked)

	require.NoError(t, w.Add(rawMessage(1)))
	require.NoError(t, w.Flush())
	require.NoError(t, w.Add(rawMessage(2)))
	require.Equal(t, 2, w.Count())
	require.NoError(t, w.Close())

	msgs := readMbox(t, path)
	require.Len(t, msgs, 2)
	require.Equal(t, string(rawMessage(1)), msgs[0])
	require.Equal(t, string(rawMessage(2)), msgs[1])
}

func TestMboxWriterKeepsMessageBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "INBOX.mbox")
	w, err := CreateMbox(path)
	require.NoError(t, err)

	quoted := []byte("From: Bob <bob@example.org>\r\n" +
		"Subject: quoting\r\n" +
		"\r\n" +
		"first paragraph\r\n" +
		"\r\n" +
		"From the archive, a line that looks like a separator\r\n")
	require.NoError(t, w.Add(rawMessage(1)))
	require.NoError(t, w.Add(quoted))
	require.NoError(t, w.Add(rawMessage(3)))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "Hello number 1\n\nFrom bob@example.org ")
	require.True(t, strings.HasSuffix(string(data), "Hello number 3\n\n"))

	msgs := readMbox(t, path)
	require.Equal(t, []string{string(rawMessage(1)), string(quoted), string(rawMessage(3))}, msgs)
}

func TestEnvelope(t *testing.T) {
	from, date := envelope(rawMessage(1))
	require.Equal(t, "alice@example.org", from)
	require.True(t, date.Equal(time.Date(2006, 1, 2, 15, 4, 5, 0, time.UTC)))

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fixClock(t, at)
	from, date = envelope([]byte("Subject: no sender\r\n\r\nbody\r\n"))
	require.Equal(t, unknownSender, from)
	require.Equal(t, at, date)
}

func TestSearchCriteria(t *testing.T) {
	require.Equal(t, "ALL", DescribeSearch(SearchCriteria(0, 0)))
	require.Equal(t, `(SENTSINCE "01-Jan-2003")`, DescribeSearch(SearchCriteria(2003, 0)))
	require.Equal(t, `(SENTBEFORE "01-Jan-2005")`, DescribeSearch(SearchCriteria(0, 2004)))
	require.Equal(t, `(SENTSINCE "01-Jan-2003" SENTBEFORE "01-Jan-2005")`, DescribeSearch(SearchCriteria(2003, 2004)))
}

func TestDestinationPaths(t *testing.T) {
	out := t.TempDir()
	f := folder.FromName("Archives/Été")
	path, err := MboxPath(out, f)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(out, "Archives", "&AMk-t&AOk-.mbox"), path)
	require.DirExists(t, filepath.Join(out, "Archives"))

	path, err = ManifestPath(out, folder.FromName("../a:b"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(out, "a_b.json"), path)

	require.Equal(t, filepath.Join(out, "m_00000042.eml"), EMLPath(out, 42))
}
