package folder

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		wire string
		name string
	}{
		{wire: "INBOX", name: "INBOX"},
		{wire: "&AMk-l&AOk-ments envoy&AOk-s", name: "Éléments envoyés"},
		{wire: "Tom &- Jerry", name: "Tom & Jerry"},
		{wire: "~peter/mail/&U,BTFw-/&ZeVnLIqe-", name: "~peter/mail/台北/日本語"},
	}
	for _, tt := range tests {
		name, err := Decode(tt.wire)
		require.NoError(t, err, tt.wire)
		require.Equal(t, tt.name, name)
		require.Equal(t, tt.wire, Encode(tt.name))
	}
}

func TestDecodeRejectsMalformedNames(t *testing.T) {
	for _, wire := range []string{
		"café",
		"&AMk",
		"a&AMk&-",
		"&AM*k-",
		"&AMk-&AOk-",
	} {
		_, err := Decode(wire)
		require.ErrorIs(t, err, ErrInvalidUTF7, wire)
	}
}

func TestNewAndSetName(t *testing.T) {
	f, err := New("&AMk-t&AOk-")
	require.NoError(t, err)
	require.Equal(t, "Été", f.Name())
	require.Equal(t, UnknownCount, f.Count)

	f.SetName("Archives & co")
	require.Equal(t, "Archives &- co", f.WireName())

	_, err = New("&AMk")
	require.Error(t, err)
}

func TestString(t *testing.T) {
	f := FromName("INBOX")
	require.Equal(t, "INBOX                         ", f.String())
	f.Count = 42
	require.Equal(t, "INBOX                          (   42)", f.String())
}

func TestSort(t *testing.T) {
	counted := []*Folder{
		{name: "b", Count: 3},
		{name: "a", Count: 10},
		{name: "c", Count: 3},
	}
	Sort(counted)
	require.Equal(t, []string{"a", "b", "c"}, names(counted))

	uncounted := []*Folder{FromName("Zoo"), FromName("Archive"), FromName("INBOX")}
	Sort(uncounted)
	require.Equal(t, []string{"Archive", "INBOX", "Zoo"}, names(uncounted))
}

func TestJSON(t *testing.T) {
	f := FromName("Été")
	data, err := json.Marshal(f)
	require.NoError(t, err)
	require.JSONEq(t, `{"name":"Été"}`, string(data))

	f.Count = 7
	data, err = json.Marshal(f)
	require.NoError(t, err)
	require.JSONEq(t, `{"name":"Été","count":7}`, string(data))

	var back Folder
	require.NoError(t, json.Unmarshal(data, &back))
	require.Equal(t, "Été", back.Name())
	require.Equal(t, "&AMk-t&AOk-", back.WireName())
	require.Equal(t, 7, back.Count)
}

func names(folders []*Folder) []string {
	out := make([]string, 0, len(folders))
	for _, f := range folders {
		out = append(out, f.Name())
	}
	return out
}
