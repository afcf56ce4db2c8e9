package server

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestServerString(t *testing.T) {
	srv := New("Yahoo", "imap.mail.yahoo.com")
	require.Equal(t, "Server Yahoo [imap.mail.yahoo.com:993]", srv.String())
	require.Equal(t, "imap.mail.yahoo.com:993", srv.Addr())
}

func TestLoadDefaultsPort(t *testing.T) {
	servers, err := Load(strings.NewReader(`[
		{"name": "A", "host": "a.example.org"},
		{"name": "B", "host": "b.example.org", "port": "143"}
	]`))
	require.Error(t, err, "port must be a number")
	require.Nil(t, servers)

	servers, err = Load(strings.NewReader(`[
		{"name": "A", "host": "a.example.org"},
		{"name": "B", "host": "b.example.org", "port": 143}
	]`))
	require.NoError(t, err)
	a, ok := servers.Get("A")
	require.True(t, ok)
	require.Equal(t, DefaultPort, a.Port)
	b, ok := servers.Get("B")
	require.True(t, ok)
	require.Equal(t, 143, b.Port)
}

func TestLoadRejectsIncompleteServer(t *testing.T) {
	_, err := Load(strings.NewReader(`[{"name": "A"}]`))
	require.Error(t, err)
}

func TestServersRegistry(t *testing.T) {
	servers := Default()
	require.Contains(t, servers.Names(), "Yahoo")

	servers.Add(New("Local", "localhost"))
	require.Equal(t, "Local", servers.Names()[len(servers.Names())-1])

	servers.RemoveByName("Yahoo")
	_, ok := servers.Get("Yahoo")
	require.False(t, ok)

	local, ok := servers.Get("Local")
	require.True(t, ok)
	servers.Remove(local)
	require.NotContains(t, servers.Names(), "Local")

	servers.RemoveByName("missing")
}

func TestServerJSON(t *testing.T) {
	data, err := json.Marshal(New("Gmail", "imap.gmail.com"))
	require.NoError(t, err)
	require.JSONEq(t, `{"name":"Gmail","host":"imap.gmail.com","port":993}`, string(data))
}

func TestAccountJSONOmitsPassword(t *testing.T) {
	data, err := json.Marshal(Account{Name: "me@example.org", Password: "secret"})
	require.NoError(t, err)
	require.JSONEq(t, `{"name":"me@example.org"}`, string(data))
	require.Equal(t, "me@example.org", Account{Name: "me@example.org"}.String())
}

func TestParseCredentials(t *testing.T) {
	tests := []struct {
		in       string
		user     string
		password string
		wantErr  bool
	}{
		{in: "me@example.org:secret", user: "me@example.org", password: "secret"},
		{in: "me@example.org:se:cret", user: "me@example.org", password: "se:cret"},
		{in: "me@example.org", user: "me@example.org"},
		{in: ":secret", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		acct, err := ParseCredentials(tt.in)
		if tt.wantErr {
			require.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.user, acct.Name)
		require.Equal(t, tt.password, acct.Password)
	}
}
