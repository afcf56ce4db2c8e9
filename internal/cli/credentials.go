package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"donatemail/internal/download"
	"donatemail/internal/prefs"
	"donatemail/internal/server"
)

// Environment variables read when the command line leaves a value out.
const (
	envServer   = "IMAP_SERVER"
	envUsername = "IMAP_USERNAME"
	envPassword = "IMAP_PASSWORD"
)

// Connection selects the server and the account of a command.
type Connection struct {
	Server string `short:"s" long:"server" description:"Name of a known server, see the servers command"`
	User   string `short:"u" long:"user" description:"Login, or login:password"`
}

// resolveServer picks -s, then $IMAP_SERVER, then the last server used.
func (a *App) resolveServer(name string) (server.Server, error) {
	if name == "" {
		name = a.Getenv(envServer)
	}
	if name == "" {
		if p, err := a.preferences(); err == nil {
			name = p.Get(prefs.LastServer)
		}
	}
	if name == "" {
		return server.Server{}, errors.New("no server: use -s with one of " + strings.Join(a.servers.Names(), ", "))
	}
	srv, ok := a.servers.Get(name)
	if !ok {
		return server.Server{}, fmt.Errorf("unknown server %q: known servers are %s", name, strings.Join(a.servers.Names(), ", "))
	}
	return srv, nil
}

// resolveAccount picks -u, then $IMAP_USERNAME and $IMAP_PASSWORD, then the
// last login used. A missing password is asked for.
func (a *App) resolveAccount(user string) (server.Account, error) {
	var (
		acct server.Account
		err  error
	)
	switch {
	case user != "":
		acct, err = server.ParseCredentials(user)
		if err != nil {
			return acct, err
		}
	case a.Getenv(envUsername) != "":
		acct = server.Account{Name: a.Getenv(envUsername), Password: a.Getenv(envPassword)}
	default:
		p, perr := a.preferences()
		if perr == nil {
			acct.Name = p.Get(prefs.LastLogin)
		}
		if acct.Name == "" {
			return acct, errors.New("no login: use -u or set " + envUsername)
		}
	}
	if acct.Password == "" {
		if acct.Password, err = a.ReadPassword(fmt.Sprintf("Password for %s: ", acct.Name)); err != nil {
			return acct, err
		}
	}
	return acct, nil
}

// downloader prepares a download for the selected server and account.
func (a *App) downloader(conn Connection) (*download.Downloader, error) {
	srv, err := a.resolveServer(conn.Server)
	if err != nil {
		return nil, err
	}
	acct, err := a.resolveAccount(conn.User)
	if err != nil {
		return nil, err
	}
	log.Debug().Stringer("server", srv).Str("login", acct.Name).Msg("account")
	opts := append([]download.Option{download.WithDialer(a.Dialer)}, a.DownloadOptions...)
	dl := download.New(srv, &acct, opts...)
	dl.Job().Agent = a.agent()
	return dl, nil
}

func (a *App) rememberAccount(dl *download.Downloader) {
	job := dl.Job()
	values := map[string]string{prefs.LastServer: job.Server.Name}
	if job.Account != nil {
		values[prefs.LastLogin] = job.Account.Name
	}
	a.savePrefs(values)
}
