package download

import (
	"context"
	"errors"
	"time"

	"github.com/emersion/go-imap"

	"donatemail/internal/server"
)

var (
	// ErrNoAccount means the downloader has no credentials.
	ErrNoAccount = errors.New("no account set")

	// ErrAuthFailed means the server refused the credentials.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrResultNo means the server answered NO (or BAD) to a command.
	ErrResultNo = errors.New("result NO")

	// ErrConnDead means the server said BYE or the connection dropped.
	ErrConnDead = errors.New("conn dead")

	// ErrTimeout means the server did not answer in time.
	ErrTimeout = errors.New("timeout")
)

// Mailbox is one entry of a LIST response. Name is decoded UTF-8.
type Mailbox struct {
	Name       string
	Delimiter  string
	Attributes []string
}

// Session is an authenticated IMAP connection, reduced to what a download
// needs. Implementations report failures with the sentinel errors above.
type Session interface {
	List() ([]Mailbox, error)
	// Select opens a mailbox read-only and returns its message count.
	Select(name string) (uint32, error)
	Search(criteria *imap.SearchCriteria) ([]uint32, error)
	// Fetch returns the full RFC 822 content of a message.
	Fetch(seq uint32) ([]byte, error)
	// Close closes the selected mailbox.
	Close() error
	Logout() error
}

// Dialer opens authenticated sessions.
type Dialer interface {
	Dial(ctx context.Context, srv server.Server, acct server.Account, timeout time.Duration) (Session, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, srv server.Server, acct server.Account, timeout time.Duration) (Session, error)

func (f DialerFunc) Dial(ctx context.Context, srv server.Server, acct server.Account, timeout time.Duration) (Session, error) {
	return f(ctx, srv, acct, timeout)
}
