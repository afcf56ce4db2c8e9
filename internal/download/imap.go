package download

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/rs/zerolog/log"

	"donatemail/internal/server"
)

// IMAPDialer connects over TLS with go-imap.
var IMAPDialer Dialer = DialerFunc(DialIMAP)

type imapSession struct {
	c    *client.Client
	conn *watchedConn
	stop func() bool
}

// DialIMAP connects to srv over TLS and logs in. timeout bounds the
// connection and every later command.
func DialIMAP(ctx context.Context, srv server.Server, acct server.Account, timeout time.Duration) (Session, error) {
	return dialIMAP(ctx, srv, acct, timeout, &tls.Config{ServerName: srv.Host})
}

// dialIMAP talks clear text when tlsConfig is nil.
func dialIMAP(ctx context.Context, srv server.Server, acct server.Account, timeout time.Duration, tlsConfig *tls.Config) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d := &connDialer{ctx: ctx, timeout: timeout}
	var (
		c   *client.Client
		err error
	)
	if tlsConfig != nil {
		c, err = client.DialWithDialerTLS(d, srv.Addr(), tlsConfig)
	} else {
		c, err = client.DialWithDialer(d, srv.Addr())
	}
	if err != nil {
		if d.conn != nil {
			_ = d.conn.Close()
			if d.conn.timedOut() {
				return nil, fmt.Errorf("%w: connect to %s: %v", ErrTimeout, srv.Addr(), err)
			}
		}
		return nil, fmt.Errorf("connect to %s: %w", srv.Addr(), err)
	}
	log.Debug().Str("server", srv.Name).Msg("Connected to IMAP server")
	c.Timeout = timeout

	s := &imapSession{c: c, conn: d.conn}
	s.stop = context.AfterFunc(ctx, func() { _ = c.Terminate() })

	if err := c.Login(acct.Name, acct.Password); err != nil {
		// classify before Terminate closes LoggedOut
		cerr := s.classify(err)
		s.stop()
		_ = c.Terminate()
		if errors.Is(cerr, ErrResultNo) {
			return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
		}
		return nil, cerr
	}
	log.Debug().Str("user", acct.Name).Msg("Logged in")
	return s, nil
}

// connDialer dials for go-imap and keeps the connection so that read and
// write failures can be inspected later.
type connDialer struct {
	ctx     context.Context
	timeout time.Duration
	conn    *watchedConn
}

func (d *connDialer) Dial(network, addr string) (net.Conn, error) {
	nd := &net.Dialer{Timeout: d.timeout}
	conn, err := nd.DialContext(d.ctx, network, addr)
	if err != nil {
		return nil, err
	}
	// go-imap only bounds the greeting for a *net.Dialer
	if d.timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(d.timeout)); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	d.conn = &watchedConn{Conn: conn}
	return d.conn, nil
}

// watchedConn remembers its first I/O error. go-imap logs reader errors and
// reports a bare "connection closed" to the pending command.
type watchedConn struct {
	net.Conn

	mu  sync.Mutex
	err error
}

func (c *watchedConn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	c.record(err)
	return n, err
}

func (c *watchedConn) Write(b []byte) (int, error) {
	n, err := c.Conn.Write(b)
	c.record(err)
	return n, err
}

func (c *watchedConn) record(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	if c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
}

func (c *watchedConn) timedOut() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return isTimeout(c.err)
}

func (s *imapSession) List() ([]Mailbox, error) {
	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)
	go func() {
		done <- s.c.List("", "*", mailboxes)
	}()
	var list []Mailbox
	for m := range mailboxes {
		list = append(list, Mailbox{Name: m.Name, Delimiter: m.Delimiter, Attributes: m.Attributes})
	}
	if err := <-done; err != nil {
		return nil, s.classify(err)
	}
	return list, nil
}

func (s *imapSession) Select(name string) (uint32, error) {
	mbox, err := s.c.Select(name, true)
	if err != nil {
		return 0, s.classify(err)
	}
	return mbox.Messages, nil
}

func (s *imapSession) Search(criteria *imap.SearchCriteria) ([]uint32, error) {
	seqs, err := s.c.Search(criteria)
	if err != nil {
		return nil, s.classify(err)
	}
	return seqs, nil
}

func (s *imapSession) Fetch(seq uint32) ([]byte, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(seq)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.c.Fetch(seqset, items, messages)
	}()

	var (
		body    []byte
		readErr error
	)
	for msg := range messages {
		r := msg.GetBody(section)
		if r == nil {
			continue
		}
		body, readErr = io.ReadAll(r)
	}
	if err := <-done; err != nil {
		return nil, s.classify(err)
	}
	if readErr != nil {
		return nil, s.classify(readErr)
	}
	if body == nil {
		return nil, fmt.Errorf("%w: no body for message %d", ErrResultNo, seq)
	}
	return body, nil
}

func (s *imapSession) Close() error {
	return s.classify(s.c.Close())
}

func (s *imapSession) Logout() error {
	s.stop()
	err := s.c.Logout()
	if errors.Is(err, client.ErrAlreadyLoggedOut) {
		return nil
	}
	return s.classify(err)
}

func (s *imapSession) classify(err error) error {
	return classify(err, s.conn, s.c.LoggedOut())
}

// classify maps go-imap failures onto the session errors. go-imap reports
// NO and BAD status responses as plain errors carrying the server text, so
// anything that is neither a timeout nor a lost connection is a refusal.
func classify(err error, conn *watchedConn, loggedOut <-chan struct{}) error {
	if err == nil {
		return nil
	}
	if isTimeout(err) || conn.timedOut() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var opErr *net.OpError
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.As(err, &opErr) ||
		errors.Is(err, client.ErrAlreadyLoggedOut) || strings.HasPrefix(err.Error(), "imap: connection closed") {
		return fmt.Errorf("%w: %v", ErrConnDead, err)
	}
	select {
	case <-loggedOut:
		return fmt.Errorf("%w: %v", ErrConnDead, err)
	default:
	}
	return fmt.Errorf("%w: %v", ErrResultNo, err)
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
