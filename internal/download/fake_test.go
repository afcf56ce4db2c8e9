package download

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/emersion/go-imap"

	"donatemail/internal/server"
)

// fakeServer scripts the answers of an IMAP server for the downloader.
type fakeServer struct {
	mailboxes []Mailbox
	counts    map[string]uint32
	messages  map[uint32][]byte
	fetchErrs map[uint32][]error
	searchErr error
	dialErr   error

	dials    int
	logouts  int
	selects  []string
	fetches  []uint32
	searches []*imap.SearchCriteria
	accounts []server.Account
	timeouts []time.Duration
}

func newFakeServer(n int) *fakeServer {
	s := &fakeServer{
		counts:    map[string]uint32{},
		messages:  map[uint32][]byte{},
		fetchErrs: map[uint32][]error{},
	}
	for i := 1; i <= n; i++ {
		s.messages[uint32(i)] = rawMessage(i)
	}
	return s
}

func (s *fakeServer) Dial(_ context.Context, _ server.Server, acct server.Account, timeout time.Duration) (Session, error) {
	s.dials++
	s.accounts = append(s.accounts, acct)
	s.timeouts = append(s.timeouts, timeout)
	if s.dialErr != nil {
		return nil, s.dialErr
	}
	return &fakeSession{srv: s}, nil
}

type fakeSession struct {
	srv    *fakeServer
	closed bool
}

func (f *fakeSession) List() ([]Mailbox, error) {
	return f.srv.mailboxes, nil
}

func (f *fakeSession) Select(name string) (uint32, error) {
	f.srv.selects = append(f.srv.selects, name)
	if n, ok := f.srv.counts[name]; ok {
		return n, nil
	}
	if name == "Forbidden" {
		return 0, fmt.Errorf("%w: [NONEXISTENT] no such mailbox", ErrResultNo)
	}
	if name == "Lost" {
		return 0, fmt.Errorf("%w: imap: connection closed", ErrConnDead)
	}
	return uint32(len(f.srv.messages)), nil
}

func (f *fakeSession) Search(criteria *imap.SearchCriteria) ([]uint32, error) {
	f.srv.searches = append(f.srv.searches, criteria)
	if f.srv.searchErr != nil {
		return nil, f.srv.searchErr
	}
	seqs := make([]uint32, 0, len(f.srv.messages))
	for i := 1; i <= len(f.srv.messages); i++ {
		seqs = append(seqs, uint32(i))
	}
	return seqs, nil
}

func (f *fakeSession) Fetch(seq uint32) ([]byte, error) {
	if f.closed {
		return nil, errors.New("fetch on a logged out session")
	}
	f.srv.fetches = append(f.srv.fetches, seq)
	if errs := f.srv.fetchErrs[seq]; len(errs) > 0 {
		f.srv.fetchErrs[seq] = errs[1:]
		return nil, errs[0]
	}
	return f.srv.messages[seq], nil
}

func (f *fakeSession) Close() error { return nil }

func (f *fakeSession) Logout() error {
	f.closed = true
	f.srv.logouts++
	return nil
}

func rawMessage(n int) []byte {
	return []byte(fmt.Sprintf("From: Alice <alice@example.org>\r\n"+
		"To: bob@example.org\r\n"+
		"Date: Mon, 02 Jan 2006 15:04:05 +0000\r\n"+
		"Subject: message %d\r\n"+
		"\r\n"+
		"Hello number %d\r\n", n, n))
}

type event struct {
	status string
	n      int64
	total  int64
	msg    string
}
