// Package download retrieves the messages of a remote IMAP folder into an
// mbox file, surviving the disconnections and refusals webmail servers
// inflict on long downloads.
package download

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"donatemail/internal/folder"
	"donatemail/internal/progress"
	"donatemail/internal/server"
)

// Folders with one of these SPECIAL-USE attributes (RFC 6154) are not
// offered for download, nor are folders that cannot be selected.
var ignoredAttributes = []string{
	`\All`, `\Archive`, `\Drafts`, `\Flagged`, `\Junk`, `\Sent`, `\Trash`,
	`\Noselect`, `\NonExistent`,
}

const (
	flushEvery    = 20
	progressEvery = 5
)

// Error is a failed operation with a message meant for the user.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Err }

type Downloader struct {
	job    *Job
	result *Result
	dialer Dialer
	sess   Session
	log    zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration) error

	// Folders is filled by ListFolders.
	Folders []*folder.Folder

	// ReconnectDelay is the pause of a preventive or BYE reconnection.
	ReconnectDelay time.Duration
	// UnavailableDelay is the pause after a NO to a FETCH.
	UnavailableDelay time.Duration
	// SkipDelay is the pause before moving past an unavailable message.
	SkipDelay time.Duration
}

type Option func(*Downloader)

func WithDialer(d Dialer) Option {
	return func(dl *Downloader) { dl.dialer = d }
}

func WithLogger(l zerolog.Logger) Option {
	return func(dl *Downloader) { dl.log = l }
}

// WithDelays overrides the reconnection pauses.
func WithDelays(reconnect, unavailable, skip time.Duration) Option {
	return func(dl *Downloader) {
		dl.ReconnectDelay = reconnect
		dl.UnavailableDelay = unavailable
		dl.SkipDelay = skip
	}
}

// New prepares a download from srv. acct may be nil until Login.
func New(srv server.Server, acct *server.Account, opts ...Option) *Downloader {
	job := NewJob(&srv, acct)
	d := &Downloader{
		job:              job,
		result:           NewResult(job),
		dialer:           IMAPDialer,
		log:              log.Logger,
		sleep:            sleepContext,
		ReconnectDelay:   3 * time.Second,
		UnavailableDelay: 10 * time.Minute,
		SkipDelay:        2 * time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Downloader) Job() *Job       { return d.job }
func (d *Downloader) Result() *Result { return d.result }

// SetAccount replaces the credentials used by the next Login.
func (d *Downloader) SetAccount(acct *server.Account) { d.job.Account = acct }

// Login connects and authenticates, once.
func (d *Downloader) Login(ctx context.Context) error {
	if d.sess != nil {
		return nil
	}
	if d.job.Account == nil {
		return ErrNoAccount
	}
	d.logf("Connect to %s", d.job.Server)
	d.logf("Login with %s", d.job.Account)
	sess, err := d.dialer.Dial(ctx, *d.job.Server, *d.job.Account, d.job.TimeoutDuration())
	if err != nil {
		return err
	}
	d.sess = sess
	return nil
}

// Logout ends the session. Failures are only logged.
func (d *Downloader) Logout() {
	if d.sess == nil {
		return
	}
	if err := d.sess.Logout(); err != nil {
		d.logf("Logout: %v", err)
	}
	d.sess = nil
}

// ListFolders fills Folders with the downloadable folders of the mailbox.
// With counts, every folder is selected to count its messages and empty
// folders are left out.
func (d *Downloader) ListFolders(ctx context.Context, withCounts bool, report progress.Func) error {
	d.Folders = nil
	if err := d.Login(ctx); err != nil {
		return d.fail(err, report, 0, 0)
	}
	mailboxes, err := d.sess.List()
	if err != nil {
		return d.fail(fmt.Errorf("list folders: %w", err), report, 0, 0)
	}
	listed := int64(len(mailboxes))
	report.Emit(progress.Start, 0, listed, "")

	var msgs, seen int
	for _, mb := range mailboxes {
		if err := ctx.Err(); err != nil {
			return d.fail(err, report, 0, 0)
		}
		if ignored(mb.Attributes) {
			continue
		}
		f := folder.FromName(mb.Name)
		if withCounts {
			n, err := d.FolderCount(ctx, f)
			if err != nil {
				return d.fail(err, report, 0, 0)
			}
			if n == 0 {
				continue
			}
			msgs += n
		}
		d.Folders = append(d.Folders, f)
		seen++
		if seen%progressEvery == 0 {
			report.Emit(progress.Running, int64(seen), listed, fmt.Sprintf("current: %s, msgs: %d", f.Name(), msgs))
		}
	}
	n := int64(len(d.Folders))
	report.Emit(progress.Complete, n, n, fmt.Sprintf("total msgs: %d", msgs))
	return nil
}

func ignored(attrs []string) bool {
	for _, attr := range attrs {
		for _, ign := range ignoredAttributes {
			if strings.EqualFold(attr, ign) {
				return true
			}
		}
	}
	return false
}

// FolderCount selects f read-only and records its message count. A folder
// the server refuses to select counts 0, the refusal is only logged.
func (d *Downloader) FolderCount(ctx context.Context, f *folder.Folder) (int, error) {
	if err := d.Login(ctx); err != nil {
		return 0, err
	}
	n, err := d.sess.Select(f.Name())
	if errors.Is(err, ErrResultNo) {
		d.logf("Bad response %v when counting from %s", err, f.Name())
		f.Count = 0
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("select %s: %w", f.Name(), err)
	}
	f.Count = int(n)
	return f.Count, nil
}

// Folder finds a listed folder by decoded name.
func (d *Downloader) Folder(name string) *folder.Folder {
	for _, f := range d.Folders {
		if f.Name() == name {
			return f
		}
	}
	return nil
}

// FetchEML writes every message of f to its own file in dir.
func (d *Downloader) FetchEML(ctx context.Context, dir string, f *folder.Folder, report progress.Func) error {
	if err := d.Login(ctx); err != nil {
		return d.fail(err, report, 0, 0)
	}
	if _, err := d.sess.Select(f.Name()); err != nil {
		return d.fail(fmt.Errorf("select %s: %w", f.Name(), err), report, 0, 0)
	}
	seqs, err := d.sess.Search(SearchCriteria(0, 0))
	if err != nil {
		d.logf("Bad response %v when retrieving mails from %s", err, f.Name())
		return d.fail(fmt.Errorf("search %s: %w", f.Name(), err), report, 0, 0)
	}
	total := int64(len(seqs))
	report.Emit(progress.Start, 0, total, "folder: "+f.Name())

	var count int64
	for _, seq := range seqs {
		if err := ctx.Err(); err != nil {
			return d.fail(err, report, 0, 0)
		}
		raw, err := d.sess.Fetch(seq)
		if err != nil {
			msg := fmt.Sprintf("folder: %s, current: %d", f.Name(), seq)
			return d.failMsg(msg, err, report, count+1, total)
		}
		count++
		if count%progressEvery == 0 {
			report.Emit(progress.Running, count, total, fmt.Sprintf("folder: %s, current: %d", f.Name(), seq))
		}
		if err := os.WriteFile(EMLPath(dir, seq), raw, 0o644); err != nil {
			return d.fail(err, report, 0, 0)
		}
	}
	if err := d.sess.Close(); err != nil {
		d.logf("Close %s: %v", f.Name(), err)
	}
	report.Emit(progress.Complete, count, total, "folder: "+f.Name())
	return nil
}

// FetchMbox aggregates the messages of f sent during [since, before] into
// the mbox at mboxPath, replacing any previous file. Messages the server
// keeps refusing are skipped and recorded in the result.
func (d *Downloader) FetchMbox(ctx context.Context, mboxPath string, f *folder.Folder, since, before int, report progress.Func) error {
	d.result.Begin()
	d.job.Folder = f
	d.job.SetYears(since, before)
	d.job.Mbox = mboxPath

	if err := d.Login(ctx); err != nil {
		return d.fail(err, report, 0, 0)
	}
	if _, err := d.sess.Select(f.Name()); err != nil {
		return d.fail(fmt.Errorf("select %s: %w", f.Name(), err), report, 0, 0)
	}
	criteria := SearchCriteria(since, before)
	d.logf("Search %s in %s", DescribeSearch(criteria), f.Name())
	seqs, err := d.sess.Search(criteria)
	if err != nil {
		d.logf("Bad response %v when retrieving mails from %s", err, f.Name())
		return d.fail(fmt.Errorf("search %s: %w", f.Name(), err), report, 0, 0)
	}
	total := int64(len(seqs))
	report.Emit(progress.Start, 0, total, "folder: "+f.Name())

	if err := os.Remove(mboxPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return d.fail(err, report, 0, 0)
	}
	mbox, err := CreateMbox(mboxPath)
	if err != nil {
		return d.fail(err, report, 0, 0)
	}
	count, err := d.appendAll(ctx, mbox, f, seqs, report)
	closeErr := mbox.Close()
	if d.sess != nil {
		if cerr := d.sess.Close(); cerr != nil {
			d.logf("Close %s: %v", f.Name(), cerr)
		}
	}
	if err != nil {
		return err
	}
	if closeErr != nil {
		return d.fail(closeErr, report, 0, 0)
	}
	d.result.Finish(int(total), count)
	d.logf("Downloaded %d of %d mails from %s, %d skipped", count, total, f.Name(), len(d.result.Skipped))
	report.Emit(progress.Complete, int64(count), total, "folder: "+f.Name())
	return nil
}

func (d *Downloader) appendAll(ctx context.Context, mbox *MboxWriter, f *folder.Folder, seqs []uint32, report progress.Func) (int, error) {
	total := int64(len(seqs))
	count := 0
	for _, seq := range seqs {
		if err := ctx.Err(); err != nil {
			return count, d.fail(err, report, 0, 0)
		}
		raw, err := d.fetch(ctx, f, seq, count)
		switch {
		case errors.Is(err, ErrResultNo):
			if err := d.reconnect(ctx, f, d.SkipDelay); err != nil {
				return count, d.fail(err, report, 0, 0)
			}
			d.logf("Skipping record %d", seq)
			d.result.Skip(seq)
			if err := mbox.Flush(); err != nil {
				return count, d.fail(err, report, 0, 0)
			}
			report.Emit(progress.Warning, int64(count), total, fmt.Sprintf("folder: %s, SKIP: %d", f.Name(), seq))
			continue
		case errors.Is(err, ErrTimeout), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return count, d.fail(err, report, 0, 0)
		case err != nil:
			msg := fmt.Sprintf("folder: %s, current: %d, return: %v", f.Name(), seq, err)
			d.logf("%s", msg)
			return count, d.failMsg(msg, err, report, int64(count+1), total)
		}
		if err := mbox.Add(raw); err != nil {
			return count, d.fail(err, report, 0, 0)
		}
		count++
		if count%flushEvery == 0 {
			if err := mbox.Flush(); err != nil {
				return count, d.fail(err, report, 0, 0)
			}
		}
		if count%progressEvery == 0 {
			report.Emit(progress.Running, int64(count), total, fmt.Sprintf("folder: %s, current: %d", f.Name(), seq))
		}
	}
	return count, nil
}

// fetch retrieves one message, reconnecting every Threshold messages, and
// retrying once after a BYE and once after a NO.
func (d *Downloader) fetch(ctx context.Context, f *folder.Folder, seq uint32, count int) ([]byte, error) {
	if err := d.reconnectEvery(ctx, count+1, f); err != nil {
		return nil, err
	}
	raw, err := d.sess.Fetch(seq)
	switch {
	case errors.Is(err, ErrConnDead):
		d.logf("Reconnect from 'BYE': %d, %v", seq, err)
		if err := d.reconnect(ctx, f, d.ReconnectDelay); err != nil {
			return nil, err
		}
		raw, err = d.sess.Fetch(seq)
	case errors.Is(err, ErrTimeout):
		d.logf("Timeout: %d, %v", seq, err)
		return nil, err
	}
	if errors.Is(err, ErrResultNo) {
		d.logf("Reconnect from 'NO': %d\n%v", seq, err)
		if err := d.reconnect(ctx, f, d.UnavailableDelay); err != nil {
			return nil, err
		}
		raw, err = d.sess.Fetch(seq)
	}
	return raw, err
}

func (d *Downloader) reconnectEvery(ctx context.Context, n int, f *folder.Folder) error {
	if d.job.Threshold <= 0 || n%d.job.Threshold != 0 {
		return nil
	}
	d.logf("Preventive reconnect: %d with %d, wait %s", n, d.job.Threshold, d.ReconnectDelay)
	return d.reconnect(ctx, f, d.ReconnectDelay)
}

// reconnect logs out, lets the server rest for wait, logs in again and
// reselects f.
func (d *Downloader) reconnect(ctx context.Context, f *folder.Folder, wait time.Duration) error {
	d.Logout()
	if err := d.sleep(ctx, wait); err != nil {
		return err
	}
	if err := d.Login(ctx); err != nil {
		return err
	}
	if f == nil {
		return nil
	}
	if _, err := d.sess.Select(f.Name()); err != nil {
		return fmt.Errorf("select %s: %w", f.Name(), err)
	}
	return nil
}

func (d *Downloader) logf(format string, args ...any) {
	line := d.result.Logf(format, args...)
	d.log.Debug().Msg(line)
}

func (d *Downloader) fail(err error, report progress.Func, n, total int64) error {
	return d.failMsg(userMessage(err), err, report, n, total)
}

func (d *Downloader) failMsg(msg string, err error, report progress.Func, n, total int64) error {
	d.log.Error().Err(err).Msg(msg)
	report.Emit(progress.Error, n, total, msg)
	return &Error{Message: msg, Err: err}
}

func userMessage(err error) string {
	var (
		dnsErr *net.DNSError
		opErr  *net.OpError
	)
	switch {
	case errors.Is(err, ErrAuthFailed):
		return fmt.Sprintf("connection error: check the login and the password.\n\n%v.", err)
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("connection timeout: %v.", err)
	case errors.As(err, &dnsErr), errors.As(err, &opErr):
		return fmt.Sprintf("connection error: %v.", err)
	default:
		return fmt.Sprintf("retrieval error: %v.", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
