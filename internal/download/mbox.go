package download

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/emersion/go-mbox"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"

	"donatemail/internal/lock"
)

const unknownSender = "MAILER-DAEMON"

// MboxWriter appends raw messages to an mbox file it holds locked.
type MboxWriter struct {
	f      *os.File
	buf    *bufio.Writer
	w      *mbox.Writer
	unlock func() error
	count  int
}

// CreateMbox truncates or creates path and locks it.
func CreateMbox(path string) (*MboxWriter, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	unlock, err := lock.Exclusive(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := f.Truncate(0); err != nil {
		_ = unlock()
		_ = f.Close()
		return nil, err
	}
	buf := bufio.NewWriter(f)
	return &MboxWriter{f: f, buf: buf, w: mbox.NewWriter(buf), unlock: unlock}, nil
}

// Add appends one RFC 822 message. The separator line is built from its
// From and Date headers.
func (m *MboxWriter) Add(raw []byte) error {
	from, date := envelope(raw)
	raw = bytes.ReplaceAll(raw, []byte("\r\n"), []byte("\n"))
	// go-mbox ends every message with a blank line of its own
	raw = bytes.TrimSuffix(raw, []byte("\n"))
	w, err := m.w.CreateMessage(from, date)
	if err != nil {
		return fmt.Errorf("mbox message: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("mbox message: %w", err)
	}
	m.count++
	return nil
}

// Count is the number of messages added.
func (m *MboxWriter) Count() int { return m.count }

// Flush pushes buffered messages to disk.
func (m *MboxWriter) Flush() error {
	if err := m.buf.Flush(); err != nil {
		return err
	}
	return m.f.Sync()
}

// Close terminates the mbox, releases the lock and closes the file.
func (m *MboxWriter) Close() error {
	err := m.w.Close()
	if ferr := m.buf.Flush(); err == nil {
		err = ferr
	}
	if uerr := m.unlock(); err == nil {
		err = uerr
	}
	if cerr := m.f.Close(); err == nil {
		err = cerr
	}
	return err
}

func envelope(raw []byte) (string, time.Time) {
	from, date := unknownSender, now()
	th, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil && !errors.Is(err, io.EOF) {
		return from, date
	}
	h := mail.Header{Header: message.Header{Header: th}}
	if addrs, err := h.AddressList("From"); err == nil && len(addrs) > 0 && addrs[0].Address != "" {
		from = addrs[0].Address
	}
	if t, err := h.Date(); err == nil && !t.IsZero() {
		date = t
	}
	return from, date
}
