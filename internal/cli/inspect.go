package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-mbox"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	readability "github.com/go-shiori/go-readability"
	"github.com/rs/zerolog/log"

	"donatemail/internal/lock"
)

const excerptLength = 160

type inspectCmd struct {
	Input   string `short:"i" long:"input" required:"true" description:"mbox file to read"`
	Excerpt bool   `short:"x" long:"excerpt" description:"Show the beginning of the text of each message"`

	app *App
}

// Summary describes one message of an mbox.
type Summary struct {
	Date    time.Time
	From    string
	Subject string
	Excerpt string
}

func (s Summary) String() string {
	date := "????-??-?? ??:??"
	if !s.Date.IsZero() {
		date = s.Date.Format("2006-01-02 15:04")
	}
	return fmt.Sprintf("%s  %-30s  %s", date, s.From, s.Subject)
}

func (c *inspectCmd) Execute(_ []string) error {
	f, err := os.Open(c.Input)
	if err != nil {
		return err
	}
	defer f.Close()
	// a locked mbox is still being written by a retrieval
	unlock, err := lock.Exclusive(f)
	if err != nil {
		return fmt.Errorf("%s: %w", c.Input, err)
	}
	defer unlock()

	n, err := Inspect(f, c.Excerpt, func(i int, s Summary) {
		fmt.Fprintf(c.app.Stdout, "%5d  %s\n", i, s)
		if s.Excerpt != "" {
			fmt.Fprintf(c.app.Stdout, "       %s\n", s.Excerpt)
		}
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.app.Stdout, "%d messages\n", n)
	return nil
}

// Inspect reads the messages of an mbox and calls fn for each one, numbered
// from 1. Messages that cannot be parsed are reported without details.
func Inspect(r io.Reader, excerpt bool, fn func(int, Summary)) (int, error) {
	mr := mbox.NewReader(r)
	n := 0
	for {
		msg, err := mr.NextMessage()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("message %d: %w", n+1, err)
		}
		n++
		s, err := summarize(msg, excerpt)
		if err != nil {
			log.Debug().Err(err).Int("message", n).Msg("unreadable message")
		}
		fn(n, s)
	}
}

func summarize(r io.Reader, excerpt bool) (Summary, error) {
	var s Summary
	mr, err := mail.CreateReader(r)
	if err != nil {
		return s, err
	}
	defer mr.Close()

	h := mr.Header
	s.Date, _ = h.Date()
	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		s.From = from[0].Address
	}
	s.Subject, _ = h.Subject()
	if !excerpt {
		return s, nil
	}

	for s.Excerpt == "" {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return s, err
		}
		ih, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := ih.ContentType()
		switch ct {
		case "text/plain":
			b, err := io.ReadAll(p.Body)
			if err != nil {
				return s, err
			}
			s.Excerpt = shorten(string(b))
		case "text/html":
			article, err := readability.FromReader(p.Body, nil)
			if err != nil {
				return s, err
			}
			s.Excerpt = shorten(article.TextContent)
		}
	}
	return s, nil
}

// shorten folds white space and cuts text to excerptLength runes.
func shorten(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= excerptLength {
		return text
	}
	return string(runes[:excerptLength]) + "..."
}
