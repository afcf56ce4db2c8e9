package folder

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/emersion/go-imap/utf7"
)

// ErrInvalidUTF7 reports a mailbox name that is not valid modified UTF-7.
var ErrInvalidUTF7 = errors.New("invalid modified UTF-7")

var (
	reNonPrintable = regexp.MustCompile(`[^\x20-\x7e]`)
	reUnclosed     = regexp.MustCompile(`&[^-]*(&.*$|$)`)
	reBadBase64    = regexp.MustCompile(`&[A-Za-z0-9+,]*[^\-A-Za-z0-9+,]`)
	reNullShift    = regexp.MustCompile(`&[^-&]+-&[^-&]+-`)
)

// Decode converts an IMAP mailbox name (RFC 3501 section 5.1.3) to UTF-8.
func Decode(wire string) (string, error) {
	if err := validate(wire); err != nil {
		return "", err
	}
	name, err := utf7.Encoding.NewDecoder().String(wire)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidUTF7, err)
	}
	return name, nil
}

// Encode converts a UTF-8 name to its modified UTF-7 wire form.
func Encode(name string) string {
	wire, err := utf7.Encoding.NewEncoder().String(name)
	if err != nil {
		// the encoder only fails on invalid UTF-8
		return name
	}
	return wire
}

func validate(wire string) error {
	switch {
	case reNonPrintable.MatchString(wire):
		return fmt.Errorf("%w: invalid character", ErrInvalidUTF7)
	case reUnclosed.MatchString(wire):
		return fmt.Errorf("%w: base64 section is not closed", ErrInvalidUTF7)
	case reBadBase64.MatchString(wire):
		return fmt.Errorf("%w: invalid base64 character", ErrInvalidUTF7)
	case reNullShift.MatchString(wire):
		return fmt.Errorf("%w: null shifts are not permitted", ErrInvalidUTF7)
	}
	return nil
}
