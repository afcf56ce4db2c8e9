package server

import (
	"errors"
	"strings"
)

// Account holds the credentials of a mailbox. Only the login is ever
// serialised.
type Account struct {
	Name     string `json:"name"`
	Password string `json:"-"`
}

// DefaultAccount is a placeholder used when no login is known yet.
var DefaultAccount = Account{Name: "test@example.org"}

func (a Account) String() string {
	return a.Name
}

// ParseCredentials splits "user:password" at the first colon. The password
// may be empty when no colon is present.
func ParseCredentials(s string) (Account, error) {
	if s == "" {
		return Account{}, errors.New("empty credentials")
	}
	user, password, _ := strings.Cut(s, ":")
	if user == "" {
		return Account{}, errors.New("credentials need a user name")
	}
	return Account{Name: user, Password: password}, nil
}
