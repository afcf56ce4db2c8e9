package download

import (
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-imap"
)

// SearchCriteria selects the messages sent during the years [since, before].
// A zero bound is open; both zero selects ALL.
func SearchCriteria(since, before int) *imap.SearchCriteria {
	criteria := imap.NewSearchCriteria()
	if since != 0 {
		criteria.SentSince = time.Date(since, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	if before != 0 {
		// SENTBEFORE is exclusive, start of the next year keeps Dec 31.
		criteria.SentBefore = time.Date(before+1, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	return criteria
}

// DescribeSearch renders criteria the way they go on the wire, for logs.
func DescribeSearch(criteria *imap.SearchCriteria) string {
	var keys []string
	if !criteria.SentSince.IsZero() {
		keys = append(keys, fmt.Sprintf("SENTSINCE %q", criteria.SentSince.Format("02-Jan-2006")))
	}
	if !criteria.SentBefore.IsZero() {
		keys = append(keys, fmt.Sprintf("SENTBEFORE %q", criteria.SentBefore.Format("02-Jan-2006")))
	}
	if len(keys) == 0 {
		return "ALL"
	}
	return "(" + strings.Join(keys, " ") + ")"
}
