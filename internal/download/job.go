package download

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"donatemail/internal/folder"
	"donatemail/internal/server"
)

const (
	// DefaultTimeout is the per-command IMAP timeout, in minutes.
	DefaultTimeout = 10
	// DefaultThreshold is the number of messages fetched between two
	// preventive reconnections.
	DefaultThreshold = 2000
)

const timeLayout = "2006-01-02T15:04:05"

var now = time.Now

// Job describes what a download retrieves and from where. It is recorded in
// the manifest of the download.
type Job struct {
	Agent   string
	Server  *server.Server
	Account *server.Account
	Folder  *folder.Folder

	// YearSince and YearBefore bound the sent date, 0 meaning unbounded.
	YearSince  int
	YearBefore int

	Mbox      string
	Timeout   int
	Threshold int
}

// NewJob returns a job with default timeout and threshold.
func NewJob(srv *server.Server, acct *server.Account) *Job {
	return &Job{
		Server:    srv,
		Account:   acct,
		Timeout:   DefaultTimeout,
		Threshold: DefaultThreshold,
	}
}

// DummyJob is a fixture used by tests and by the manifest command.
func DummyJob(mbox string) *Job {
	srv := server.New("Yahoo", "imap.mail.yahoo.com")
	job := NewJob(&srv, &server.Account{Name: "example@example.org"})
	job.Agent = "TestAgent 0.1"
	job.Mbox = mbox
	job.Folder = folder.FromName("test")
	return job
}

func (j *Job) SetYears(since, before int) {
	j.YearSince = since
	j.YearBefore = before
}

// Years renders the year scope as "[since-before]", or "" when unbounded.
func (j *Job) Years() string {
	if j.YearSince == 0 && j.YearBefore == 0 {
		return ""
	}
	return fmt.Sprintf("[%s-%s]", yearString(j.YearSince), yearString(j.YearBefore))
}

func yearString(y int) string {
	if y == 0 {
		return ""
	}
	return fmt.Sprint(y)
}

// TimeoutDuration converts the timeout in minutes.
func (j *Job) TimeoutDuration() time.Duration {
	return time.Duration(j.Timeout) * time.Minute
}

// BagInfo renders the bag-info.txt lines describing the job.
func (j *Job) BagInfo(withDescription bool) string {
	var b strings.Builder
	if j.Agent != "" {
		fmt.Fprintf(&b, "Bag-Software-Agent: %s\n", j.Agent)
	}
	fmt.Fprintf(&b, "Bagging-Date: %s\n", now().Format("2006-01-02"))
	if j.Server != nil {
		fmt.Fprintf(&b, "Source-Organization: %s\n", j.Server.Name)
	}
	if j.Account != nil {
		fmt.Fprintf(&b, "Contact-Email: %s\n", j.Account.Name)
	}
	if withDescription && j.Folder != nil {
		desc := fmt.Sprintf("Mails from folder '%s'", j.Folder.Name())
		if years := j.Years(); years != "" {
			desc += " in the years " + years
		}
		fmt.Fprintf(&b, "External-Description: %s\n", desc)
	}
	return b.String()
}

type scopeJSON struct {
	YearBegin int `json:"year_begin,omitempty"`
	YearEnd   int `json:"year_end,omitempty"`
}

type jobJSON struct {
	Agent     string          `json:"agent"`
	Server    *server.Server  `json:"server,omitempty"`
	Account   *server.Account `json:"account,omitempty"`
	Folder    *folder.Folder  `json:"folder,omitempty"`
	Scope     *scopeJSON      `json:"scope,omitempty"`
	Mbox      string          `json:"mbox"`
	Timeout   int             `json:"timeout"`
	Threshold int             `json:"threshold"`
}

func (j *Job) MarshalJSON() ([]byte, error) {
	out := jobJSON{
		Agent:     j.Agent,
		Server:    j.Server,
		Account:   j.Account,
		Folder:    j.Folder,
		Timeout:   j.Timeout,
		Threshold: j.Threshold,
	}
	if j.Mbox != "" {
		out.Mbox = filepath.Base(j.Mbox)
	}
	if j.YearSince != 0 || j.YearBefore != 0 {
		out.Scope = &scopeJSON{YearBegin: j.YearSince, YearEnd: j.YearBefore}
	}
	return json.Marshal(out)
}

func (j *Job) UnmarshalJSON(data []byte) error {
	var in jobJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*j = Job{
		Agent:     in.Agent,
		Server:    in.Server,
		Account:   in.Account,
		Folder:    in.Folder,
		Mbox:      in.Mbox,
		Timeout:   in.Timeout,
		Threshold: in.Threshold,
	}
	if in.Scope != nil {
		j.SetYears(in.Scope.YearBegin, in.Scope.YearEnd)
	}
	if j.Timeout == 0 {
		j.Timeout = DefaultTimeout
	}
	if j.Threshold == 0 {
		j.Threshold = DefaultThreshold
	}
	return nil
}
