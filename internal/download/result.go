package download

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Result is the report of a download: counters, skipped messages, timings
// and the log of what happened. Serialised, it is the download manifest.
type Result struct {
	ID         uuid.UUID
	Job        *Job
	Total      int
	Downloaded int
	Skipped    []uint32
	Logs       []string

	start time.Time
	end   time.Time
}

func NewResult(job *Job) *Result {
	return &Result{ID: uuid.New(), Job: job}
}

// DummyResult is a fixture used by tests and by the manifest command.
func DummyResult(mbox string) *Result {
	r := NewResult(DummyJob(mbox))
	r.SetStartTime(time.Date(1900, 1, 1, 12, 0, 0, 0, time.Local))
	r.SetEndTime(time.Date(1900, 1, 2, 18, 20, 0, 0, time.Local))
	r.Total = 8000
	r.Downloaded = 7998
	r.Skip(234)
	r.Skip(235)
	r.Logs = append(r.Logs, "1900-01-01 - Test 1", "1900-01-01 - Test 2", "1900-01-01 - Test 3")
	return r
}

// Begin resets the counters for a new download.
func (r *Result) Begin() {
	r.Total = 0
	r.Downloaded = 0
	r.Skipped = nil
	r.Logs = nil
	r.end = time.Time{}
	r.SetStartTime(now())
}

// Finish records the end of the download.
func (r *Result) Finish(total, downloaded int) {
	r.SetEndTime(now())
	r.Total = total
	r.Downloaded = downloaded
}

func (r *Result) StartTime() time.Time { return r.start }
func (r *Result) EndTime() time.Time   { return r.end }

// SetStartTime also sets the end time when it is still unset.
func (r *Result) SetStartTime(t time.Time) {
	t = t.Truncate(time.Second)
	if r.end.IsZero() {
		r.end = t
	}
	r.start = t
}

// SetEndTime also sets the start time when it is still unset.
func (r *Result) SetEndTime(t time.Time) {
	t = t.Truncate(time.Second)
	if r.start.IsZero() {
		r.start = t
	}
	r.end = t
}

// Duration formats the elapsed time as HH:MM:SS.
func (r *Result) Duration() string {
	if r.start.IsZero() || r.end.IsZero() {
		return "00:00:00"
	}
	secs := int(r.end.Sub(r.start).Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs%3600/60, secs%60)
}

// Skip records the sequence number of a message that could not be fetched.
func (r *Result) Skip(seq uint32) {
	r.Skipped = append(r.Skipped, seq)
}

// Logf appends a timestamped line to the download log.
func (r *Result) Logf(format string, args ...any) string {
	line := fmt.Sprintf("%s - %s", now().Format(timeLayout), fmt.Sprintf(format, args...))
	r.Logs = append(r.Logs, line)
	return line
}

// BagInfo renders bag-info.txt for a delivery of the downloaded mbox. oxum
// is omitted when empty.
func (r *Result) BagInfo(oxum string) string {
	var b strings.Builder
	if r.Job != nil {
		b.WriteString(r.Job.BagInfo(false))
		if r.Job.Folder != nil {
			desc := fmt.Sprintf("%d mails from folder '%s'", r.Downloaded, r.Job.Folder.Name())
			if years := r.Job.Years(); years != "" {
				desc += " in the years " + years
			}
			fmt.Fprintf(&b, "External-Description: %s\n", desc)
		}
	}
	if r.ID != uuid.Nil {
		fmt.Fprintf(&b, "External-Identifier: %s\n", r.ID)
	}
	if oxum != "" {
		fmt.Fprintf(&b, "Payload-Oxum: %s\n", oxum)
	}
	return b.String()
}

type timingsJSON struct {
	Start    string `json:"start"`
	End      string `json:"end"`
	Duration string `json:"duration"`
}

type statisticsJSON struct {
	Total      int      `json:"total"`
	Downloaded int      `json:"downloaded"`
	Skipped    []uint32 `json:"skipped"`
}

type resultJSON struct {
	ID         string         `json:"id,omitempty"`
	Date       string         `json:"date,omitempty"`
	Context    *Job           `json:"context"`
	Timings    *timingsJSON   `json:"timings,omitempty"`
	Statistics statisticsJSON `json:"statistics"`
	Logs       []string       `json:"logs"`
}

func (r *Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{
		Date:    now().Format(timeLayout),
		Context: r.Job,
		Statistics: statisticsJSON{
			Total:      r.Total,
			Downloaded: r.Downloaded,
			Skipped:    r.Skipped,
		},
		Logs: r.Logs,
	}
	if r.ID != uuid.Nil {
		out.ID = r.ID.String()
	}
	if out.Statistics.Skipped == nil {
		out.Statistics.Skipped = []uint32{}
	}
	if out.Logs == nil {
		out.Logs = []string{}
	}
	if !r.start.IsZero() {
		out.Timings = &timingsJSON{
			Start:    r.start.Format(timeLayout),
			End:      r.end.Format(timeLayout),
			Duration: r.Duration(),
		}
	}
	return json.Marshal(out)
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var in resultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if in.Context == nil {
		return errors.New("manifest has no context")
	}
	*r = Result{
		Job:        in.Context,
		Total:      in.Statistics.Total,
		Downloaded: in.Statistics.Downloaded,
		Skipped:    in.Statistics.Skipped,
		Logs:       in.Logs,
	}
	if in.ID != "" {
		id, err := uuid.Parse(in.ID)
		if err != nil {
			return fmt.Errorf("manifest id: %w", err)
		}
		r.ID = id
	}
	if in.Timings != nil {
		start, err := time.ParseInLocation(timeLayout, in.Timings.Start, time.Local)
		if err != nil {
			return fmt.Errorf("manifest start: %w", err)
		}
		end, err := time.ParseInLocation(timeLayout, in.Timings.End, time.Local)
		if err != nil {
			return fmt.Errorf("manifest end: %w", err)
		}
		r.start, r.end = start, end
	}
	return nil
}

// Save writes the manifest as indented JSON.
func (r *Result) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// LoadResult reads a manifest written by Save.
func LoadResult(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &r, nil
}
