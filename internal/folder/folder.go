// Package folder models the folders of a remote mailbox. IMAP transmits
// folder names in modified UTF-7; a Folder keeps both forms so the wire
// name can be reused for commands and file names while the decoded name is
// shown to people.
package folder

import (
	"encoding/json"
	"fmt"
	"sort"
)

// UnknownCount marks a folder whose messages have not been counted.
const UnknownCount = -1

// Inbox is the wire name of the mandatory IMAP inbox.
const Inbox = "INBOX"

type Folder struct {
	name  string
	wire  string
	Count int
}

// New builds a folder from its wire name as returned by LIST.
func New(wire string) (*Folder, error) {
	name, err := Decode(wire)
	if err != nil {
		return nil, fmt.Errorf("folder %q: %w", wire, err)
	}
	return &Folder{name: name, wire: wire, Count: UnknownCount}, nil
}

// FromName builds a folder from a decoded name, typically typed by a user.
func FromName(name string) *Folder {
	f := &Folder{Count: UnknownCount}
	f.SetName(name)
	return f
}

func (f *Folder) Name() string { return f.name }

// WireName is the modified UTF-7 form.
func (f *Folder) WireName() string { return f.wire }

// SetName replaces the decoded name and recomputes the wire name.
func (f *Folder) SetName(name string) {
	f.name = name
	f.wire = Encode(name)
}

func (f *Folder) String() string {
	if f.Count == UnknownCount {
		return fmt.Sprintf("%-30s", f.name)
	}
	return fmt.Sprintf("%-30s (%5d)", f.name, f.Count)
}

// Less orders counted folders by descending count, others by name.
func (f *Folder) Less(other *Folder) bool {
	if f.Count != UnknownCount && f.Count != other.Count {
		return f.Count > other.Count
	}
	return f.name < other.name
}

// Sort orders folders in place, see Less.
func Sort(folders []*Folder) {
	sort.SliceStable(folders, func(i, j int) bool {
		return folders[i].Less(folders[j])
	})
}

type folderJSON struct {
	Name  string `json:"name"`
	Count *int   `json:"count,omitempty"`
}

func (f *Folder) MarshalJSON() ([]byte, error) {
	out := folderJSON{Name: f.name}
	if f.Count != UnknownCount {
		count := f.Count
		out.Count = &count
	}
	return json.Marshal(out)
}

func (f *Folder) UnmarshalJSON(data []byte) error {
	var in folderJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	f.SetName(in.Name)
	f.Count = UnknownCount
	if in.Count != nil {
		f.Count = *in.Count
	}
	return nil
}
