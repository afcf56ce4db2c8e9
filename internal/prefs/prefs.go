// Package prefs persists the small set of choices a user makes between two
// runs: last server, last login and working directories.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Keys remembered between runs.
const (
	WorkDir     = "WorkDir"
	DeliveryDir = "DeliveryDir"
	LastServer  = "LastServer"
	LastLogin   = "LastLogin"
)

type Preferences struct {
	dir    string
	file   string
	values map[string]string
}

// Open loads the preferences of app from the user configuration directory
// (~/.config/<app> on Linux, %AppData%\<app> on Windows).
func Open(app string) (*Preferences, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("locate config dir: %w", err)
	}
	return OpenDir(filepath.Join(base, app), app)
}

// OpenDir loads <dir>/<app>.pref, creating dir if needed. A missing file
// yields empty preferences.
func OpenDir(dir, app string) (*Preferences, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	p := &Preferences{
		dir:    dir,
		file:   filepath.Join(dir, app+".pref"),
		values: map[string]string{},
	}
	data, err := os.ReadFile(p.file)
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &p.values); err != nil {
		return nil, fmt.Errorf("decode %s: %w", p.file, err)
	}
	return p, nil
}

// Path is the preference file location.
func (p *Preferences) Path() string { return p.file }

// Dir is the application configuration directory.
func (p *Preferences) Dir() string { return p.dir }

func (p *Preferences) Get(key string) string {
	return p.values[key]
}

// GetOr returns the stored value or def when unset.
func (p *Preferences) GetOr(key, def string) string {
	if v, ok := p.values[key]; ok && v != "" {
		return v
	}
	return def
}

func (p *Preferences) Set(key, value string) {
	p.values[key] = value
}

// Keys lists the stored keys in order.
func (p *Preferences) Keys() []string {
	keys := make([]string, 0, len(p.values))
	for k := range p.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Save writes the preferences atomically.
func (p *Preferences) Save() error {
	data, err := json.MarshalIndent(p.values, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return replaceFile(p.file, data, 0o600)
}
