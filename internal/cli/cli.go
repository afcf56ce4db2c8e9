// Package cli implements the donatemail command line: listing the folders
// of a webmail account, retrieving one of them and packaging it for an
// archive.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	flags "github.com/jessevdk/go-flags"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"donatemail/internal/download"
	"donatemail/internal/prefs"
	"donatemail/internal/progress"
	"donatemail/internal/server"
)

const (
	appName           = "donatemail"
	defaultConfigName = appName + ".ini"
)

// Version is reported in the Bag-Software-Agent tag.
var Version = "1.0.0"

var now = time.Now

// Options are the application options, shared by every command.
type Options struct {
	Verbose bool   `short:"v" long:"verbose" description:"Log debug messages"`
	Config  string `short:"C" long:"config" description:"INI file with default option values"`
	Servers string `long:"servers" description:"JSON file replacing the list of known servers"`
}

// App holds what the commands share. The zero value is not usable, see
// NewApp.
type App struct {
	Options

	Stdout io.Writer
	Stderr io.Writer

	// Dialer opens IMAP sessions, download.IMAPDialer by default.
	Dialer download.Dialer
	// DownloadOptions are passed to every Downloader.
	DownloadOptions []download.Option
	// PrefsDir overrides the user configuration directory.
	PrefsDir string
	// Getenv reads the environment.
	Getenv func(string) string
	// ReadPassword asks for a password without echo.
	ReadPassword func(prompt string) (string, error)
	// Interactive draws progress bars instead of progress lines.
	Interactive bool

	ctx     context.Context
	servers *server.Servers
	prefs   *prefs.Preferences
}

// NewApp returns an App wired to the process standard streams.
func NewApp() *App {
	return &App{
		Stdout:       os.Stdout,
		Stderr:       os.Stderr,
		Dialer:       download.IMAPDialer,
		Getenv:       os.Getenv,
		ReadPassword: terminalPassword,
		Interactive:  term.IsTerminal(int(os.Stderr.Fd())),
	}
}

// Run parses args and executes the selected command.
func Run(ctx context.Context, args []string) error {
	return NewApp().Run(ctx, args)
}

func (a *App) Run(ctx context.Context, args []string) error {
	a.ctx = ctx
	parser := a.parser()

	if cfg := a.configFile(args); cfg != "" {
		if err := flags.NewIniParser(parser).ParseFile(cfg); err != nil {
			return fmt.Errorf("config %s: %w", cfg, err)
		}
	}

	_, err := parser.ParseArgs(args)
	var ferr *flags.Error
	if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
		_, _ = fmt.Fprintln(a.Stdout, ferr.Message)
		return nil
	}
	return err
}

func (a *App) parser() *flags.Parser {
	p := flags.NewNamedParser(appName, flags.HelpFlag|flags.PassDoubleDash)
	_, _ = p.AddGroup("Application Options", "", &a.Options)

	add := func(name, short, long string, cmd flags.Commander) {
		if _, err := p.AddCommand(name, short, long, cmd); err != nil {
			panic(fmt.Sprintf("command %s: %v", name, err))
		}
	}
	add("servers", "List the known servers", "", &serversCmd{app: a})
	add("folders", "List the folders of a mailbox",
		"List the folders that can be donated, largest first with --counts.", &foldersCmd{app: a})
	add("retrieve", "Retrieve a folder",
		"Retrieve a folder into an mbox file (output ending in .mbox) or a directory of EML files.", &retrieveCmd{app: a})
	add("deliver", "Package an mbox as a BagIt ZIP", "", &deliverCmd{app: a})
	add("manifest", "Show the bag-info of a download manifest", "", &manifestCmd{app: a})
	add("inspect", "List the messages of an mbox", "", &inspectCmd{app: a})
	add("donate", "Retrieve a folder and package it",
		"Retrieve a folder in the work directory and build the delivery ZIP in the delivery directory.", &donateCmd{app: a})

	p.CommandHandler = func(cmd flags.Commander, args []string) error {
		if cmd == nil {
			return nil
		}
		if err := a.setup(); err != nil {
			return err
		}
		return cmd.Execute(args)
	}
	return p
}

// configFile pre-parses args for --config. Without it, donatemail.ini in the
// configuration directory is used when present.
func (a *App) configFile(args []string) string {
	var pre Options
	p := flags.NewNamedParser(appName, flags.IgnoreUnknown)
	_, _ = p.AddGroup("Application Options", "", &pre)
	_, _ = p.ParseArgs(args)
	if pre.Config != "" {
		return pre.Config
	}
	dir, err := a.configDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(dir, defaultConfigName)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

func (a *App) configDir() (string, error) {
	if a.PrefsDir != "" {
		return a.PrefsDir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, appName), nil
}

func (a *App) setup() error {
	level := zerolog.InfoLevel
	if a.Verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if a.Options.Servers != "" {
		servers, err := server.LoadFile(a.Options.Servers)
		if err != nil {
			return err
		}
		a.servers = servers
		log.Debug().Str("file", a.Options.Servers).Strs("servers", servers.Names()).Msg("servers loaded")
	} else {
		a.servers = server.Default()
	}
	return nil
}

func (a *App) preferences() (*prefs.Preferences, error) {
	if a.prefs != nil {
		return a.prefs, nil
	}
	var (
		p   *prefs.Preferences
		err error
	)
	if a.PrefsDir != "" {
		p, err = prefs.OpenDir(a.PrefsDir, appName)
	} else {
		p, err = prefs.Open(appName)
	}
	if err != nil {
		return nil, err
	}
	a.prefs = p
	return p, nil
}

// savePrefs stores values and logs failures, preferences are a convenience.
func (a *App) savePrefs(values map[string]string) {
	p, err := a.preferences()
	if err != nil {
		log.Warn().Err(err).Msg("preferences not saved")
		return
	}
	for k, v := range values {
		if v != "" {
			p.Set(k, v)
		}
	}
	if err := p.Save(); err != nil {
		log.Warn().Err(err).Str("file", p.Path()).Msg("preferences not saved")
	}
}

func (a *App) progress(units progress.Units) progress.Func {
	if a.Interactive {
		return progress.Bar(a.Stderr, units)
	}
	return progress.Printer(a.Stderr)
}

func (a *App) agent() string {
	return fmt.Sprintf("Donatemail %s", Version)
}

func terminalPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no password given and standard input is not a terminal")
	}
	_, _ = fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	_, _ = fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}
