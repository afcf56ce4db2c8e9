package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"donatemail/internal/delivery"
	"donatemail/internal/download"
	"donatemail/internal/folder"
	"donatemail/internal/prefs"
	"donatemail/internal/progress"
)

type serversCmd struct {
	app *App
}

func (c *serversCmd) Execute(_ []string) error {
	for _, name := range c.app.servers.Names() {
		srv, _ := c.app.servers.Get(name)
		fmt.Fprintln(c.app.Stdout, srv)
	}
	return nil
}

type foldersCmd struct {
	Connection
	Counts bool `short:"c" long:"counts" description:"Count the messages and sort the folders by size"`

	app *App
}

func (c *foldersCmd) Execute(_ []string) error {
	dl, err := c.app.downloader(c.Connection)
	if err != nil {
		return err
	}
	defer dl.Logout()

	if err := dl.ListFolders(c.app.ctx, c.Counts, c.app.progress(progress.Count)); err != nil {
		return err
	}
	c.app.rememberAccount(dl)
	folder.Sort(dl.Folders)
	for _, f := range dl.Folders {
		fmt.Fprintln(c.app.Stdout, f)
	}
	return nil
}

// Scope restricts a retrieval to a range of years.
type Scope struct {
	Since  int `long:"since" description:"First year to retrieve"`
	Before int `long:"before" description:"Last year to retrieve"`
}

func (s Scope) validate() error {
	if s.Since < 0 || s.Before < 0 {
		return errors.New("years must be positive")
	}
	if s.Since != 0 && s.Before != 0 && s.Since > s.Before {
		return fmt.Errorf("--since %d is after --before %d", s.Since, s.Before)
	}
	return nil
}

type retrieveCmd struct {
	Connection
	Scope
	Folder    string `short:"f" long:"folder" required:"true" description:"Folder to retrieve"`
	Output    string `short:"o" long:"output" required:"true" description:"mbox file, or directory of EML files"`
	Timeout   int    `long:"timeout" default:"10" description:"IMAP command timeout, in minutes"`
	Threshold int    `long:"threshold" default:"2000" description:"Messages fetched between two reconnections"`
	Manifest  bool   `long:"manifest" description:"Write the download manifest next to the mbox"`

	app *App
}

func (c *retrieveCmd) Execute(_ []string) error {
	if err := c.Scope.validate(); err != nil {
		return err
	}
	dl, err := c.app.downloader(c.Connection)
	if err != nil {
		return err
	}
	defer dl.Logout()
	job := dl.Job()
	if c.Timeout > 0 {
		job.Timeout = c.Timeout
	}
	if c.Threshold > 0 {
		job.Threshold = c.Threshold
	}
	f := folder.FromName(c.Folder)

	if !strings.EqualFold(filepath.Ext(c.Output), ".mbox") {
		if err := os.MkdirAll(c.Output, 0o755); err != nil {
			return err
		}
		if err := download.RemoveEMLFiles(c.Output); err != nil {
			return fmt.Errorf("clean %s: %w", c.Output, err)
		}
		if err := dl.FetchEML(c.app.ctx, c.Output, f, c.app.progress(progress.Count)); err != nil {
			return err
		}
		c.app.rememberAccount(dl)
		fmt.Fprintf(c.app.Stdout, "Folder %s retrieved in %s\n", f.Name(), c.Output)
		return nil
	}

	if dir := filepath.Dir(c.Output); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := dl.FetchMbox(c.app.ctx, c.Output, f, c.Since, c.Before, c.app.progress(progress.Count)); err != nil {
		return err
	}
	c.app.rememberAccount(dl)
	result := dl.Result()
	if c.Manifest {
		path := strings.TrimSuffix(c.Output, filepath.Ext(c.Output)) + ".json"
		if err := result.Save(path); err != nil {
			return fmt.Errorf("write manifest: %w", err)
		}
		log.Info().Str("manifest", path).Msg("manifest written")
	}
	printSummary(c.app, result)
	return nil
}

func printSummary(a *App, r *download.Result) {
	fmt.Fprintf(a.Stdout, "%d/%d mails retrieved in %s", r.Downloaded, r.Total, r.Duration())
	if len(r.Skipped) > 0 {
		fmt.Fprintf(a.Stdout, ", %d skipped %v", len(r.Skipped), r.Skipped)
	}
	fmt.Fprintln(a.Stdout)
}

type deliverCmd struct {
	Input    string `short:"i" long:"input" required:"true" description:"mbox file to package"`
	Manifest string `short:"m" long:"manifest" description:"Download manifest describing the mbox"`
	Output   string `short:"o" long:"output" description:"ZIP file to write"`
	Dir      string `short:"d" long:"dir" description:"Directory receiving a timestamped delivery ZIP"`
	Clean    bool   `long:"clean" description:"Remove the mbox once packaged"`
	Verify   bool   `long:"verify" description:"Check the checksums of the written bag"`

	app *App
}

func (c *deliverCmd) Execute(_ []string) error {
	var info delivery.Info
	if c.Manifest != "" {
		r, err := download.LoadResult(c.Manifest)
		if err != nil {
			return err
		}
		info = r
	}

	dest := c.Output
	if dest == "" {
		dir := c.Dir
		if dir == "" {
			dir = "."
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		dest = delivery.DeliveryName(dir, now())
	}
	return c.app.deliver(delivery.New(dest, c.Input, info), c.Verify, c.Clean)
}

func (a *App) deliver(d *delivery.Delivery, verify, clean bool) error {
	if _, err := d.Build(a.progress(progress.Bytes)); err != nil {
		return fmt.Errorf("delivery %s: %w", d.DestZip, err)
	}
	if verify {
		report, err := delivery.Verify(d.DestZip)
		if err != nil {
			return err
		}
		log.Info().Str("zip", d.DestZip).Int64("bytes", report.Bytes).Msg("bag verified")
	}
	if clean {
		d.Clean()
	}
	fmt.Fprintf(a.Stdout, "Delivery ready: %s\n", d.DestZip)
	return nil
}

type manifestCmd struct {
	Input  string `short:"i" long:"input" description:"Manifest to read, a sample one when missing"`
	Output string `short:"o" long:"output" description:"Write the manifest back as JSON"`
	Mbox   string `long:"mbox" default:"test.mbox" description:"mbox name of the sample manifest"`

	app *App
}

func (c *manifestCmd) Execute(_ []string) error {
	var (
		r   *download.Result
		err error
	)
	if c.Input != "" {
		if r, err = download.LoadResult(c.Input); err != nil {
			return err
		}
	} else {
		r = download.DummyResult(c.Mbox)
	}
	fmt.Fprint(c.app.Stdout, r.BagInfo(""))
	if c.Output != "" {
		return r.Save(c.Output)
	}
	return nil
}

type donateCmd struct {
	Connection
	Scope
	Folder      string `short:"f" long:"folder" required:"true" description:"Folder to donate"`
	WorkDir     string `long:"workdir" description:"Directory receiving the mbox during the retrieval"`
	DeliveryDir string `long:"deliverydir" description:"Directory receiving the delivery ZIP"`
	Keep        bool   `long:"keep" description:"Keep the mbox and the manifest in the work directory"`

	app *App
}

func (c *donateCmd) Execute(_ []string) error {
	if err := c.Scope.validate(); err != nil {
		return err
	}
	p, err := c.app.preferences()
	if err != nil {
		return err
	}
	work := c.WorkDir
	if work == "" {
		work = p.GetOr(prefs.WorkDir, os.TempDir())
	}
	deliveries := c.DeliveryDir
	if deliveries == "" {
		deliveries = p.GetOr(prefs.DeliveryDir, "tmp")
	}
	for _, dir := range []string{work, deliveries} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	c.app.savePrefs(map[string]string{prefs.WorkDir: work, prefs.DeliveryDir: deliveries})

	dl, err := c.app.downloader(c.Connection)
	if err != nil {
		return err
	}
	defer dl.Logout()

	f := folder.FromName(c.Folder)
	mboxPath, err := download.MboxPath(work, f)
	if err != nil {
		return err
	}
	if err := dl.FetchMbox(c.app.ctx, mboxPath, f, c.Since, c.Before, c.app.progress(progress.Count)); err != nil {
		return err
	}
	dl.Logout()
	c.app.rememberAccount(dl)

	result := dl.Result()
	printSummary(c.app, result)
	if result.Downloaded == 0 {
		_ = os.Remove(mboxPath)
		return fmt.Errorf("no mail retrieved from folder %s", f.Name())
	}
	manifestPath, err := download.ManifestPath(work, f)
	if err != nil {
		return err
	}
	if err := result.Save(manifestPath); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	d := delivery.New(delivery.DeliveryName(deliveries, now()), mboxPath, result)
	if err := c.app.deliver(d, true, !c.Keep); err != nil {
		return err
	}
	if !c.Keep {
		_ = os.Remove(manifestPath)
	}
	return nil
}
