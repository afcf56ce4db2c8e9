package download

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"

	"donatemail/internal/folder"
)

// Characters some file systems refuse. Folder wire names are printable
// ASCII, so these are the only ones to replace.
var reUnsafe = regexp.MustCompile(`[\\:*?"<>|]`)

// MboxPath is <outdir>/<wire name>.mbox. Parent directories are created
// since hierarchical folders map to sub-directories.
func MboxPath(outdir string, f *folder.Folder) (string, error) {
	return destination(outdir, f, ".mbox")
}

// ManifestPath is <outdir>/<wire name>.json.
func ManifestPath(outdir string, f *folder.Folder) (string, error) {
	return destination(outdir, f, ".json")
}

func destination(outdir string, f *folder.Folder, ext string) (string, error) {
	// the wire name keeps file names portable whatever the folder language
	name := reUnsafe.ReplaceAllString(f.WireName(), "_")
	rel := filepath.FromSlash(path.Clean("/" + name + ext))
	dest := filepath.Join(outdir, rel)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", filepath.Dir(dest), err)
	}
	return dest, nil
}

// EMLPath names the file of one message in EML mode.
func EMLPath(dir string, seq uint32) string {
	return filepath.Join(dir, fmt.Sprintf("m_%08d.eml", seq))
}

// RemoveEMLFiles deletes the *.eml files of dir.
func RemoveEMLFiles(dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.eml"))
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := os.Remove(f); err != nil {
			return err
		}
	}
	return nil
}
