package delivery

import (
	"archive/zip"
	"bufio"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrInvalidBag is wrapped by every Verify failure.
var ErrInvalidBag = errors.New("invalid bag")

// Report is what Verify learned about a bag.
type Report struct {
	Payload map[string]string
	Bytes   int64
	BagInfo map[string]string
}

// Verify reopens a delivery and checks the payload and tag checksums
// against the manifests, and Payload-Oxum against the payload.
func Verify(zipPath string) (*Report, error) {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	bagit, err := readEntry(files, bagitName)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(bagit, "BagIt-Version: ") {
		return nil, fmt.Errorf("%w: bad %s", ErrInvalidBag, bagitName)
	}

	manifest, err := readEntry(files, manifestName)
	if err != nil {
		return nil, err
	}
	payload, err := parseManifest(manifest)
	if err != nil {
		return nil, err
	}

	report := &Report{Payload: payload, BagInfo: map[string]string{}}
	for name, want := range payload {
		got, n, err := checksum(files, name)
		if err != nil {
			return nil, err
		}
		if got != want {
			return nil, fmt.Errorf("%w: %s checksum %s, manifest says %s", ErrInvalidBag, name, got, want)
		}
		report.Bytes += n
	}
	for name := range files {
		if _, ok := payload[name]; strings.HasPrefix(name, "data/") && !ok {
			return nil, fmt.Errorf("%w: %s is not in %s", ErrInvalidBag, name, manifestName)
		}
	}

	if info, err := readEntry(files, bagInfoName); err == nil {
		report.BagInfo = parseBagInfo(info)
	}
	if oxum, ok := report.BagInfo["Payload-Oxum"]; ok {
		want := fmt.Sprintf("%d.%d", report.Bytes, len(payload))
		if oxum != want {
			return nil, fmt.Errorf("%w: Payload-Oxum %s, payload is %s", ErrInvalidBag, oxum, want)
		}
	}

	if tm, err := readEntry(files, tagManifestName); err == nil {
		tags, err := parseManifest(tm)
		if err != nil {
			return nil, err
		}
		for name, want := range tags {
			got, _, err := checksum(files, name)
			if err != nil {
				return nil, err
			}
			if got != want {
				return nil, fmt.Errorf("%w: %s checksum %s, tag manifest says %s", ErrInvalidBag, name, got, want)
			}
		}
	}
	return report, nil
}

func readEntry(files map[string]*zip.File, name string) (string, error) {
	f, ok := files[name]
	if !ok {
		return "", fmt.Errorf("%w: missing %s", ErrInvalidBag, name)
	}
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	return string(b), err
}

func checksum(files map[string]*zip.File, name string) (string, int64, error) {
	f, ok := files[name]
	if !ok {
		return "", 0, fmt.Errorf("%w: missing %s", ErrInvalidBag, name)
	}
	rc, err := f.Open()
	if err != nil {
		return "", 0, err
	}
	defer rc.Close()
	h := md5.New()
	n, err := io.Copy(h, rc)
	if err != nil {
		return "", 0, fmt.Errorf("read %s: %w", name, err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

func parseManifest(content string) (map[string]string, error) {
	out := make(map[string]string)
	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		sum, name, ok := strings.Cut(line, " ")
		name = strings.TrimSpace(name)
		if !ok || len(sum) != 2*md5.Size || name == "" {
			return nil, fmt.Errorf("%w: manifest line %q", ErrInvalidBag, line)
		}
		out[name] = strings.ToLower(sum)
	}
	return out, sc.Err()
}

func parseBagInfo(content string) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(content, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		out[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return out
}
