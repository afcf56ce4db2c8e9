// Package delivery packages a downloaded mbox as a BagIt 1.0 bag stored in a
// ZIP archive.
package delivery

import (
	"archive/zip"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"donatemail/internal/download"
	"donatemail/internal/progress"
)

const (
	chunkSize = 16 << 20

	bagitName       = "bagit.txt"
	manifestName    = "manifest-md5.txt"
	bagInfoName     = "bag-info.txt"
	tagManifestName = "tagmanifest-md5.txt"

	bagitContent = "BagIt-Version: 1.0\nTag-File-Character-Encoding: UTF-8\n"
)

var now = time.Now

// Info renders the content of bag-info.txt. oxum is the Payload-Oxum value.
type Info interface {
	BagInfo(oxum string) string
}

// JobInfo describes a bag from the download job alone, when no manifest of
// the download is available.
type JobInfo struct {
	Job *download.Job
}

func (j JobInfo) BagInfo(oxum string) string {
	s := j.Job.BagInfo(true)
	if oxum != "" {
		s += fmt.Sprintf("Payload-Oxum: %s\n", oxum)
	}
	return s
}

type minimalInfo struct{}

func (minimalInfo) BagInfo(oxum string) string {
	return fmt.Sprintf("Bagging-Date: %s\nPayload-Oxum: %s\n", now().Format("2006-01-02"), oxum)
}

// Delivery turns one mbox file into a bag.
type Delivery struct {
	DestZip string
	SrcMbox string
	info    Info
}

// New prepares the delivery of srcMbox into destZip. A nil info writes a
// bag-info.txt with the date and the payload size only.
func New(destZip, srcMbox string, info Info) *Delivery {
	if info == nil {
		info = minimalInfo{}
	}
	return &Delivery{DestZip: destZip, SrcMbox: srcMbox, info: info}
}

// DeliveryName is the path of a delivery made at t in dir.
func DeliveryName(dir string, t time.Time) string {
	return filepath.Join(dir, "delivery_"+t.Format("20060102150405")+".zip")
}

// DataName is the path of the payload inside the bag.
func (d *Delivery) DataName() string {
	return path.Join("data", filepath.Base(d.SrcMbox))
}

// Build writes the bag and returns the number of entries of the archive.
// The partial archive is removed when it fails.
func (d *Delivery) Build(report progress.Func) (int, error) {
	st, err := os.Stat(d.SrcMbox)
	if err != nil {
		report.Emit(progress.Error, 0, 0, err.Error())
		return 0, err
	}
	size := st.Size()
	report.Emit(progress.Start, 0, size, "")

	count, err := d.build(size, report)
	if err != nil {
		log.Error().Err(err).Str("zip", d.DestZip).Msg("delivery failed")
		_ = os.Remove(d.DestZip)
		report.Emit(progress.Error, 0, 0, err.Error())
		return count, err
	}
	report.Emit(progress.Complete, size, size, "")
	log.Info().Str("zip", d.DestZip).Int("entries", count).Int64("bytes", size).Msg("delivery ready")
	return count, nil
}

func (d *Delivery) build(size int64, report progress.Func) (count int, err error) {
	f, err := os.Create(d.DestZip)
	if err != nil {
		return 0, err
	}
	zw := zip.NewWriter(f)
	defer func() {
		if cerr := zw.Close(); err == nil {
			err = cerr
		}
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	tags := make(map[string]string)
	writeTag := func(name, content string) error {
		if err := writeStored(zw, name, content); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
		tags[name] = md5Hex([]byte(content))
		count++
		return nil
	}

	if err := writeTag(bagitName, bagitContent); err != nil {
		return count, err
	}

	sum, err := d.writePayload(zw, size, report)
	if err != nil {
		return count, fmt.Errorf("write %s: %w", d.DataName(), err)
	}
	count++

	if err := writeTag(manifestName, fmt.Sprintf("%s %s\n", sum, d.DataName())); err != nil {
		return count, err
	}
	if err := writeTag(bagInfoName, d.info.BagInfo(fmt.Sprintf("%d.1", size))); err != nil {
		return count, err
	}

	tagManifest := ""
	for _, name := range []string{bagitName, manifestName, bagInfoName} {
		tagManifest += fmt.Sprintf("%s %s\n", tags[name], name)
	}
	if err := writeTag(tagManifestName, tagManifest); err != nil {
		return count, err
	}
	return count, nil
}

func (d *Delivery) writePayload(zw *zip.Writer, size int64, report progress.Func) (string, error) {
	src, err := os.Open(d.SrcMbox)
	if err != nil {
		return "", err
	}
	defer src.Close()

	// zip64 records are added on close when the payload needs them
	w, err := zw.CreateHeader(header(d.DataName(), zip.Deflate))
	if err != nil {
		return "", err
	}

	sum := md5.New()
	buf := make([]byte, chunkSize)
	var done int64
	msg := "current: " + d.DataName()
	for {
		n, rerr := io.ReadFull(src, buf)
		if n > 0 {
			sum.Write(buf[:n])
			if _, err := w.Write(buf[:n]); err != nil {
				return "", err
			}
			done += int64(n)
			report.Emit(progress.Running, done, size, msg)
		}
		if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
			break
		}
		if rerr != nil {
			return "", rerr
		}
	}
	return hex.EncodeToString(sum.Sum(nil)), nil
}

// Clean removes the source mbox.
func (d *Delivery) Clean() {
	if err := os.Remove(d.SrcMbox); err != nil {
		log.Debug().Err(err).Str("mbox", d.SrcMbox).Msg("clean")
	}
}

func header(name string, method uint16) *zip.FileHeader {
	h := &zip.FileHeader{Name: name, Method: method, Modified: now()}
	h.SetMode(0o666)
	return h
}

func writeStored(zw *zip.Writer, name, content string) error {
	w, err := zw.CreateHeader(header(name, zip.Store))
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, content)
	return err
}

func md5Hex(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}
