package progress

import (
	"fmt"
	"io"
	"sync"

	"github.com/cheggaaa/pb"
)

// Units selects how a Bar renders its counters.
type Units int

const (
	Count Units = iota
	Bytes
)

// Bar drives a terminal progress bar from progress events. Warnings and
// errors are printed under the bar.
func Bar(w io.Writer, units Units) Func {
	var (
		mu  sync.Mutex
		bar *pb.ProgressBar
	)
	finish := func(msg string) {
		if bar == nil {
			if msg != "" {
				_, _ = fmt.Fprintln(w, msg)
			}
			return
		}
		if msg != "" {
			bar.FinishPrint(msg)
		} else {
			bar.Finish()
		}
		bar = nil
	}
	return func(status Status, n, total int64, msg string) {
		mu.Lock()
		defer mu.Unlock()
		switch status {
		case Start:
			finish("")
			bar = pb.New64(total)
			bar.Output = w
			if units == Bytes {
				bar.SetUnits(pb.U_BYTES)
			}
			if msg != "" {
				bar.Prefix(msg + " ")
			}
			bar.Set64(n)
			bar.Start()
		case Running:
			if bar != nil {
				bar.Set64(n)
			}
		case Warning:
			_, _ = fmt.Fprintln(w, "warning: "+msg)
		case Error:
			finish("error: " + msg)
		case Complete:
			if bar != nil {
				bar.Set64(n)
			}
			finish(msg)
		}
	}
}
