// Package progress reports the advance of long running operations such as
// a folder download or the packaging of a delivery.
package progress

import (
	"fmt"
	"io"
	"sync"
)

// Status is the kind of a progress event.
type Status string

const (
	Start    Status = "start"
	Running  Status = "running"
	Warning  Status = "warning"
	Error    Status = "error"
	Complete Status = "complete"
)

// Func receives progress events. n and total are message counts or byte
// counts depending on the operation.
type Func func(status Status, n, total int64, msg string)

// Emit calls fn when it is set.
func (fn Func) Emit(status Status, n, total int64, msg string) {
	if fn != nil {
		fn(status, n, total, msg)
	}
}

// Percent is n relative to total, 0 when total is 0.
func Percent(n, total int64) int {
	if total == 0 {
		return 0
	}
	return int(100 * float64(n) / float64(total))
}

// Printer writes one line per event to w.
func Printer(w io.Writer) Func {
	var mu sync.Mutex
	return func(status Status, n, total int64, msg string) {
		mu.Lock()
		defer mu.Unlock()
		line := fmt.Sprintf("%-8s, %d/%d (%2d%%)", status, n, total, Percent(n, total))
		if msg != "" {
			line += " [" + msg + "]"
		}
		_, _ = fmt.Fprintln(w, line)
	}
}

// Tee forwards every event to all non-nil funcs.
func Tee(funcs ...Func) Func {
	return func(status Status, n, total int64, msg string) {
		for _, fn := range funcs {
			fn.Emit(status, n, total, msg)
		}
	}
}
