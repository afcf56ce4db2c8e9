//go:build !darwin && !linux && !freebsd && !netbsd && !openbsd

package lock

import "os"

// Exclusive is a no-op on platforms without flock.
func Exclusive(_ *os.File) (func() error, error) {
	return func() error { return nil }, nil
}
