// Package lock guards files that are written by one download at a time.
package lock

import "errors"

// ErrLocked is returned when another process holds the lock.
var ErrLocked = errors.New("file is locked by another process")
