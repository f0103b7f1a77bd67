// Package lock keeps two stores from opening the same data directory.
package lock

import "errors"

// FileName is the lock file created inside a locked directory.
const FileName = "LOCK"

// ErrLocked is returned when another process already holds the directory.
var ErrLocked = errors.New("directory already in use by another store")
