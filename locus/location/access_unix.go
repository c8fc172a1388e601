//go:build unix

package location

import (
	"errors"

	"golang.org/x/sys/unix"
)

// access reports whether the calling process may read (or write) path.
// Denied or missing paths report false without error.
func access(path string, write bool) (bool, error) {
	mode := uint32(unix.R_OK)
	if write {
		mode = unix.W_OK
	}
	err := unix.Access(path, mode)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.ENOENT),
		errors.Is(err, unix.EROFS), errors.Is(err, unix.ENOTDIR),
		errors.Is(err, unix.EPERM):
		return false, nil
	default:
		return false, err
	}
}
