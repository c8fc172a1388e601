//go:build !unix

package location

import (
	"errors"
	"os"
)

// access approximates an access check from the owner permission bits.
func access(path string, write bool) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if write {
		return info.Mode().Perm()&0o200 != 0, nil
	}
	return info.Mode().Perm()&0o400 != 0, nil
}
