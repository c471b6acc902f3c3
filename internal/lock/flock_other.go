//go:build !unix

package lock

import (
	"errors"
	"os"
)

var errUnsupported = errors.New("file locks are not supported on this platform")

func tryLockFile(*os.File) (bool, error) {
	return false, errUnsupported
}

func unlockFile(*os.File) error {
	return errUnsupported
}
