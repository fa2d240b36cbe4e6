//go:build !windows

package writers

import (
	"errors"
	"os"
	"syscall"
)

// osReplace performs an atomic rename on POSIX systems.
func osReplace(tmpPath, dest string) error {
	return os.Rename(tmpPath, dest)
}

var linkFile = os.Link

// osCommitNew moves tmpPath to dest only if dest does not exist, reporting
// false when it does. A hard link does both in one step; filesystems without
// links (FAT, some SMB mounts) fall back to a check then a rename.
func osCommitNew(tmpPath, dest string) (bool, error) {
	err := linkFile(tmpPath, dest)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrExist):
		return false, nil
	case !linkUnsupported(err):
		return false, err
	}

	if _, err := os.Lstat(dest); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return false, err
	}
	return true, nil
}

func linkUnsupported(err error) bool {
	for _, errno := range []syscall.Errno{syscall.EPERM, syscall.ENOTSUP, syscall.EOPNOTSUPP, syscall.ENOSYS, syscall.EXDEV, syscall.EMLINK} {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}

// syncDir best-effort fsyncs the parent directory to persist the rename.
func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
