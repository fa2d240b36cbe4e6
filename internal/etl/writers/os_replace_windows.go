//go:build windows

package writers

import (
	"errors"

	"golang.org/x/sys/windows"
)

// osReplace uses MoveFileEx with REPLACE_EXISTING|WRITE_THROUGH so the
// importer never sees a half-replaced file.
func osReplace(tmpPath, dest string) error {
	return moveFile(tmpPath, dest, windows.MOVEFILE_REPLACE_EXISTING|windows.MOVEFILE_WRITE_THROUGH)
}

// osCommitNew moves tmpPath to dest unless dest exists. MoveFileEx without
// REPLACE_EXISTING refuses an existing target on local disks and UNC shares.
func osCommitNew(tmpPath, dest string) (bool, error) {
	err := moveFile(tmpPath, dest, windows.MOVEFILE_WRITE_THROUGH)
	if errors.Is(err, windows.ERROR_ALREADY_EXISTS) || errors.Is(err, windows.ERROR_FILE_EXISTS) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func moveFile(from, to string, flags uint32) error {
	src, err := windows.UTF16PtrFromString(from)
	if err != nil {
		return err
	}
	dst, err := windows.UTF16PtrFromString(to)
	if err != nil {
		return err
	}
	return windows.MoveFileEx(src, dst, flags)
}

// syncDir is a no-op on Windows; directory fsync is not available.
func syncDir(string) error { return nil }
