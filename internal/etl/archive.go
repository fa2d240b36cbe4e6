package etl

import (
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ArchiveDirName is the subfolder old output files are moved into.
const ArchiveDirName = "Archive"

// ArchiveRotator keeps the output directory down to the newest few files so
// the importer only ever sees recent data.
type ArchiveRotator struct {
	Log *log.Entry
}

// Rotate moves every prefix*.ext file in dir except the newest retain into
// dir/Archive, replacing same-named archived files. Failures on individual
// files are collected and the remaining files are still processed.
func (a *ArchiveRotator) Rotate(dir, prefix, ext string, retain int) (int, error) {
	if retain < 0 {
		retain = 0
	}
	names, err := listOutputFiles(dir, prefix, ext)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.Wrapf(err, "list %s", dir)
	}
	if len(names) <= retain {
		return 0, nil
	}

	archiveDir := filepath.Join(dir, ArchiveDirName)
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return 0, errors.Wrapf(err, "create %s", archiveDir)
	}

	var result *multierror.Error
	moved := 0
	for _, name := range names[:len(names)-retain] {
		src := filepath.Join(dir, name)
		dst := filepath.Join(archiveDir, name)

		if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
			a.logger().WithError(err).WithField("file", dst).Error("cannot replace archived file")
			result = multierror.Append(result, errors.Wrapf(err, "remove %s", dst))
			continue
		}
		if err := os.Rename(src, dst); err != nil {
			a.logger().WithError(err).WithField("file", src).Error("cannot archive file")
			result = multierror.Append(result, errors.Wrapf(err, "move %s", src))
			continue
		}
		moved++
	}

	a.logger().WithFields(log.Fields{
		"archived": moved,
		"retained": retain,
		"prefix":   prefix,
	}).Info("archived old data files")

	return moved, result.ErrorOrNil()
}

func (a *ArchiveRotator) logger() *log.Entry {
	if a.Log != nil {
		return a.Log
	}
	return log.NewEntry(log.StandardLogger())
}
