package etl

import (
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
)

// ── Cutoff ─────────────────────────────────────────────────
// The watermark lives in two places: the newest output file name (minute
// precision, survives restarts) and the pipeline's memory (full precision,
// lost on restart). Resolve reconciles them.

// CutoffSource says where a resolved cutoff came from.
type CutoffSource string

const (
	CutoffDefault CutoffSource = "default"
	CutoffFile    CutoffSource = "file"
	CutoffMemory  CutoffSource = "memory"
)

// Cutoff is the lower bound for the next extraction.
type Cutoff struct {
	Time   time.Time    `json:"time"`
	Source CutoffSource `json:"source"`
	File   string       `json:"file,omitempty"`
}

// memoryTolerance bounds how far the in-memory watermark may run ahead of
// the file-derived one and still be trusted.
const memoryTolerance = time.Minute

// CutoffResolver derives the cutoff from the output directory. File names
// and the lookback fallback are both read on Location's wall clock.
type CutoffResolver struct {
	Now      func() time.Time
	Location *time.Location
	Log      *log.Entry
}

// Resolve returns the cutoff for the next run of a job writing prefix*.ext
// into dir. inMemory may be nil.
func (r *CutoffResolver) Resolve(dir, prefix, ext string, lookbackDays int, inMemory *time.Time) Cutoff {
	fallback := Cutoff{
		Time:   r.now().In(r.location()).AddDate(0, 0, -lookbackDays),
		Source: CutoffDefault,
	}

	name, fileTime, ok := r.Newest(dir, prefix, ext)
	if !ok {
		return fallback
	}

	if inMemory != nil && inMemory.After(fileTime) && inMemory.Sub(fileTime) < memoryTolerance {
		return Cutoff{Time: *inMemory, Source: CutoffMemory, File: name}
	}
	return Cutoff{Time: fileTime, Source: CutoffFile, File: name}
}

// Newest returns the newest matching file and the timestamp encoded in its
// name. ok is false when there is no file or the name cannot be parsed.
func (r *CutoffResolver) Newest(dir, prefix, ext string) (name string, t time.Time, ok bool) {
	names, err := listOutputFiles(dir, prefix, ext)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger().WithError(err).WithField("dir", dir).Warn("cannot list output directory")
		}
		return "", time.Time{}, false
	}
	if len(names) == 0 {
		return "", time.Time{}, false
	}

	name = names[len(names)-1]
	t, err = ParseFileTimestamp(name, prefix, r.location())
	if err != nil {
		r.logger().WithError(err).WithField("file", filepath.Join(dir, name)).Warn("cannot read timestamp from file name")
		return name, time.Time{}, false
	}
	return name, t, true
}

// FileName builds the output file name for t on the resolver's clock, so
// that Newest reads back the same instant.
func (r *CutoffResolver) FileName(prefix string, t time.Time, ext string) string {
	return FileName(prefix, t.In(r.location()), ext)
}

func (r *CutoffResolver) location() *time.Location {
	if r.Location != nil {
		return r.Location
	}
	return time.Local
}

func (r *CutoffResolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *CutoffResolver) logger() *log.Entry {
	if r.Log != nil {
		return r.Log
	}
	return log.NewEntry(log.StandardLogger())
}
