package etl

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ── Naming & time formats ──────────────────────────────────

const (
	// FileTimestampLayout is appended to the prefix of every output file.
	FileTimestampLayout = "_2006_01_02_15_04"

	// SQLDateTimeLayout is how executors render date/time columns and how
	// cutoffs are spliced into queries.
	SQLDateTimeLayout = "2006-01-02 15:04:05.000"

	// DisplayDateTimeLayout is used for human-facing timestamps in the files.
	DisplayDateTimeLayout = "02/01/2006 15:04:05.000"
)

// FileName builds "<prefix>_yyyy_MM_dd_HH_mm.<ext>".
func FileName(prefix string, t time.Time, ext string) string {
	return prefix + t.Format(FileTimestampLayout) + "." + ext
}

// ParseFileTimestamp recovers the minute-precision time encoded in an output
// file name. Only the first five "_" separated tokens after the prefix are read.
func ParseFileTimestamp(name, prefix string, loc *time.Location) (time.Time, error) {
	base := filepath.Base(name)
	if !strings.HasPrefix(base, prefix) {
		return time.Time{}, errors.Errorf("%q does not start with %q", base, prefix)
	}
	stamp := base[len(prefix):]
	if dot := strings.Index(stamp, "."); dot >= 0 {
		stamp = stamp[:dot]
	}
	stamp = strings.TrimPrefix(stamp, "_")

	parts := strings.Split(stamp, "_")
	if len(parts) < 5 {
		return time.Time{}, errors.Errorf("%q: expected 5 timestamp tokens, got %d", base, len(parts))
	}
	var v [5]int
	for i := 0; i < 5; i++ {
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			return time.Time{}, errors.Wrapf(err, "%q: token %d", base, i)
		}
		v[i] = n
	}
	if loc == nil {
		loc = time.Local
	}
	t := time.Date(v[0], time.Month(v[1]), v[2], v[3], v[4], 0, 0, loc)
	if t.Year() != v[0] || int(t.Month()) != v[1] || t.Day() != v[2] || t.Hour() != v[3] || t.Minute() != v[4] {
		return time.Time{}, errors.Errorf("%q: timestamp out of range", base)
	}
	return t, nil
}

var sqlTimeLayouts = []string{
	SQLDateTimeLayout,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
	"2006-01-02",
}

// ParseSQLTime parses a date/time field produced by an executor. The canonical
// layout is tried first, followed by a few common database renderings.
func ParseSQLTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range sqlTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("unrecognised timestamp %q", s)
}

// listOutputFiles returns the names (not paths) of regular files in dir that
// match prefix*.ext, sorted ascending.
func listOutputFiles(dir, prefix, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	suffix := "." + ext
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		n := e.Name()
		if len(n) >= len(prefix)+len(suffix) && strings.HasPrefix(n, prefix) && strings.HasSuffix(n, suffix) {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names, nil
}
