package etl

import (
	"strconv"
	"strings"
)

// ── Transform helpers ──────────────────────────────────────
// Small building blocks shared by the job mappings.

// RawColumnPrefix marks columns copied verbatim from the query result.
const RawColumnPrefix = "_"

// RawColumns returns src's columns with RawColumnPrefix prepended, in order.
func RawColumns(src *Recordset) []string {
	cols := make([]string, len(src.Columns))
	for i, c := range src.Columns {
		cols[i] = RawColumnPrefix + c
	}
	return cols
}

// Concat joins column lists into a new slice.
func Concat(parts ...[]string) []string {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]string, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Trimmed returns the attribute value with surrounding whitespace removed.
func (r *Recordset) Trimmed(row Row, a Attribute) string {
	return strings.TrimSpace(r.Value(row, a))
}

// ParseIntLenient parses s as an integer, returning 0 when it is blank or
// malformed. Decimal renderings such as "3.0" are truncated.
func ParseIntLenient(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return 0
}

// StripLineBreaks removes every carriage return and line feed.
func StripLineBreaks(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}
