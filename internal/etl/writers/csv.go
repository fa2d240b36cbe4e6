package writers

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/intelliw/LSAssetDataService/internal/etl"
)

// CSVWriter writes a recordset as comma-separated text. Only the primary
// sheet is written; CSV has no room for a supplementary table.
type CSVWriter struct{}

var _ etl.FileWriter = CSVWriter{}

func (CSVWriter) Write(ctx context.Context, rs *etl.Recordset, path string, overwrite bool) (bool, error) {
	saved, err := writeAtomic(ctx, path, overwrite, func(w io.Writer) error {
		return encodeCSV(w, rs)
	})
	if err != nil {
		return false, errors.Wrapf(err, "write %s", path)
	}
	return saved, nil
}

// EscapeCSV strips line breaks, doubles embedded quotes and wraps the value
// in quotes when it contains a comma.
func EscapeCSV(s string) string {
	s = etl.StripLineBreaks(s)
	s = strings.ReplaceAll(s, `"`, `""`)
	if strings.Contains(s, ",") {
		s = `"` + s + `"`
	}
	return s
}

func encodeCSV(w io.Writer, rs *etl.Recordset) error {
	bw := bufio.NewWriter(w)
	if err := writeCSVLine(bw, rs.Columns); err != nil {
		return err
	}
	for _, row := range rs.Rows {
		if err := writeCSVLine(bw, row.Fields); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func writeCSVLine(w *bufio.Writer, fields []string) error {
	for i, f := range fields {
		if i > 0 {
			if err := w.WriteByte(','); err != nil {
				return err
			}
		}
		if _, err := w.WriteString(EscapeCSV(f)); err != nil {
			return err
		}
	}
	_, err := w.WriteString("\n")
	return err
}
