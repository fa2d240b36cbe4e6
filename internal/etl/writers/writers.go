package writers

import (
	"fmt"

	"github.com/intelliw/LSAssetDataService/internal/etl"
)

// ForFormat returns the writer for a job's output format.
func ForFormat(f etl.Format) (etl.FileWriter, error) {
	switch f {
	case etl.FormatCSV:
		return CSVWriter{}, nil
	case etl.FormatXLSX:
		return XLSXWriter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %q", f)
	}
}
