package etl

import "context"

// ── Destination ────────────────────────────────────────────
// A FileWriter persists a Recordset as a staged file for the importer.
// Implementations live in etl/writers/, one file per format.

// FileWriter writes rs to path. When the file exists and overwrite is false
// it returns (false, nil) without touching the file. A true result means the
// complete file is in place; partial files are never left at path.
type FileWriter interface {
	Write(ctx context.Context, rs *Recordset, path string, overwrite bool) (bool, error)
}

// FileWriterFunc adapts a function to FileWriter.
type FileWriterFunc func(ctx context.Context, rs *Recordset, path string, overwrite bool) (bool, error)

func (f FileWriterFunc) Write(ctx context.Context, rs *Recordset, path string, overwrite bool) (bool, error) {
	return f(ctx, rs, path, overwrite)
}
