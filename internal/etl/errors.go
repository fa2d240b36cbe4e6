package etl

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrRunInProgress is returned when Run is called while a run of the same
// pipeline is still executing.
var ErrRunInProgress = errors.New("extraction already in progress")

// Stage identifies the pipeline step that failed.
type Stage string

const (
	StageArchive   Stage = "archive"
	StageQuery     Stage = "query"
	StageTransform Stage = "transform"
	StageWrite     Stage = "write"
	StageMirror    Stage = "mirror"
	StagePanic     Stage = "panic"
)

// StageError wraps a failure with the stage it happened in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// RowError explains why a source row was left out of the output.
type RowError struct {
	Row int    // zero-based source row
	Key string // asset code or other identifying field, may be empty
	Err error
}

func (e RowError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("row %d (%s): %v", e.Row, e.Key, e.Err)
	}
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}
