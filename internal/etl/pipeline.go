package etl

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/intelliw/LSAssetDataService/internal/logging"
)

// ── Pipeline ───────────────────────────────────────────────
// Orchestrates: archive → resolve cutoff → query → map → write → advance.
// One Pipeline per job; each owns its directory, prefix and watermark.

const (
	DefaultQueryTimeout = 2 * time.Minute
	DefaultWriteTimeout = time.Minute
	DefaultLookbackDays = 5
)

// RunStatus is the outcome class of a single run.
type RunStatus string

const (
	RunWritten   RunStatus = "written"    // a new file was staged
	RunNoChanges RunStatus = "no_changes" // nothing changed since the cutoff
	RunExists    RunStatus = "exists"     // target file present and overwrite is off
	RunBusy      RunStatus = "busy"       // another run of this pipeline is in flight
	RunFailed    RunStatus = "failed"
)

// RunResult is the outcome of running a pipeline once.
type RunResult struct {
	RunID       string        `json:"runId"`
	Job         string        `json:"job"`
	Status      RunStatus     `json:"status"`
	Cutoff      Cutoff        `json:"cutoff"`
	Watermark   time.Time     `json:"watermark"`
	RowsRead    int           `json:"rowsRead"`
	RowsWritten int           `json:"rowsWritten"`
	RowsSkipped int           `json:"rowsSkipped"`
	File        string        `json:"file,omitempty"`
	Archived    int           `json:"archived"`
	ArchiveErr  error         `json:"-"`
	MirrorErr   error         `json:"-"`
	StartedAt   time.Time     `json:"startedAt"`
	Duration    time.Duration `json:"duration"`
	Err         error         `json:"-"`
}

// Saved reports whether the run staged a new file.
func (r *RunResult) Saved() bool { return r.Status == RunWritten }

func (r *RunResult) fail(stage Stage, err error) *RunResult {
	r.Status = RunFailed
	r.Err = &StageError{Stage: stage, Err: err}
	return r
}

// RunLog is a historical record of a run.
type RunLog struct {
	ID          string    `json:"id" bson:"_id"`
	Job         string    `json:"job" bson:"job"`
	StartedAt   time.Time `json:"startedAt" bson:"started_at"`
	FinishedAt  time.Time `json:"finishedAt" bson:"finished_at"`
	Status      string    `json:"status" bson:"status"`
	Cutoff      time.Time `json:"cutoff" bson:"cutoff"`
	Watermark   time.Time `json:"watermark" bson:"watermark"`
	RowsRead    int       `json:"rowsRead" bson:"rows_read"`
	RowsWritten int       `json:"rowsWritten" bson:"rows_written"`
	RowsSkipped int       `json:"rowsSkipped" bson:"rows_skipped"`
	File        string    `json:"file,omitempty" bson:"file,omitempty"`
	Error       string    `json:"error,omitempty" bson:"error,omitempty"`
}

// RunLog converts the result into its persisted form.
func (r *RunResult) RunLog() *RunLog {
	l := &RunLog{
		ID:          r.RunID,
		Job:         r.Job,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.StartedAt.Add(r.Duration),
		Status:      string(r.Status),
		Cutoff:      r.Cutoff.Time,
		Watermark:   r.Watermark,
		RowsRead:    r.RowsRead,
		RowsWritten: r.RowsWritten,
		RowsSkipped: r.RowsSkipped,
		File:        r.File,
	}
	if r.Err != nil {
		l.Error = r.Err.Error()
	}
	return l
}

// Pipeline runs one job end-to-end.
type Pipeline struct {
	Strategy Strategy
	Executor QueryExecutor
	Writer   FileWriter
	Resolver *CutoffResolver
	Rotator  *ArchiveRotator

	Dir          string
	LookbackDays int
	QueryTimeout time.Duration
	WriteTimeout time.Duration
	Log          *log.Entry

	running sync.Mutex

	mu        sync.RWMutex
	watermark *time.Time
}

// Watermark returns the in-memory watermark, if one has been set.
func (p *Pipeline) Watermark() (time.Time, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.watermark == nil {
		return time.Time{}, false
	}
	return *p.watermark, true
}

// Prime seeds the in-memory watermark from the newest output file. It does
// nothing if a watermark is already held.
func (p *Pipeline) Prime() (time.Time, bool) {
	spec := p.Strategy.Spec()
	_, t, ok := p.resolver().Newest(p.Dir, spec.Prefix, spec.Ext())
	if !ok {
		return time.Time{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.watermark == nil {
		p.watermark = &t
	}
	return *p.watermark, true
}

func (p *Pipeline) advance(t time.Time) time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.watermark == nil || t.After(*p.watermark) {
		p.watermark = &t
	}
	return *p.watermark
}

func (p *Pipeline) memory() *time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.watermark == nil {
		return nil
	}
	t := *p.watermark
	return &t
}

// Run executes one extraction. It never panics; every failure is reported
// through the result. A concurrent call returns immediately with RunBusy.
func (p *Pipeline) Run(ctx context.Context) (result *RunResult) {
	spec := p.Strategy.Spec()
	start := time.Now()
	result = &RunResult{RunID: uuid.New().String(), Job: spec.Name, StartedAt: start}
	lg := p.logger().WithFields(log.Fields{"job": spec.Name, "run_id": result.RunID})

	if !p.running.TryLock() {
		result.Status = RunBusy
		result.Err = ErrRunInProgress
		return result
	}
	defer p.running.Unlock()

	defer func() {
		if r := recover(); r != nil {
			result.fail(StagePanic, errors.Errorf("%v", r))
			lg.WithField("panic", r).Error("extraction panicked")
		}
		if wm, ok := p.Watermark(); ok {
			result.Watermark = wm
		}
		result.Duration = time.Since(start)
	}()

	// 1. Archive old files.
	moved, err := p.rotator(lg).Rotate(p.Dir, spec.Prefix, spec.Ext(), spec.Retain)
	result.Archived = moved
	if err != nil {
		result.ArchiveErr = &StageError{Stage: StageArchive, Err: err}
		lg.WithError(err).Warn("archive rotation incomplete")
	}

	// 2. Resolve the cutoff.
	result.Cutoff = p.resolver().Resolve(p.Dir, spec.Prefix, spec.Ext(), p.LookbackDays, p.memory())
	cutoff := result.Cutoff.Time

	// 3. Query rows changed after the cutoff.
	qlog := logging.WithEvent(lg, logging.EventQueryingData)
	qctx, cancel := context.WithTimeout(ctx, durationOr(p.QueryTimeout, DefaultQueryTimeout))
	rs, err := p.Executor.Fetch(qctx, cutoff)
	cancel()
	if err != nil {
		qlog.WithError(err).Error("query failed")
		return result.fail(StageQuery, err)
	}
	result.RowsRead = rs.Len()
	qlog.WithFields(log.Fields{
		"cutoff":        cutoff.Format(SQLDateTimeLayout),
		"cutoff_source": result.Cutoff.Source,
		"rows":          result.RowsRead,
	}).Debug("query complete")
	if rs.Len() == 0 {
		result.Status = RunNoChanges
		return result
	}

	// 4. Map to the output layout.
	out, rowErrs := p.Strategy.MapColumns(rs)
	for _, re := range rowErrs {
		lg.WithField("row", re.Row).WithField("key", re.Key).WithError(re.Err).Warn("row skipped")
	}
	result.RowsSkipped = len(rowErrs)
	if out.Len() == 0 {
		result.Status = RunNoChanges
		return result
	}
	if out.LastModified.Before(cutoff) {
		out.LastModified = cutoff
	}
	if err := out.Validate(); err != nil {
		lg.WithError(err).Error("mapped recordset is malformed")
		return result.fail(StageTransform, err)
	}

	// 5. Name the file; an existing file is left alone unless the job overwrites.
	slog := logging.WithEvent(lg, logging.EventStagingDatafile)
	path := filepath.Join(p.Dir, p.resolver().FileName(spec.Prefix, out.LastModified, spec.Ext()))
	result.File = path
	if !spec.Overwrite {
		if _, err := os.Stat(path); err == nil {
			result.Status = RunExists
			slog.WithField("file", path).Info("data file already exists")
			return result
		}
	}

	if err := ctx.Err(); err != nil {
		return result.fail(StageWrite, err)
	}

	// 6. Write. Once started, the write is not cut short by shutdown.
	saved, err := p.write(ctx, out, path, spec.Overwrite)
	if err != nil {
		slog.WithError(err).WithField("file", path).Error("cannot write data file")
		return result.fail(StageWrite, err)
	}
	if !saved {
		result.Status = RunExists
		slog.WithField("file", path).Info("data file already exists")
		return result
	}
	out.Saved = true
	result.RowsWritten = out.Len()

	// 7. Refresh the fixed-name mirror, if the job keeps one.
	if spec.MirrorName != "" {
		mirror := filepath.Join(p.Dir, spec.MirrorName+"."+spec.Ext())
		if _, err := p.write(ctx, out, mirror, true); err != nil {
			result.MirrorErr = &StageError{Stage: StageMirror, Err: err}
			slog.WithError(err).WithField("file", mirror).Warn("cannot refresh mirror file")
		}
	}

	// 8. Advance the watermark.
	p.advance(out.LastModified)
	result.Status = RunWritten
	slog.WithFields(log.Fields{
		"file":          filepath.Base(path),
		"rows":          result.RowsWritten,
		"skipped":       result.RowsSkipped,
		"last_modified": out.LastModified.Format(SQLDateTimeLayout),
	}).Info("data file staged")
	return result
}

func (p *Pipeline) write(ctx context.Context, rs *Recordset, path string, overwrite bool) (bool, error) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), durationOr(p.WriteTimeout, DefaultWriteTimeout))
	defer cancel()
	return p.Writer.Write(wctx, rs, path, overwrite)
}

func (p *Pipeline) resolver() *CutoffResolver {
	if p.Resolver != nil {
		return p.Resolver
	}
	return &CutoffResolver{Log: p.logger()}
}

func (p *Pipeline) rotator(lg *log.Entry) *ArchiveRotator {
	if p.Rotator != nil {
		return p.Rotator
	}
	return &ArchiveRotator{Log: lg}
}

func (p *Pipeline) logger() *log.Entry {
	if p.Log != nil {
		return p.Log
	}
	return log.NewEntry(log.StandardLogger())
}

func durationOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
