package etl_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intelliw/LSAssetDataService/internal/etl"
	"github.com/intelliw/LSAssetDataService/internal/logging"
)

// ── Test doubles ───────────────────────────────────────────

type change struct {
	code string
	at   time.Time
}

// tableExecutor serves rows changed strictly after the cutoff, like the real queries.
type tableExecutor struct {
	mu      sync.Mutex
	changes []change
	err     error
	calls   int
	block   chan struct{}
	entered chan struct{}
}

func (e *tableExecutor) Fetch(ctx context.Context, cutoff time.Time) (*etl.Recordset, error) {
	if e.entered != nil {
		close(e.entered)
	}
	if e.block != nil {
		<-e.block
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	rs := etl.NewRecordset("src", []string{"Code", "LastChangeDate"})
	rs.Index.Set(etl.AttrAssetCode, 0)
	rs.Index.Set(etl.AttrLastChanged, 1)
	rs.LastModified = cutoff
	for _, c := range e.changes {
		if c.at.After(cutoff) {
			_ = rs.Append(c.code, c.at.Format(etl.SQLDateTimeLayout))
		}
	}
	return rs, nil
}

// undatedExecutor returns rows that carry no change date, so the output
// keeps the cutoff as its last-modified time.
type undatedExecutor struct{}

func (undatedExecutor) Fetch(_ context.Context, cutoff time.Time) (*etl.Recordset, error) {
	rs := etl.NewRecordset("src", []string{"Code", "LastChangeDate"})
	rs.Index.Set(etl.AttrAssetCode, 0)
	rs.Index.Set(etl.AttrLastChanged, 1)
	rs.LastModified = cutoff
	_ = rs.Append("A1", "")
	return rs, nil
}

// stalledExecutor waits for its context, like a query stuck on a lock.
type stalledExecutor struct{}

func (stalledExecutor) Fetch(ctx context.Context, _ time.Time) (*etl.Recordset, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type stubStrategy struct {
	spec     etl.StrategySpec
	panicked bool
}

func (s *stubStrategy) Spec() etl.StrategySpec { return s.spec }

func (s *stubStrategy) BuildQuery(time.Time) (etl.Query, error) {
	return etl.Query{Index: etl.NewAttributeIndex()}, nil
}

func (s *stubStrategy) MapColumns(src *etl.Recordset) (*etl.Recordset, []etl.RowError) {
	if s.panicked {
		panic("boom")
	}
	out := etl.NewRecordset(s.spec.SheetName, []string{"Asset Code", "Last Modified"})
	out.LastModified = src.LastModified
	var rowErrs []etl.RowError
	for i, row := range src.Rows {
		code := src.Value(row, etl.AttrAssetCode)
		raw := src.Value(row, etl.AttrLastChanged)
		if raw == "" {
			_ = out.Append(code, "")
			continue
		}
		at, err := etl.ParseSQLTime(raw, time.Local)
		if err != nil || code == "bad" {
			rowErrs = append(rowErrs, etl.RowError{Row: i, Key: code, Err: errors.New("unmappable")})
			continue
		}
		out.Touch(at)
		_ = out.Append(code, at.Format(etl.DisplayDateTimeLayout))
	}
	return out, rowErrs
}

// lineWriter writes one line per row; enough to observe what the pipeline saved.
type lineWriter struct {
	err    error
	writes []string
}

func (w *lineWriter) Write(_ context.Context, rs *etl.Recordset, path string, overwrite bool) (bool, error) {
	if w.err != nil {
		return false, w.err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}
	var b strings.Builder
	for _, r := range rs.Rows {
		b.WriteString(strings.Join(r.Fields, ",") + "\n")
	}
	w.writes = append(w.writes, filepath.Base(path))
	return true, os.WriteFile(path, []byte(b.String()), 0o644)
}

func newPipeline(t *testing.T, exec etl.QueryExecutor, w etl.FileWriter, spec etl.StrategySpec) *etl.Pipeline {
	t.Helper()
	return &etl.Pipeline{
		Strategy:     &stubStrategy{spec: spec},
		Executor:     exec,
		Writer:       w,
		Resolver:     &etl.CutoffResolver{Location: time.Local, Log: logging.Discard()},
		Rotator:      &etl.ArchiveRotator{Log: logging.Discard()},
		Dir:          t.TempDir(),
		LookbackDays: 5,
		Log:          logging.Discard(),
	}
}

var csvSpec = etl.StrategySpec{Name: "stub", Prefix: "AssetDataFile", Format: etl.FormatCSV, Retain: 3, SheetName: "Data"}

func recent(offset time.Duration) time.Time {
	return time.Now().Add(-time.Hour).Truncate(time.Minute).Add(17*time.Second + offset)
}

// ── Pipeline.Run ───────────────────────────────────────────

func TestRun_WritesFileAndAdvancesWatermark(t *testing.T) {
	t1 := recent(0)
	t2 := recent(90*time.Second + 250*time.Millisecond)
	exec := &tableExecutor{changes: []change{{"A1", t1}, {"A2", t2}}}
	w := &lineWriter{}
	p := newPipeline(t, exec, w, csvSpec)

	res := p.Run(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, etl.RunWritten, res.Status)
	assert.True(t, res.Saved())
	assert.Equal(t, 2, res.RowsRead)
	assert.Equal(t, 2, res.RowsWritten)
	assert.Equal(t, etl.CutoffDefault, res.Cutoff.Source)
	assert.Equal(t, etl.FileName("AssetDataFile", t2, "csv"), filepath.Base(res.File))
	assert.FileExists(t, res.File)

	wm, ok := p.Watermark()
	require.True(t, ok)
	assert.True(t, wm.Equal(t2))
	assert.True(t, res.Watermark.Equal(t2))
	assert.NotEmpty(t, res.RunID)
}

func TestRun_SecondRunWithoutChangesIsNoop(t *testing.T) {
	exec := &tableExecutor{changes: []change{{"A1", recent(30*time.Second + 507*time.Millisecond)}}}
	w := &lineWriter{}
	p := newPipeline(t, exec, w, csvSpec)

	first := p.Run(context.Background())
	require.Equal(t, etl.RunWritten, first.Status)
	wm, _ := p.Watermark()

	second := p.Run(context.Background())
	assert.Equal(t, etl.RunNoChanges, second.Status)
	assert.NoError(t, second.Err)
	assert.Equal(t, etl.CutoffMemory, second.Cutoff.Source, "precise watermark wins over the minute in the file name")
	assert.Len(t, w.writes, 1)

	after, _ := p.Watermark()
	assert.True(t, after.Equal(wm))
}

func TestRun_WatermarkIsMonotonic(t *testing.T) {
	exec := &tableExecutor{}
	w := &lineWriter{}
	p := newPipeline(t, exec, w, csvSpec)

	var last time.Time
	for i := 0; i < 4; i++ {
		exec.mu.Lock()
		exec.changes = append(exec.changes, change{code: "A", at: recent(time.Duration(i) * 2 * time.Minute)})
		exec.mu.Unlock()

		res := p.Run(context.Background())
		require.NoError(t, res.Err)
		wm, ok := p.Watermark()
		require.True(t, ok)
		assert.False(t, wm.Before(last))
		last = wm
	}
	assert.Len(t, w.writes, 4)
}

func TestRun_EmptyResultLeavesNoFile(t *testing.T) {
	p := newPipeline(t, &tableExecutor{}, &lineWriter{}, csvSpec)

	res := p.Run(context.Background())
	assert.Equal(t, etl.RunNoChanges, res.Status)
	_, ok := p.Watermark()
	assert.False(t, ok)

	entries, err := os.ReadDir(p.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_AllRowsSkippedIsNotSaved(t *testing.T) {
	exec := &tableExecutor{changes: []change{{"bad", recent(0)}}}
	p := newPipeline(t, exec, &lineWriter{}, csvSpec)

	res := p.Run(context.Background())
	assert.Equal(t, etl.RunNoChanges, res.Status)
	assert.Equal(t, 1, res.RowsSkipped)
	assert.False(t, res.Saved())
}

func TestRun_SkippedRowsDoNotBlockTheRest(t *testing.T) {
	exec := &tableExecutor{changes: []change{{"bad", recent(0)}, {"A1", recent(time.Second)}}}
	p := newPipeline(t, exec, &lineWriter{}, csvSpec)

	res := p.Run(context.Background())
	assert.Equal(t, etl.RunWritten, res.Status)
	assert.Equal(t, 1, res.RowsSkipped)
	assert.Equal(t, 1, res.RowsWritten)
}

func TestRun_QueryFailureKeepsWatermark(t *testing.T) {
	exec := &tableExecutor{err: errors.New("connection refused")}
	p := newPipeline(t, exec, &lineWriter{}, csvSpec)

	res := p.Run(context.Background())
	assert.Equal(t, etl.RunFailed, res.Status)
	var se *etl.StageError
	require.ErrorAs(t, res.Err, &se)
	assert.Equal(t, etl.StageQuery, se.Stage)
	_, ok := p.Watermark()
	assert.False(t, ok)
}

func TestRun_WriteFailureKeepsWatermark(t *testing.T) {
	exec := &tableExecutor{changes: []change{{"A1", recent(0)}}}
	p := newPipeline(t, exec, &lineWriter{err: errors.New("disk full")}, csvSpec)

	res := p.Run(context.Background())
	assert.Equal(t, etl.RunFailed, res.Status)
	var se *etl.StageError
	require.ErrorAs(t, res.Err, &se)
	assert.Equal(t, etl.StageWrite, se.Stage)
	_, ok := p.Watermark()
	assert.False(t, ok)
}

func TestRun_ExistingFileWithoutOverwrite(t *testing.T) {
	at := recent(0)
	exec := &tableExecutor{changes: []change{{"A1", at}}}
	w := &lineWriter{}
	p := newPipeline(t, exec, w, csvSpec)
	require.NoError(t, os.WriteFile(filepath.Join(p.Dir, etl.FileName(csvSpec.Prefix, at, "csv")), []byte("prior"), 0o644))

	res := p.Run(context.Background())
	assert.Equal(t, etl.RunExists, res.Status)
	assert.False(t, res.Saved())
	assert.Empty(t, w.writes)

	b, err := os.ReadFile(res.File)
	require.NoError(t, err)
	assert.Equal(t, "prior", string(b))
}

func TestRun_OverwriteAndMirror(t *testing.T) {
	spec := etl.StrategySpec{Name: "par", Prefix: "AssetPARDataFile", Format: etl.FormatXLSX, Retain: 3, Overwrite: true, MirrorName: "MASTER_AssetPARDataFile"}
	at := recent(0)
	exec := &tableExecutor{changes: []change{{"Z1", at}}}
	w := &lineWriter{}
	p := newPipeline(t, exec, w, spec)
	require.NoError(t, os.WriteFile(filepath.Join(p.Dir, etl.FileName(spec.Prefix, at, "xlsx")), []byte("prior"), 0o644))

	res := p.Run(context.Background())
	require.Equal(t, etl.RunWritten, res.Status)
	assert.NoError(t, res.MirrorErr)
	assert.FileExists(t, filepath.Join(p.Dir, "MASTER_AssetPARDataFile.xlsx"))
	assert.Equal(t, []string{filepath.Base(res.File), "MASTER_AssetPARDataFile.xlsx"}, w.writes)
}

func TestRun_ArchivesBeforeResolving(t *testing.T) {
	exec := &tableExecutor{}
	p := newPipeline(t, exec, &lineWriter{}, csvSpec)
	for _, n := range []string{
		"AssetDataFile_2024_01_01_00_01.csv",
		"AssetDataFile_2024_01_01_00_02.csv",
		"AssetDataFile_2024_01_01_00_03.csv",
		"AssetDataFile_2024_01_01_00_04.csv",
		"AssetDataFile_2024_01_01_00_05.csv",
	} {
		touch(t, p.Dir, n)
	}

	res := p.Run(context.Background())
	assert.Equal(t, 2, res.Archived)
	assert.Equal(t, "AssetDataFile_2024_01_01_00_05.csv", res.Cutoff.File)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 5, 0, 0, time.Local), res.Cutoff.Time)
}

func TestRun_ArchiveFailureDoesNotStopTheRun(t *testing.T) {
	exec := &tableExecutor{changes: []change{{"A1", recent(0)}}}
	p := newPipeline(t, exec, &lineWriter{}, csvSpec)
	for _, n := range []string{
		"AssetDataFile_2024_01_01_00_01.csv",
		"AssetDataFile_2024_01_01_00_02.csv",
		"AssetDataFile_2024_01_01_00_03.csv",
		"AssetDataFile_2024_01_01_00_04.csv",
		"AssetDataFile_2024_01_01_00_05.csv",
	} {
		touch(t, p.Dir, n)
	}
	// A non-empty directory where the oldest file should be archived.
	blocked := filepath.Join(p.Dir, etl.ArchiveDirName, "AssetDataFile_2024_01_01_00_01.csv")
	require.NoError(t, os.MkdirAll(blocked, 0o755))
	touch(t, blocked, "keep")

	res := p.Run(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, etl.RunWritten, res.Status)
	assert.Equal(t, 1, res.Archived)

	var se *etl.StageError
	require.ErrorAs(t, res.ArchiveErr, &se)
	assert.Equal(t, etl.StageArchive, se.Stage)
	assert.FileExists(t, filepath.Join(p.Dir, "AssetDataFile_2024_01_01_00_01.csv"))
	assert.FileExists(t, filepath.Join(p.Dir, etl.ArchiveDirName, "AssetDataFile_2024_01_01_00_02.csv"))
}

func TestRun_QueryTimeoutEndsTheRun(t *testing.T) {
	p := newPipeline(t, stalledExecutor{}, &lineWriter{}, csvSpec)
	p.QueryTimeout = 50 * time.Millisecond

	start := time.Now()
	res := p.Run(context.Background())
	assert.Less(t, time.Since(start), 5*time.Second)

	assert.Equal(t, etl.RunFailed, res.Status)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	var se *etl.StageError
	require.ErrorAs(t, res.Err, &se)
	assert.Equal(t, etl.StageQuery, se.Stage)
	_, ok := p.Watermark()
	assert.False(t, ok)
}

func TestRun_CutoffStableWhenHostZoneDiffers(t *testing.T) {
	host := time.FixedZone("host", 8*60*60)
	now := time.Date(2024, 3, 15, 18, 0, 0, 0, host)
	p := newPipeline(t, undatedExecutor{}, &lineWriter{}, csvSpec)
	p.LookbackDays = 1
	p.Resolver = &etl.CutoffResolver{Now: func() time.Time { return now }, Location: time.UTC, Log: logging.Discard()}

	first := p.Run(context.Background())
	require.Equal(t, etl.RunWritten, first.Status)
	assert.Equal(t, etl.CutoffDefault, first.Cutoff.Source)
	assert.True(t, first.Cutoff.Time.Equal(time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, "AssetDataFile_2024_03_14_10_00.csv", filepath.Base(first.File))

	// A restarted service only has the file name to go on.
	restarted := newPipeline(t, undatedExecutor{}, &lineWriter{}, csvSpec)
	restarted.Dir = p.Dir
	restarted.Resolver = p.Resolver

	second := restarted.Run(context.Background())
	assert.Equal(t, etl.CutoffFile, second.Cutoff.Source)
	assert.True(t, second.Cutoff.Time.Equal(first.Cutoff.Time),
		"cutoff moved from %s to %s", first.Cutoff.Time, second.Cutoff.Time)
	assert.Equal(t, etl.RunExists, second.Status)
}

func TestRun_ConcurrentCallIsBusy(t *testing.T) {
	exec := &tableExecutor{block: make(chan struct{}), entered: make(chan struct{})}
	p := newPipeline(t, exec, &lineWriter{}, csvSpec)

	done := make(chan *etl.RunResult)
	go func() { done <- p.Run(context.Background()) }()
	<-exec.entered

	busy := p.Run(context.Background())
	assert.Equal(t, etl.RunBusy, busy.Status)
	assert.ErrorIs(t, busy.Err, etl.ErrRunInProgress)

	close(exec.block)
	first := <-done
	assert.Equal(t, etl.RunNoChanges, first.Status)
}

func TestRun_PanicBecomesFailure(t *testing.T) {
	exec := &tableExecutor{changes: []change{{"A1", recent(0)}}}
	p := newPipeline(t, exec, &lineWriter{}, csvSpec)
	p.Strategy = &stubStrategy{spec: csvSpec, panicked: true}

	var res *etl.RunResult
	require.NotPanics(t, func() { res = p.Run(context.Background()) })
	assert.Equal(t, etl.RunFailed, res.Status)
	var se *etl.StageError
	require.ErrorAs(t, res.Err, &se)
	assert.Equal(t, etl.StagePanic, se.Stage)

	// the guard is released after a panic
	p.Strategy = &stubStrategy{spec: csvSpec}
	assert.Equal(t, etl.RunWritten, p.Run(context.Background()).Status)
}

func TestPrime_SeedsFromNewestFile(t *testing.T) {
	p := newPipeline(t, &tableExecutor{}, &lineWriter{}, csvSpec)
	touch(t, p.Dir, "AssetDataFile_2024_03_15_09_30.csv")

	wm, ok := p.Prime()
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 15, 9, 30, 0, 0, time.Local), wm)
}

func TestRunLog_CarriesOutcome(t *testing.T) {
	p := newPipeline(t, &tableExecutor{err: errors.New("timeout")}, &lineWriter{}, csvSpec)
	res := p.Run(context.Background())

	l := res.RunLog()
	assert.Equal(t, res.RunID, l.ID)
	assert.Equal(t, "stub", l.Job)
	assert.Equal(t, "failed", l.Status)
	assert.Contains(t, l.Error, "timeout")
	assert.False(t, l.FinishedAt.Before(l.StartedAt))
}
