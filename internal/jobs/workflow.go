package jobs

import (
	"fmt"
	"text/template"
	"time"

	"github.com/pkg/errors"

	"github.com/intelliw/LSAssetDataService/internal/etl"
)

// ── Workflow ───────────────────────────────────────────────
// Asset status changes from the agility database, staged as CSV for CORE's
// workflow import.

const (
	WorkflowJob = "workflow"

	// DefaultRetroactiveWindow is how far before the cutoff changed rows are
	// re-selected once any new change exists.
	DefaultRetroactiveWindow = 24 * time.Hour

	changedBeforeCutoffHeader = "__Changed Before Cutoff"
)

// CORE reads the first six columns. The category, type and model columns
// are required by its import but left blank.
var workflowHeaders = []string{
	"Asset Category", "Asset Type", "Asset Model", "Asset Code", "Asset Status", "Last Modified",
}

func init() {
	etl.RegisterStrategy(WorkflowJob, NewWorkflow)
}

type Workflow struct {
	tmpl     *template.Template
	settings etl.JobSettings
	retro    time.Duration
}

// NewWorkflow builds the workflow strategy.
func NewWorkflow(s etl.JobSettings) (etl.Strategy, error) {
	if err := checkDatabases(s, true); err != nil {
		return nil, err
	}
	tmpl, err := loadQuery(WorkflowJob, s.QueriesDir)
	if err != nil {
		return nil, err
	}
	retro := s.RetroactiveWindow
	if retro <= 0 {
		retro = DefaultRetroactiveWindow
	}
	return &Workflow{tmpl: tmpl, settings: s, retro: retro}, nil
}

func (w *Workflow) Spec() etl.StrategySpec {
	return etl.StrategySpec{
		Name:      WorkflowJob,
		Label:     "Asset Workflow Data",
		Prefix:    "AssetDataFile",
		Format:    etl.FormatCSV,
		Retain:    3,
		Overwrite: false,
		SheetName: "Workflow Data",
	}
}

// BuildQuery selects everything changed inside the retroactive window, but
// only when something changed after cutoff itself.
func (w *Workflow) BuildQuery(cutoff time.Time) (etl.Query, error) {
	text, err := renderQuery(w.tmpl, queryData{
		AssetDB:     w.settings.AssetDB,
		LSDB:        w.settings.LSDB,
		Cutoff:      sqlTime(cutoff, w.settings.Location),
		RetroCutoff: sqlTime(cutoff.Add(-w.retro), w.settings.Location),
	})
	if err != nil {
		return etl.Query{}, err
	}

	ix := etl.NewAttributeIndex()
	ix.Set(etl.AttrAssetCode, 0)
	ix.Set(etl.AttrAssetOrParStatus, 1)
	ix.Set(etl.AttrLastChanged, 2)
	ix.Set(etl.AttrCoreUID, 3)
	ix.Set(etl.AttrCoreWorkflowStatus, 4)
	ix.Set(etl.AttrCoreRFID, 5)
	ix.Set(etl.AttrCoreModifiedDate, 6)
	return etl.Query{Text: text, Index: ix}, nil
}

// MapColumns stamps each row with the agility change time, or with the CORE
// modified time for assets CORE has just provisioned and not yet given a
// workflow status. The newest rows are stamped a second before their minute
// so they sort before the file name timestamp.
func (w *Workflow) MapColumns(src *etl.Recordset) (*etl.Recordset, []etl.RowError) {
	spec := w.Spec()
	out := etl.NewRecordset(spec.SheetName, etl.Concat(
		workflowHeaders,
		[]string{changedBeforeCutoffHeader},
		etl.RawColumns(src),
	))
	out.LastModified = src.LastModified
	cutoff := src.LastModified
	loc := w.settings.Location

	var rowErrs []etl.RowError
	for i, row := range src.Rows {
		code := src.Trimmed(row, etl.AttrAssetCode)

		agility, err := etl.ParseSQLTime(src.Value(row, etl.AttrLastChanged), loc)
		if err != nil {
			rowErrs = append(rowErrs, etl.RowError{Row: i, Key: code, Err: errors.Wrap(err, "last change date")})
			continue
		}
		lastChanged := agility
		if src.Trimmed(row, etl.AttrCoreWorkflowStatus) == "" {
			core, err := etl.ParseSQLTime(src.Value(row, etl.AttrCoreModifiedDate), loc)
			if err != nil {
				rowErrs = append(rowErrs, etl.RowError{Row: i, Key: code, Err: errors.Wrap(err, "CORE modified date")})
				continue
			}
			lastChanged = core
		}

		out.Touch(lastChanged)
		if !lastChanged.Before(out.LastModified) {
			lastChanged = floorMinute(lastChanged).Add(-time.Second)
		}

		var before string
		if agility.Before(cutoff) {
			before = clock(cutoff.Sub(agility))
		}

		fields := make([]string, 0, len(out.Columns))
		fields = append(fields, "", "", "")
		fields = append(fields,
			src.Value(row, etl.AttrAssetCode),
			src.Value(row, etl.AttrAssetOrParStatus),
			lastChanged.Format(etl.DisplayDateTimeLayout),
			before,
		)
		fields = append(fields, row.Fields...)
		if err := out.Append(fields...); err != nil {
			rowErrs = append(rowErrs, etl.RowError{Row: i, Key: code, Err: err})
		}
	}
	return out, rowErrs
}

func floorMinute(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, t.Location())
}

// clock renders d as hh:mm:ss. Whole days are dropped.
func clock(d time.Duration) string {
	d = d.Truncate(time.Second)
	h := int(d/time.Hour) % 24
	m := int(d/time.Minute) % 60
	s := int(d/time.Second) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
