package jobs

import (
	"strconv"
	"text/template"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/intelliw/LSAssetDataService/internal/etl"
	"github.com/intelliw/LSAssetDataService/internal/par"
)

// ── PAR report ─────────────────────────────────────────────
// Equipment level report: tagged asset counts per zone against the PAR
// rules, with the current status recomputed because CORE lags behind.

const PARJob = "par"

var parHeaders = []string{
	"Cur-Status", "Cur-Qty", "Cur-Repl Qty", "PAR Rule-Status", "PAR Rule-Qty", "PAR Rule-Repl Qty",
	"Level", "Zone-Type", "Zone", "Asset-Category", "Asset-Type", "Asset-Model", "Asset-Model Descr", "Workflow Statuses",
	"PAR Rule-Name", "PAR Rule-Date", "Cur-Status Date",
}

func init() {
	etl.RegisterStrategy(PARJob, NewPAR)
}

type PAR struct {
	tmpl     *template.Template
	settings etl.JobSettings
	log      *log.Entry
}

// NewPAR builds the PAR report strategy.
func NewPAR(s etl.JobSettings) (etl.Strategy, error) {
	if err := checkDatabases(s, false); err != nil {
		return nil, err
	}
	tmpl, err := loadQuery(PARJob, s.QueriesDir)
	if err != nil {
		return nil, err
	}
	return &PAR{tmpl: tmpl, settings: s, log: jobLogger(s, PARJob)}, nil
}

func (p *PAR) Spec() etl.StrategySpec {
	return etl.StrategySpec{
		Name:       PARJob,
		Label:      "Asset PAR Data",
		Prefix:     "AssetPARDataFile",
		Format:     etl.FormatXLSX,
		Retain:     3,
		Overwrite:  true,
		SheetName:  "PAR Data",
		MirrorName: "MASTER_AssetPARDataFile",
	}
}

// BuildQuery returns the full report. The cutoff is not used to filter:
// every run is a complete snapshot.
func (p *PAR) BuildQuery(cutoff time.Time) (etl.Query, error) {
	text, err := renderQuery(p.tmpl, queryData{
		AssetDB: p.settings.AssetDB,
		LSDB:    p.settings.LSDB,
		Cutoff:  sqlTime(cutoff, p.settings.Location),
	})
	if err != nil {
		return etl.Query{}, err
	}

	ix := etl.NewAttributeIndex()
	for col, a := range []etl.Attribute{
		etl.AttrAssetOrParStatus, etl.AttrAssetQuantity, etl.AttrParRuleStatus, etl.AttrParRuleQty, etl.AttrParRuleRepQty,
		etl.AttrLevel, etl.AttrZoneType, etl.AttrAssetSublocationOrZone,
		etl.AttrAssetCategory, etl.AttrAssetType, etl.AttrAssetModel, etl.AttrAssetModelDescription, etl.AttrWorkflowStatus,
		etl.AttrParRule, etl.AttrCoreModifiedDate, etl.AttrLastChanged,
	} {
		ix.Set(a, col)
	}
	return etl.Query{Text: text, Index: ix}, nil
}

func (p *PAR) MapColumns(src *etl.Recordset) (*etl.Recordset, []etl.RowError) {
	out := etl.NewRecordset(p.Spec().SheetName, parHeaders)
	out.LastModified = src.LastModified
	loc := p.settings.Location

	var rowErrs []etl.RowError
	for i, row := range src.Rows {
		ruleLabel := src.Value(row, etl.AttrParRuleStatus)
		in := par.Input{
			CurQty:      etl.ParseIntLenient(src.Value(row, etl.AttrAssetQuantity)),
			RuleQty:     etl.ParseIntLenient(src.Value(row, etl.AttrParRuleQty)),
			RuleReplQty: etl.ParseIntLenient(src.Value(row, etl.AttrParRuleRepQty)),
			RuleStatus:  par.ParseStatus(ruleLabel),
			Reported:    par.ParseStatus(src.Value(row, etl.AttrAssetOrParStatus)),
		}
		res := par.Evaluate(in)

		// Rows with counts but no rule have no status date.
		statusDate := src.Value(row, etl.AttrLastChanged)
		if statusDate != "" {
			if t, err := etl.ParseSQLTime(statusDate, loc); err == nil {
				out.Touch(t)
			} else {
				p.log.WithField("value", statusDate).Trace("could not parse status date")
			}
		}

		err := out.Append(
			res.Status.Label(),
			strconv.Itoa(in.CurQty),
			strconv.Itoa(res.ReplQty),
			ruleLabel,
			strconv.Itoa(in.RuleQty),
			strconv.Itoa(in.RuleReplQty),
			src.Value(row, etl.AttrLevel),
			src.Value(row, etl.AttrZoneType),
			src.Value(row, etl.AttrAssetSublocationOrZone),
			src.Value(row, etl.AttrAssetCategory),
			src.Value(row, etl.AttrAssetType),
			src.Value(row, etl.AttrAssetModel),
			src.Value(row, etl.AttrAssetModelDescription),
			src.Value(row, etl.AttrWorkflowStatus),
			src.Value(row, etl.AttrParRule),
			src.Value(row, etl.AttrCoreModifiedDate),
			statusDate,
		)
		if err != nil {
			rowErrs = append(rowErrs, etl.RowError{Row: i, Err: err})
		}
	}
	return out, rowErrs
}
