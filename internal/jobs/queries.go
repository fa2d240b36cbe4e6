// Package jobs holds the extraction job types. Each file registers one
// etl.Strategy: its SQL template, its output layout and the column mapping
// from query result to staged file.
package jobs

import (
	"bytes"
	"embed"
	"os"
	"path/filepath"
	"text/template"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/intelliw/LSAssetDataService/internal/etl"
	"github.com/intelliw/LSAssetDataService/internal/logging"
)

//go:embed queries/*.sql
var embeddedQueries embed.FS

// queryData is the value each SQL template is executed against.
type queryData struct {
	AssetDB     string
	LSDB        string
	Cutoff      string
	RetroCutoff string
}

// loadQuery returns the template for job. A file named <job>.sql in dir
// replaces the embedded template.
func loadQuery(job, dir string) (*template.Template, error) {
	name := job + ".sql"
	var (
		src []byte
		err error
	)
	if dir != "" {
		src, err = os.ReadFile(filepath.Join(dir, name))
		if err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "read query override %s", name)
		}
	}
	if src == nil {
		src, err = embeddedQueries.ReadFile("queries/" + name)
		if err != nil {
			return nil, errors.Wrapf(err, "no query template for %s", job)
		}
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(string(src))
	if err != nil {
		return nil, errors.Wrapf(err, "parse query %s", name)
	}
	return tmpl, nil
}

func renderQuery(tmpl *template.Template, data queryData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", errors.Wrapf(err, "render query %s", tmpl.Name())
	}
	return buf.String(), nil
}

// sqlTime renders t the way cutoffs are spliced into the queries, on the
// same clock the source timestamps are read with.
func sqlTime(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(etl.SQLDateTimeLayout)
}

// checkDatabases reports a missing database name. Every job reads the LS
// database; only the agility joins need the asset database.
func checkDatabases(s etl.JobSettings, needAsset bool) error {
	if needAsset && s.AssetDB == "" {
		return errors.New("asset database name is required")
	}
	if s.LSDB == "" {
		return errors.New("LS database name is required")
	}
	return nil
}

func jobLogger(s etl.JobSettings, job string) *log.Entry {
	lg := s.Log
	if lg == nil {
		lg = logging.Discard()
	}
	return logging.WithEvent(lg.WithField("job", job), logging.EventQueryingData)
}
