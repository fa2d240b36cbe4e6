package sources

import (
	"context"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/intelliw/LSAssetDataService/internal/dbclient"
	"github.com/intelliw/LSAssetDataService/internal/etl"
	"github.com/intelliw/LSAssetDataService/internal/logging"
)

// ── Database Source ────────────────────────────────────────
// Runs a strategy's query against the source database and returns the rows
// as a Recordset. Reuses the dbclient.Connector infrastructure.

const (
	DefaultAttempts   = 3
	DefaultRetryDelay = 2 * time.Second
)

// Querier is the part of dbclient.Connector the executor needs.
type Querier interface {
	Query(ctx context.Context, query string) (*dbclient.QueryResult, error)
}

// DatabaseExecutor is the etl.QueryExecutor for one job.
type DatabaseExecutor struct {
	DB       Querier
	Strategy etl.Strategy

	// Attempts and RetryDelay bound transient failures such as a dropped
	// connection. Zero selects the defaults.
	Attempts   uint
	RetryDelay time.Duration

	Log *log.Entry
}

var _ etl.QueryExecutor = (*DatabaseExecutor)(nil)

func (e *DatabaseExecutor) Fetch(ctx context.Context, cutoff time.Time) (*etl.Recordset, error) {
	q, err := e.Strategy.BuildQuery(cutoff)
	if err != nil {
		return nil, errors.Wrap(err, "build query")
	}

	lg := e.logger().WithField("job", e.Strategy.Spec().Name)
	var res *dbclient.QueryResult
	err = retry.Do(
		func() error {
			var qerr error
			res, qerr = e.DB.Query(ctx, q.Text)
			return qerr
		},
		retry.Context(ctx),
		retry.Attempts(e.attempts()),
		retry.Delay(e.retryDelay()),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			lg.WithError(err).WithField("attempt", n+1).Warn("query failed, retrying")
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "query")
	}

	rs := etl.NewRecordset(e.Strategy.Spec().SheetName, res.Columns)
	rs.Index = q.Index
	rs.LastModified = cutoff
	rs.Rows = make([]etl.Row, 0, len(res.Rows))
	for _, r := range res.Rows {
		rs.Rows = append(rs.Rows, etl.Row{Fields: r})
	}
	if rs.Len() > 0 {
		if err := rs.Validate(); err != nil {
			return nil, errors.Wrap(err, "query result does not match the job layout")
		}
	}
	return rs, nil
}

func (e *DatabaseExecutor) attempts() uint {
	if e.Attempts == 0 {
		return DefaultAttempts
	}
	return e.Attempts
}

func (e *DatabaseExecutor) retryDelay() time.Duration {
	if e.RetryDelay <= 0 {
		return DefaultRetryDelay
	}
	return e.RetryDelay
}

func (e *DatabaseExecutor) logger() *log.Entry {
	lg := e.Log
	if lg == nil {
		lg = logging.Discard()
	}
	return logging.WithEvent(lg, logging.EventQueryingData)
}
