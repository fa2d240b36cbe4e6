package dbclient

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/intelliw/LSAssetDataService/internal/etl"
)

// sqlConnector is the shared implementation for every database/sql driver.
type sqlConnector struct {
	driverName string
	db         *sql.DB

	// dirtyReads runs queries in a READ UNCOMMITTED transaction so the
	// extract never waits on locks held by the applications writing the data.
	dirtyReads bool
}

// newSQLConnector creates a generic SQL connector.
func newSQLConnector(driverName, dsn string, dirtyReads bool) (*sqlConnector, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	// A service polls with one query at a time per job.
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(10 * time.Minute)

	return &sqlConnector{driverName: driverName, db: db, dirtyReads: dirtyReads}, nil
}

func (c *sqlConnector) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return c.db.PingContext(ctx)
}

func (c *sqlConnector) Query(ctx context.Context, query string) (*QueryResult, error) {
	if !c.dirtyReads {
		rows, err := c.db.QueryContext(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("query: %w", err)
		}
		return readAll(rows)
	}

	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadUncommitted})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	// Nothing is written, so the transaction is always rolled back.
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return readAll(rows)
}

// readAll drains rows, converting every value to its string form.
func readAll(rows *sql.Rows) (*QueryResult, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	result := &QueryResult{Columns: cols}

	numCols := len(cols)
	for rows.Next() {
		values := make([]any, numCols)
		ptrs := make([]any, numCols)
		for j := range values {
			ptrs[j] = &values[j]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		row := make([]string, numCols)
		for j, v := range values {
			row[j] = formatValue(v)
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return result, nil
}

// formatValue converts a database value to the string written to the
// staged files. Date/times keep the wall clock the server returned.
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(etl.SQLDateTimeLayout)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		if val {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprint(val)
	}
}

func (c *sqlConnector) Close() error {
	return c.db.Close()
}
