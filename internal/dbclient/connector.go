package dbclient

import (
	"context"
	"fmt"

	"github.com/intelliw/LSAssetDataService/internal/domain"
)

// QueryResult is a fully read query result. Every value is rendered as a
// string; NULL becomes "".
type QueryResult struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Connector abstracts interaction with the source database.
type Connector interface {
	// TestConnection verifies connectivity.
	TestConnection(ctx context.Context) error

	// Query runs a read query to completion and returns every row.
	Query(ctx context.Context, query string) (*QueryResult, error)

	// Close releases the connection pool.
	Close() error
}

// NewConnector creates a Connector for the given database connection.
// The password must be provided separately (from SecretStore).
func NewConnector(conn *domain.DatabaseConnection, password string) (Connector, error) {
	switch conn.Driver {
	case domain.DatabaseDriverSQLServer, "":
		return newSQLConnector("sqlserver", buildSQLServerDSN(conn, password), true)
	case domain.DatabaseDriverSQLite:
		return newSQLiteConnector(conn)
	case domain.DatabaseDriverMySQL:
		return newSQLConnector("mysql", buildMySQLDSN(conn, password), true)
	case domain.DatabaseDriverPostgres:
		return newSQLConnector("postgres", buildPostgresDSN(conn, password), true)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", conn.Driver)
	}
}
