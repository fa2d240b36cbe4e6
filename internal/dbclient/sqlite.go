package dbclient

import (
	"github.com/intelliw/LSAssetDataService/internal/domain"

	_ "modernc.org/sqlite"
)

// newSQLiteConnector creates a connector for a SQLite file, used for local
// replicas and tests. SQLite has no dirty reads, so queries run directly.
func newSQLiteConnector(conn *domain.DatabaseConnection) (*sqlConnector, error) {
	dsn := "file:" + conn.Host + "?_pragma=busy_timeout(5000)"
	return newSQLConnector("sqlite", dsn, false)
}
