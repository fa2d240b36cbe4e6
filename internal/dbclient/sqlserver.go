package dbclient

import (
	"fmt"
	"net/url"

	"github.com/intelliw/LSAssetDataService/internal/domain"

	_ "github.com/microsoft/go-mssqldb"
)

// buildSQLServerDSN constructs a sqlserver:// URL from a DatabaseConnection.
// Without a username the driver authenticates as the service account.
func buildSQLServerDSN(conn *domain.DatabaseConnection, password string) string {
	host := conn.Host
	if conn.Port != 0 {
		host = fmt.Sprintf("%s:%d", conn.Host, conn.Port)
	}
	u := &url.URL{Scheme: "sqlserver", Host: host}
	if conn.Instance != "" {
		u.Path = conn.Instance
	}
	if conn.Username != "" {
		u.User = url.UserPassword(conn.Username, password)
	}

	q := url.Values{}
	q.Set("app name", "LSAssetDataService")
	if conn.Database != "" {
		q.Set("database", conn.Database)
	}
	if conn.SSLMode != "" {
		q.Set("encrypt", conn.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
