package dbclient

import (
	"net"
	"net/url"
	"strconv"

	"github.com/intelliw/LSAssetDataService/internal/domain"

	_ "github.com/lib/pq"
)

// buildPostgresDSN builds a postgres:// URL for a replica of the source
// tables. Credentials go through url.UserPassword so any character is safe.
func buildPostgresDSN(conn *domain.DatabaseConnection, password string) string {
	port := conn.Port
	if port == 0 {
		port = 5432
	}
	u := &url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(conn.Host, strconv.Itoa(port)),
		Path:   "/" + conn.Database,
	}
	if conn.Username != "" {
		u.User = url.UserPassword(conn.Username, password)
	}

	q := url.Values{}
	q.Set("application_name", "LSAssetDataService")
	sslMode := conn.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	q.Set("sslmode", sslMode)
	u.RawQuery = q.Encode()
	return u.String()
}
