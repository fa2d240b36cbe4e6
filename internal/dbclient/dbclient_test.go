package dbclient

import (
	"context"
	"database/sql"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intelliw/LSAssetDataService/internal/domain"
)

func seedSQLite(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "replica.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	for _, stmt := range []string{
		`CREATE TABLE assets (code TEXT, qty INTEGER, ratio REAL, note TEXT, changed TEXT)`,
		`INSERT INTO assets VALUES ('MTM1', 3, 1.5, NULL, '2024-03-15 09:30:00.123')`,
		`INSERT INTO assets VALUES ('MTM2', 0, 2, 'spare', '2024-03-15 10:00:00.000')`,
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	return path
}

func TestSQLiteConnector_Query(t *testing.T) {
	path := seedSQLite(t)
	c, err := NewConnector(&domain.DatabaseConnection{Driver: domain.DatabaseDriverSQLite, Host: path}, "")
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.TestConnection(ctx))

	res, err := c.Query(ctx, `SELECT code, qty, ratio, note, changed FROM assets ORDER BY code`)
	require.NoError(t, err)
	assert.Equal(t, []string{"code", "qty", "ratio", "note", "changed"}, res.Columns)
	assert.Equal(t, [][]string{
		{"MTM1", "3", "1.5", "", "2024-03-15 09:30:00.123"},
		{"MTM2", "0", "2", "spare", "2024-03-15 10:00:00.000"},
	}, res.Rows)
}

func TestSQLiteConnector_EmptyResult(t *testing.T) {
	c, err := NewConnector(&domain.DatabaseConnection{Driver: domain.DatabaseDriverSQLite, Host: seedSQLite(t)}, "")
	require.NoError(t, err)
	defer c.Close()

	res, err := c.Query(context.Background(), `SELECT code FROM assets WHERE qty > 100`)
	require.NoError(t, err)
	assert.Equal(t, []string{"code"}, res.Columns)
	assert.Empty(t, res.Rows)
}

func TestSQLiteConnector_BadQuery(t *testing.T) {
	c, err := NewConnector(&domain.DatabaseConnection{Driver: domain.DatabaseDriverSQLite, Host: seedSQLite(t)}, "")
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Query(context.Background(), `SELECT nope FROM missing`)
	assert.Error(t, err)
}

func TestSQLiteConnector_Cancelled(t *testing.T) {
	c, err := NewConnector(&domain.DatabaseConnection{Driver: domain.DatabaseDriverSQLite, Host: seedSQLite(t)}, "")
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Query(ctx, `SELECT code FROM assets`)
	assert.Error(t, err)
}

func TestNewConnector_UnknownDriver(t *testing.T) {
	_, err := NewConnector(&domain.DatabaseConnection{Driver: "oracle"}, "")
	assert.Error(t, err)
}

func TestFormatValue(t *testing.T) {
	ts := time.Date(2024, 3, 15, 9, 30, 0, 123e6, time.UTC)
	assert.Equal(t, "", formatValue(nil))
	assert.Equal(t, "abc", formatValue([]byte("abc")))
	assert.Equal(t, "2024-03-15 09:30:00.123", formatValue(ts))
	assert.Equal(t, "42", formatValue(int64(42)))
	assert.Equal(t, "0.25", formatValue(0.25))
	assert.Equal(t, "1", formatValue(true))
	assert.Equal(t, "7", formatValue(int32(7)))
}

// ── DSNs ───────────────────────────────────────────────────

func TestBuildSQLServerDSN_IntegratedAuth(t *testing.T) {
	dsn := buildSQLServerDSN(&domain.DatabaseConnection{Driver: domain.DatabaseDriverSQLServer, Host: "wsc901usql"}, "")
	u, err := url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "sqlserver", u.Scheme)
	assert.Equal(t, "wsc901usql", u.Host)
	assert.Nil(t, u.User)
	assert.Equal(t, "LSAssetDataService", u.Query().Get("app name"))
}

func TestBuildSQLServerDSN_Login(t *testing.T) {
	dsn := buildSQLServerDSN(&domain.DatabaseConnection{
		Driver: domain.DatabaseDriverSQLServer, Host: "db", Port: 1444, Instance: "CORE",
		Database: "ECSGCore", Username: "svc", SSLMode: "true",
	}, "p@ss word")
	u, err := url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "db:1444", u.Host)
	assert.Equal(t, "/CORE", u.Path)
	assert.Equal(t, "svc", u.User.Username())
	pw, _ := u.User.Password()
	assert.Equal(t, "p@ss word", pw)
	assert.Equal(t, "ECSGCore", u.Query().Get("database"))
	assert.Equal(t, "true", u.Query().Get("encrypt"))
}

func TestBuildPostgresDSN(t *testing.T) {
	dsn := buildPostgresDSN(&domain.DatabaseConnection{Host: "pg", Username: "svc", Database: "ECSGCore"}, "p@ss word")
	u, err := url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "postgres", u.Scheme)
	assert.Equal(t, "pg:5432", u.Host)
	assert.Equal(t, "/ECSGCore", u.Path)
	pw, _ := u.User.Password()
	assert.Equal(t, "p@ss word", pw)
	assert.Equal(t, "disable", u.Query().Get("sslmode"))
	assert.Equal(t, "LSAssetDataService", u.Query().Get("application_name"))

	dsn = buildPostgresDSN(&domain.DatabaseConnection{Host: "pg", Port: 6432, Database: "core", SSLMode: "require"}, "")
	u, err = url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "pg:6432", u.Host)
	assert.Nil(t, u.User)
	assert.Equal(t, "require", u.Query().Get("sslmode"))
}

func TestBuildMySQLDSN(t *testing.T) {
	dsn := buildMySQLDSN(&domain.DatabaseConnection{Host: "my", Username: "u", Database: "core", SSLMode: "require"}, "pw")
	assert.Equal(t, "u:pw@tcp(my:3306)/core?charset=utf8mb4&tls=true", dsn)
}
