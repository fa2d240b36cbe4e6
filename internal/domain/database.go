package domain

// DatabaseDriver represents the type of database engine.
type DatabaseDriver string

const (
	DatabaseDriverSQLServer DatabaseDriver = "sqlserver"
	DatabaseDriverMySQL     DatabaseDriver = "mysql"
	DatabaseDriverPostgres  DatabaseDriver = "postgres"
	DatabaseDriverSQLite    DatabaseDriver = "sqlite"
)

// DatabaseConnection holds the metadata for connecting to the source database server.
// The password is resolved separately through the SecretStore.
type DatabaseConnection struct {
	Driver   DatabaseDriver `json:"driver"`
	Host     string         `json:"host"`     // server name, or file path for sqlite
	Port     int            `json:"port"`     // 0 selects the driver default
	Instance string         `json:"instance"` // sqlserver named instance
	Database string         `json:"database"` // initial catalog, may be empty
	Username string         `json:"username"` // empty selects integrated auth on sqlserver
	SSLMode  string         `json:"sslMode"`
}

// IsIntegratedAuth reports whether the connection relies on the service account
// rather than a SQL login.
func (c *DatabaseConnection) IsIntegratedAuth() bool {
	return c.Driver == DatabaseDriverSQLServer && c.Username == ""
}
