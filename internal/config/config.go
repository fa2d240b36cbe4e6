// Package config loads the service configuration from a YAML file and
// LSASSETDATA_* environment variables.
package config

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/intelliw/LSAssetDataService/internal/domain"
	"github.com/intelliw/LSAssetDataService/internal/logging"
	"github.com/intelliw/LSAssetDataService/internal/storage"
)

const (
	EnvPrefix = "LSASSETDATA"

	DefaultIntervalSeconds = 20
	maxIntervalMinutes     = 1440
	maxIntervalSeconds     = 59
)

type Config struct {
	Interval IntervalConfig `mapstructure:"interval"`
	// Root staging directory; each job writes to <output_dir>/<job> unless
	// jobs.<job>.dir is set.
	OutputDir     string        `mapstructure:"output_dir" validate:"required"`
	LookbackDays  int           `mapstructure:"lookback_days" validate:"gte=1,lte=366"`
	QueryTimeout  time.Duration `mapstructure:"query_timeout" validate:"gt=0"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	RunTimeout    time.Duration `mapstructure:"run_timeout" validate:"gt=0"`
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace" validate:"gte=0"`
	// IANA zone for file names and query timestamps; empty means local time.
	Timezone string `mapstructure:"timezone"`

	Database DatabaseConfig       `mapstructure:"database"`
	RFID     RFIDConfig           `mapstructure:"rfid"`
	Monitor  MonitorConfig        `mapstructure:"monitor"`
	Jobs     map[string]JobConfig `mapstructure:"jobs" validate:"dive"`
	Logging  logging.Config       `mapstructure:"logging"`
	History  storage.Config       `mapstructure:"history"`
}

// IntervalConfig is the run interval as separate minute and second parts.
type IntervalConfig struct {
	Minutes int `mapstructure:"minutes"`
	Seconds int `mapstructure:"seconds"`
}

type DatabaseConfig struct {
	Driver   domain.DatabaseDriver `mapstructure:"driver" validate:"oneof=sqlserver postgres mysql sqlite"`
	Server   string                `mapstructure:"server" validate:"required"`
	Port     int                   `mapstructure:"port" validate:"gte=0,lte=65535"`
	Instance string                `mapstructure:"instance"`
	Username string                `mapstructure:"username"`
	SSLMode  string                `mapstructure:"ssl_mode"`

	// Key looked up in the secret stores for the login password.
	PasswordKey string `mapstructure:"password_key"`
	// Directory of secret files consulted after the environment.
	SecretsDir string `mapstructure:"secrets_dir"`

	AssetDB    string `mapstructure:"asset_db" validate:"required,sqlident"`
	LSDB       string `mapstructure:"ls_db" validate:"required,sqlident"`
	QueriesDir string `mapstructure:"queries_dir"`
}

type RFIDConfig struct {
	Prefix string `mapstructure:"prefix"`
	Bits   int    `mapstructure:"bits" validate:"gte=2,lte=64"`
}

type MonitorConfig struct {
	Probe    string        `mapstructure:"probe" validate:"oneof=service file static"`
	Service  string        `mapstructure:"service" validate:"required_if=Probe service"`
	File     string        `mapstructure:"file" validate:"required_if=Probe file"`
	Interval time.Duration `mapstructure:"interval" validate:"gt=0"`
}

type JobConfig struct {
	Disabled          bool          `mapstructure:"disabled"`
	Dir               string        `mapstructure:"dir"`
	RetroactiveWindow time.Duration `mapstructure:"retroactive_window" validate:"gte=0"`
}

// ── Defaults ───────────────────────────────────────────────

func setDefaults(v *viper.Viper) {
	v.SetDefault("interval.minutes", 0)
	v.SetDefault("interval.seconds", DefaultIntervalSeconds)
	v.SetDefault("output_dir", "staging")
	v.SetDefault("lookback_days", 5)
	v.SetDefault("query_timeout", 2*time.Minute)
	v.SetDefault("write_timeout", time.Minute)
	v.SetDefault("run_timeout", 5*time.Minute)
	v.SetDefault("shutdown_grace", 30*time.Second)
	v.SetDefault("timezone", "")

	v.SetDefault("database.driver", string(domain.DatabaseDriverSQLServer))
	v.SetDefault("database.server", "wsc901usql")
	v.SetDefault("database.port", 0)
	v.SetDefault("database.instance", "")
	v.SetDefault("database.username", "")
	v.SetDefault("database.ssl_mode", "")
	v.SetDefault("database.password_key", "db_password")
	v.SetDefault("database.secrets_dir", "")
	v.SetDefault("database.asset_db", "PCH_Agility_UAT")
	v.SetDefault("database.ls_db", "ECSGCore")
	v.SetDefault("database.queries_dir", "")

	v.SetDefault("rfid.prefix", "")
	v.SetDefault("rfid.bits", 16)

	v.SetDefault("monitor.probe", "service")
	v.SetDefault("monitor.service", "CORE RFID Tag Stream Win Service")
	v.SetDefault("monitor.file", "")
	v.SetDefault("monitor.interval", 5*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", false)

	v.SetDefault("history.driver", "sqlite")
	v.SetDefault("history.path", filepath.Join("data", "history.db"))
	v.SetDefault("history.uri", "")
	v.SetDefault("history.database", "")
	v.SetDefault("history.collection", "")
}

// ── Loading ────────────────────────────────────────────────

// Load reads path (optional) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.RFID.Prefix = strings.TrimSpace(c.RFID.Prefix)
	if r := []rune(c.RFID.Prefix); len(r) > 1 {
		c.RFID.Prefix = string(r[:1])
	}
	if c.Database.Driver == "" {
		c.Database.Driver = domain.DatabaseDriverSQLServer
	}
	jobs := make(map[string]JobConfig, len(c.Jobs))
	for name, j := range c.Jobs {
		jobs[strings.ToLower(name)] = j
	}
	c.Jobs = jobs
}

// ── Validation ─────────────────────────────────────────────

// Database names are spliced into query text.
var sqlIdentPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$#@]{0,127}$`)

func validateSQLIdent(fl validator.FieldLevel) bool {
	return sqlIdentPattern.MatchString(fl.Field().String())
}

// Validate checks the struct tags and the cross-field rules, reporting every
// failure at once.
func (c Config) Validate() error {
	validate := validator.New()
	if err := validate.RegisterValidation("sqlident", validateSQLIdent); err != nil {
		return err
	}

	var result *multierror.Error
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				result = multierror.Append(result, errors.Errorf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
		} else {
			result = multierror.Append(result, err)
		}
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "timezone"))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	return nil
}

// ── Derived values ─────────────────────────────────────────

// RunInterval returns the total run interval. Minutes outside 0..1440 and
// seconds outside 0..59 are ignored; a zero total falls back to 20s.
func (c *Config) RunInterval() time.Duration {
	var d time.Duration
	if m := c.Interval.Minutes; m >= 0 && m <= maxIntervalMinutes {
		d += time.Duration(m) * time.Minute
	}
	if s := c.Interval.Seconds; s >= 0 && s <= maxIntervalSeconds {
		d += time.Duration(s) * time.Second
	}
	if d == 0 {
		d = DefaultIntervalSeconds * time.Second
	}
	return d
}

// Location returns the configured time zone, or time.Local.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Job returns the settings for job, zero-valued when none are configured.
func (c *Config) Job(name string) JobConfig {
	return c.Jobs[strings.ToLower(name)]
}

// JobEnabled reports whether job should be scheduled.
func (c *Config) JobEnabled(name string) bool {
	return !c.Job(name).Disabled
}

// JobDir returns the staging directory for job.
func (c *Config) JobDir(name string) string {
	if dir := c.Job(name).Dir; dir != "" {
		return dir
	}
	return filepath.Join(c.OutputDir, name)
}

// Connection returns the source database connection metadata.
func (c *Config) Connection() domain.DatabaseConnection {
	return domain.DatabaseConnection{
		Driver:   c.Database.Driver,
		Host:     c.Database.Server,
		Port:     c.Database.Port,
		Instance: c.Database.Instance,
		Username: c.Database.Username,
		SSLMode:  c.Database.SSLMode,
	}
}
