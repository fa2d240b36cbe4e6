package logging

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	FormatText = "text"
	FormatJSON = "json"

	// RFC3339Milli keeps millisecond precision so log lines line up with the
	// SQL timestamps the jobs print.
	RFC3339Milli = "2006-01-02T15:04:05.000Z07:00"
)

// Config controls console and rotating file output.
type Config struct {
	Level      string `mapstructure:"level" validate:"omitempty,oneof=trace debug info warn warning error fatal panic"`
	Format     string `mapstructure:"format" validate:"omitempty,oneof=text json"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"gte=0"`
	Compress   bool   `mapstructure:"compress"`
}

// Configure builds a logger writing to stdout and, when cfg.File is set, to a
// lumberjack-rotated file. The returned closer releases the file handle.
func Configure(cfg Config) (*log.Logger, io.Closer, error) {
	logger := log.New()

	level := cfg.Level
	if level == "" {
		level = "info"
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "parse log level %q", cfg.Level)
	}
	logger.SetLevel(lvl)

	switch strings.ToLower(cfg.Format) {
	case FormatJSON:
		logger.SetFormatter(&log.JSONFormatter{TimestampFormat: RFC3339Milli})
	default:
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true, TimestampFormat: RFC3339Milli})
	}

	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		logger.SetOutput(io.MultiWriter(os.Stdout, rotating))
		closer = rotating
	} else {
		logger.SetOutput(os.Stdout)
	}

	return logger, closer, nil
}

// Discard returns an entry that drops everything. Useful as a default for
// components constructed without a logger.
func Discard() *log.Entry {
	l := log.New()
	l.SetOutput(io.Discard)
	return log.NewEntry(l)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
