package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/intelliw/LSAssetDataService/internal/etl"
)

// DefaultListLimit caps history queries that ask for no limit.
const DefaultListLimit = 20

// RunLogStore persists the outcome of every pipeline run.
type RunLogStore interface {
	Save(ctx context.Context, log *etl.RunLog) error
	List(ctx context.Context, job string, limit int) ([]etl.RunLog, error)
	Close() error
}

// Config selects and configures the run history backend.
type Config struct {
	Driver     string `mapstructure:"driver" validate:"oneof=sqlite mongodb"`
	Path       string `mapstructure:"path" validate:"required_if=Driver sqlite"`
	URI        string `mapstructure:"uri" validate:"required_if=Driver mongodb"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

// Open returns the store named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (RunLogStore, error) {
	switch cfg.Driver {
	case "", "sqlite":
		db, err := New(cfg.Path)
		if err != nil {
			return nil, err
		}
		return NewSQLiteRunLogStore(db), nil
	case "mongodb":
		return NewMongoRunLogStore(ctx, cfg.URI, cfg.Database, cfg.Collection)
	default:
		return nil, fmt.Errorf("unsupported history driver: %s", cfg.Driver)
	}
}

// prepare assigns an id to logs that arrive without one.
func prepare(l *etl.RunLog) {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
}

func listLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

// ── SQLite ─────────────────────────────────────────────────

// SQLiteRunLogStore implements RunLogStore on the local SQLite DB.
type SQLiteRunLogStore struct {
	db *DB
}

// NewSQLiteRunLogStore creates a new SQLiteRunLogStore.
func NewSQLiteRunLogStore(db *DB) *SQLiteRunLogStore {
	return &SQLiteRunLogStore{db: db}
}

func (s *SQLiteRunLogStore) Save(ctx context.Context, l *etl.RunLog) error {
	prepare(l)
	_, err := s.db.conn.ExecContext(ctx,
		`INSERT INTO run_logs (id, job, started_at, finished_at, status, cutoff, watermark,
		 rows_read, rows_written, rows_skipped, file, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.Job, l.StartedAt.UTC(), l.FinishedAt.UTC(), l.Status, l.Cutoff.UTC(), l.Watermark.UTC(),
		l.RowsRead, l.RowsWritten, l.RowsSkipped, l.File, l.Error,
	)
	return err
}

func (s *SQLiteRunLogStore) List(ctx context.Context, job string, limit int) ([]etl.RunLog, error) {
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT id, job, started_at, finished_at, status, cutoff, watermark,
		 rows_read, rows_written, rows_skipped, file, error
		 FROM run_logs WHERE job = ? ORDER BY started_at DESC LIMIT ?`,
		job, listLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []etl.RunLog
	for rows.Next() {
		var l etl.RunLog
		if err := rows.Scan(&l.ID, &l.Job, &l.StartedAt, &l.FinishedAt, &l.Status, &l.Cutoff, &l.Watermark,
			&l.RowsRead, &l.RowsWritten, &l.RowsSkipped, &l.File, &l.Error); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (s *SQLiteRunLogStore) Close() error {
	return s.db.Close()
}
