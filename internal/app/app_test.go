package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/intelliw/LSAssetDataService/internal/config"
	"github.com/intelliw/LSAssetDataService/internal/etl"
	"github.com/intelliw/LSAssetDataService/internal/logging"
	"github.com/intelliw/LSAssetDataService/internal/monitor"
)

// A workflow query for a flat SQLite replica of the agility and CORE tables.
const replicaWorkflowSQL = `
SELECT Code, StatusCode, LastChangeDate, CoreUID, CoreStatus, CoreRFID, CoreModifiedDate
FROM assets
WHERE LastChangeDate > '{{.RetroCutoff}}'
  AND EXISTS (SELECT 1 FROM assets WHERE LastChangeDate > '{{.Cutoff}}')
ORDER BY LastChangeDate DESC
`

type replica struct {
	dir    string
	source string
	cfg    *config.Config
}

func newReplica(t *testing.T, extra string) *replica {
	t.Helper()
	dir := t.TempDir()
	r := &replica{dir: dir, source: filepath.Join(dir, "source.db")}

	db, err := sql.Open("sqlite", r.source)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`CREATE TABLE assets (
		Code TEXT, StatusCode TEXT, LastChangeDate TEXT,
		CoreUID TEXT, CoreStatus TEXT, CoreRFID TEXT, CoreModifiedDate TEXT)`)
	require.NoError(t, err)

	queries := filepath.Join(dir, "queries")
	require.NoError(t, os.MkdirAll(queries, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(queries, "workflow.sql"), []byte(replicaWorkflowSQL), 0o644))

	cfgPath := filepath.Join(dir, "lsassetdata.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf(`
output_dir: %q
shutdown_grace: 5s
database:
  driver: sqlite
  server: %q
  queries_dir: %q
monitor:
  probe: static
history:
  path: %q
jobs:
  par:
    disabled: true
  provisioning:
    disabled: true
%s`, filepath.Join(dir, "staging"), r.source, queries, filepath.Join(dir, "history.db"), extra)), 0o644))

	r.cfg, err = config.Load(cfgPath)
	require.NoError(t, err)
	return r
}

func (r *replica) insert(t *testing.T, code, status string, changed time.Time) {
	t.Helper()
	db, err := sql.Open("sqlite", r.source)
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`INSERT INTO assets VALUES (?, ?, ?, ?, ?, ?, ?)`,
		code, status, changed.Format(etl.SQLDateTimeLayout), code, "Available", "", changed.Format(etl.SQLDateTimeLayout))
	require.NoError(t, err)
}

// ── Wiring ─────────────────────────────────────────────────

func TestApp_RunWorkflowAgainstReplica(t *testing.T) {
	r := newReplica(t, "")
	changed := time.Now().Add(-2 * time.Hour).Truncate(time.Millisecond)
	r.insert(t, "MTM42946", "AVAIL", changed)
	r.insert(t, "MTM42947", "REPAIR", changed.Add(-time.Minute))

	ctx := context.Background()
	a, err := New(ctx, r.cfg, logging.Discard())
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, []string{"workflow"}, a.Service().Jobs())

	result, err := a.Service().RunJob(ctx, "workflow")
	require.NoError(t, err)
	require.Equal(t, etl.RunWritten, result.Status)
	assert.Equal(t, 2, result.RowsWritten)
	assert.Equal(t, filepath.Join(r.dir, "staging", "workflow"), filepath.Dir(result.File))

	body, err := os.ReadFile(result.File)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Asset Category,Asset Type,Asset Model,Asset Code,Asset Status,Last Modified")
	assert.Contains(t, string(body), "MTM42946,AVAIL,")

	result, err = a.Service().RunJob(ctx, "workflow")
	require.NoError(t, err)
	assert.Equal(t, etl.RunNoChanges, result.Status)

	logs, err := a.Service().History(ctx, "workflow", 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "no_changes", logs[0].Status)
	assert.Equal(t, "written", logs[1].Status)
}

func TestApp_ServeStagesAndStops(t *testing.T) {
	r := newReplica(t, "")
	r.insert(t, "MTM1", "AVAIL", time.Now().Add(-time.Hour))

	a, err := New(context.Background(), r.cfg, logging.Discard())
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- a.Serve(ctx) }()

	staging := filepath.Join(r.dir, "staging", "workflow")
	assert.Eventually(t, func() bool {
		matches, _ := filepath.Glob(filepath.Join(staging, "AssetDataFile_*.csv"))
		return len(matches) == 1
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestApp_PauseAndContinue(t *testing.T) {
	r := newReplica(t, "")
	r.insert(t, "MTM1", "AVAIL", time.Now().Add(-time.Hour))

	a, err := New(context.Background(), r.cfg, logging.Discard())
	require.NoError(t, err)
	defer a.Close()
	assert.Error(t, a.Continue(), "not serving yet")

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- a.Serve(ctx) }()
	select {
	case <-a.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("Serve never became ready")
	}

	staging := filepath.Join(r.dir, "staging", "workflow")
	staged := func(n int) func() bool {
		return func() bool {
			matches, _ := filepath.Glob(filepath.Join(staging, "AssetDataFile_*.csv"))
			return len(matches) == n
		}
	}
	assert.Eventually(t, staged(1), 5*time.Second, 20*time.Millisecond)

	a.Pause()
	a.Pause()
	r.insert(t, "MTM2", "REPAIR", time.Now().Add(-30*time.Minute))

	require.NoError(t, a.Continue())
	require.NoError(t, a.Continue(), "continue while running is a no-op")
	assert.Eventually(t, staged(2), 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	assert.Error(t, a.Continue(), "not serving after shutdown")
}

func TestBuildPipelines_NoJobs(t *testing.T) {
	r := newReplica(t, "  workflow:\n    disabled: true\n")
	_, err := BuildPipelines(r.cfg, nil, logging.Discard())
	assert.ErrorContains(t, err, "no jobs enabled")
}

func TestBuildPipelines_CreatesStagingDirs(t *testing.T) {
	r := newReplica(t, "")
	pipelines, err := BuildPipelines(r.cfg, nil, logging.Discard())
	require.NoError(t, err)
	require.Len(t, pipelines, 1)
	assert.DirExists(t, pipelines[0].Dir)
	assert.Equal(t, r.cfg.LookbackDays, pipelines[0].LookbackDays)
}

func TestJobSettings(t *testing.T) {
	r := newReplica(t, "  workflow:\n    retroactive_window: 6h\n")
	s := JobSettings(r.cfg, "workflow", nil)
	assert.Equal(t, "PCH_Agility_UAT", s.AssetDB)
	assert.Equal(t, "ECSGCore", s.LSDB)
	assert.Equal(t, 6*time.Hour, s.RetroactiveWindow)
	assert.Equal(t, 16, s.RFIDBits)

	assert.Zero(t, JobSettings(r.cfg, "par", nil).RetroactiveWindow)
}

func TestNewProbe(t *testing.T) {
	assert.Equal(t, monitor.StaticProbe{}, NewProbe(config.MonitorConfig{Probe: "static"}))
	assert.Equal(t, monitor.FileProbe{Path: "/run/role"}, NewProbe(config.MonitorConfig{Probe: "file", File: "/run/role"}))
	assert.Equal(t, monitor.ServiceProbe{Service: "CORE"}, NewProbe(config.MonitorConfig{Probe: "service", Service: "CORE"}))
}

// ── Password ───────────────────────────────────────────────

func TestPassword(t *testing.T) {
	r := newReplica(t, "")
	a := &App{cfg: r.cfg, log: logging.Discard()}

	pw, err := a.password()
	require.NoError(t, err)
	assert.Empty(t, pw)

	secrets := filepath.Join(r.dir, "secrets")
	require.NoError(t, os.MkdirAll(secrets, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(secrets, "db_password"), []byte("from-file\n"), 0o600))
	r.cfg.Database.SecretsDir = secrets
	r.cfg.Database.Username = "svc_lsasset"

	pw, err = a.password()
	require.NoError(t, err)
	assert.Equal(t, "from-file", pw)

	t.Setenv("LSASSETDATA_DB_PASSWORD", "from-env")
	pw, err = a.password()
	require.NoError(t, err)
	assert.Equal(t, "from-env", pw)
}

func TestPassword_IntegratedAuth(t *testing.T) {
	t.Setenv("LSASSETDATA_DB_PASSWORD", "ignored")
	cfg, err := config.Load("")
	require.NoError(t, err)
	a := &App{cfg: cfg, log: logging.Discard()}

	pw, err := a.password()
	require.NoError(t, err)
	assert.Empty(t, pw)
}
