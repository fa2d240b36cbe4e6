// Package app wires the configured service together: source database,
// job pipelines, server monitor, run history and scheduler.
package app

import (
	"context"
	"os"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/intelliw/LSAssetDataService/internal/config"
	"github.com/intelliw/LSAssetDataService/internal/dbclient"
	"github.com/intelliw/LSAssetDataService/internal/etl"
	"github.com/intelliw/LSAssetDataService/internal/etl/sources"
	"github.com/intelliw/LSAssetDataService/internal/etl/writers"
	_ "github.com/intelliw/LSAssetDataService/internal/jobs"
	"github.com/intelliw/LSAssetDataService/internal/logging"
	"github.com/intelliw/LSAssetDataService/internal/monitor"
	"github.com/intelliw/LSAssetDataService/internal/secret"
	"github.com/intelliw/LSAssetDataService/internal/service"
	"github.com/intelliw/LSAssetDataService/internal/storage"
)

// App owns every long-lived resource of the running service.
type App struct {
	cfg *config.Config
	log *log.Entry

	db      dbclient.Connector
	history storage.RunLogStore
	monitor *monitor.Monitor
	service *service.ExtractionService

	ready    chan struct{}
	mu       sync.Mutex
	serveCtx context.Context // nil outside Serve
	paused   bool
}

// New connects to the source database and run history, and builds a
// pipeline for every enabled job.
func New(ctx context.Context, cfg *config.Config, lg *log.Entry) (*App, error) {
	if lg == nil {
		lg = logging.Discard()
	}
	a := &App{cfg: cfg, log: lg, ready: make(chan struct{})}
	ilog := logging.WithEvent(lg, logging.EventInitialising)

	password, err := a.password()
	if err != nil {
		return nil, err
	}
	conn := cfg.Connection()
	a.db, err = dbclient.NewConnector(&conn, password)
	if err != nil {
		return nil, errors.Wrap(err, "source database")
	}

	a.history, err = storage.Open(ctx, cfg.History)
	if err != nil {
		a.db.Close()
		return nil, errors.Wrap(err, "run history")
	}

	pipelines, err := BuildPipelines(cfg, a.db, lg)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.monitor = monitor.New(NewProbe(cfg.Monitor), cfg.Monitor.Interval, lg)
	a.service = service.NewExtractionService(pipelines, a.monitor, a.history, &service.LogEmitter{Log: lg},
		service.Settings{Interval: cfg.RunInterval(), RunTimeout: cfg.RunTimeout}, lg)

	ilog.WithFields(log.Fields{
		"driver":   conn.Driver,
		"server":   conn.Host,
		"asset_db": cfg.Database.AssetDB,
		"ls_db":    cfg.Database.LSDB,
		"jobs":     a.service.Jobs(),
		"interval": cfg.RunInterval(),
	}).Info("service initialised")
	return a, nil
}

// Service returns the scheduler, for one-off runs and history queries.
func (a *App) Service() *service.ExtractionService { return a.service }

// Serve runs the monitor and scheduler until ctx is cancelled, then waits up
// to the shutdown grace period for in-flight runs.
func (a *App) Serve(ctx context.Context) error {
	logging.WithEvent(a.log, logging.EventStarting).Info("starting")

	if err := a.db.TestConnection(ctx); err != nil {
		// Not fatal: the database may come back before the first tick.
		logging.WithEvent(a.log, logging.EventQueryingData).WithError(err).Warn("source database unreachable")
	}

	a.monitor.Check(ctx)
	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		a.monitor.Run(ctx)
	}()

	a.mu.Lock()
	err := a.service.Start(ctx)
	if err == nil {
		a.serveCtx = ctx
	}
	a.mu.Unlock()
	if err != nil {
		return err
	}
	close(a.ready)
	logging.WithEvent(a.log, logging.EventRunning).WithField("server_status", a.monitor.Status().String()).Info("running")

	<-ctx.Done()
	logging.WithEvent(a.log, logging.EventStopping).Info("stopping")

	a.mu.Lock()
	a.serveCtx = nil
	a.mu.Unlock()
	graceCtx, cancel := a.graceContext()
	defer cancel()
	a.service.Stop(graceCtx)
	<-monitorDone
	return nil
}

// Ready is closed once Serve has started the scheduler.
func (a *App) Ready() <-chan struct{} { return a.ready }

// Pause stops scheduling runs, waiting up to the shutdown grace period for
// runs in flight. The monitor keeps tracking the server role.
func (a *App) Pause() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.serveCtx == nil || a.paused {
		return
	}
	logging.WithEvent(a.log, logging.EventPausing).Info("pausing")
	graceCtx, cancel := a.graceContext()
	defer cancel()
	a.service.Stop(graceCtx)
	a.paused = true
}

// Continue resumes scheduling after Pause. The first runs start at once if
// the server is ACTIVE.
func (a *App) Continue() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.serveCtx == nil {
		return errors.New("service is not serving")
	}
	if !a.paused {
		return nil
	}
	logging.WithEvent(a.log, logging.EventContinuing).Info("continuing")
	if err := a.service.Start(a.serveCtx); err != nil {
		return err
	}
	a.paused = false
	return nil
}

func (a *App) graceContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), a.cfg.ShutdownGrace)
}

// Close releases the database pool and the history store.
func (a *App) Close() error {
	var result *multierror.Error
	if a.db != nil {
		result = multierror.Append(result, a.db.Close())
	}
	if a.history != nil {
		result = multierror.Append(result, a.history.Close())
	}
	return result.ErrorOrNil()
}

// password resolves the database login password from the environment, then
// from the secrets directory. Integrated auth needs none.
func (a *App) password() (string, error) {
	conn := a.cfg.Connection()
	if conn.IsIntegratedAuth() {
		return "", nil
	}
	stores := []secret.SecretStore{secret.NewEnvStore(config.EnvPrefix)}
	if dir := a.cfg.Database.SecretsDir; dir != "" {
		stores = append(stores, secret.NewFileStore(dir))
	}
	pw, ok, err := secret.Lookup(a.cfg.Database.PasswordKey, stores...)
	if err != nil {
		return "", errors.Wrap(err, "resolve database password")
	}
	if !ok && conn.Username != "" {
		logging.WithEvent(a.log, logging.EventInitialising).
			WithField("key", a.cfg.Database.PasswordKey).
			Warn("no database password found, connecting without one")
	}
	return pw, nil
}

// ── Wiring ─────────────────────────────────────────────────

// JobSettings returns the strategy settings for job.
func JobSettings(cfg *config.Config, job string, lg *log.Entry) etl.JobSettings {
	return etl.JobSettings{
		AssetDB:           cfg.Database.AssetDB,
		LSDB:              cfg.Database.LSDB,
		RFIDPrefix:        cfg.RFID.Prefix,
		RFIDBits:          cfg.RFID.Bits,
		RetroactiveWindow: cfg.Job(job).RetroactiveWindow,
		QueriesDir:        cfg.Database.QueriesDir,
		Location:          cfg.Location(),
		Log:               lg,
	}
}

// BuildPipelines creates a pipeline for every registered, enabled job.
func BuildPipelines(cfg *config.Config, db sources.Querier, lg *log.Entry) ([]*etl.Pipeline, error) {
	var pipelines []*etl.Pipeline
	for _, name := range etl.ListStrategies() {
		if !cfg.JobEnabled(name) {
			continue
		}
		jlog := lg.WithField("job", name)
		strategy, err := etl.NewStrategy(name, JobSettings(cfg, name, lg))
		if err != nil {
			return nil, errors.Wrapf(err, "job %s", name)
		}
		writer, err := writers.ForFormat(strategy.Spec().Format)
		if err != nil {
			return nil, errors.Wrapf(err, "job %s", name)
		}
		dir := cfg.JobDir(name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "job %s: staging directory", name)
		}
		pipelines = append(pipelines, &etl.Pipeline{
			Strategy: strategy,
			Executor: &sources.DatabaseExecutor{DB: db, Strategy: strategy, Log: jlog},
			Writer:   writer,
			Resolver: &etl.CutoffResolver{Location: cfg.Location(), Log: jlog},
			Dir:      dir,

			LookbackDays: cfg.LookbackDays,
			QueryTimeout: cfg.QueryTimeout,
			WriteTimeout: cfg.WriteTimeout,
			Log:          jlog,
		})
	}
	if len(pipelines) == 0 {
		return nil, errors.New("no jobs enabled")
	}
	return pipelines, nil
}

// NewProbe returns the server status probe named by cfg.Probe.
func NewProbe(cfg config.MonitorConfig) monitor.Probe {
	switch cfg.Probe {
	case "file":
		return monitor.FileProbe{Path: cfg.File}
	case "static":
		return monitor.StaticProbe{}
	default:
		return monitor.ServiceProbe{Service: cfg.Service}
	}
}

