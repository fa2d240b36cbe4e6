package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/intelliw/LSAssetDataService/internal/domain"
	"github.com/intelliw/LSAssetDataService/internal/etl"
	"github.com/intelliw/LSAssetDataService/internal/logging"
	"github.com/intelliw/LSAssetDataService/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// Extraction Service: schedules the extraction pipelines
// ─────────────────────────────────────────────────────────────

const (
	DefaultInterval   = 20 * time.Second
	DefaultRunTimeout = 5 * time.Minute

	// EventDatafileStaged is emitted after a run stages a new file.
	EventDatafileStaged = "datafile:staged"
)

var (
	ErrUnknownJob = errors.New("unknown job")
	ErrJobRunning = errors.New("job is already running")
)

// Settings tunes the scheduler.
type Settings struct {
	Interval   time.Duration
	RunTimeout time.Duration
}

// StagedFile is the payload of EventDatafileStaged.
type StagedFile struct {
	Job       string    `json:"job"`
	RunID     string    `json:"runId"`
	File      string    `json:"file"`
	Rows      int       `json:"rows"`
	Watermark time.Time `json:"watermark"`
}

// ExtractionService runs every pipeline on a fixed interval while the
// server is ACTIVE, and records the outcome of each run.
type ExtractionService struct {
	pipelines map[string]*etl.Pipeline
	status    domain.ServerStatusProvider
	history   storage.RunLogStore
	emitter   EventEmitter
	settings  Settings
	log       *log.Entry

	runs jobRuns
	// first runs launched by Start, tracked from before they take the guard
	firstRuns sync.WaitGroup

	mu        sync.Mutex
	cronSched *cron.Cron
	cancel    context.CancelFunc
}

// NewExtractionService creates an ExtractionService. history may be nil,
// in which case run logs are not kept.
func NewExtractionService(
	pipelines []*etl.Pipeline,
	status domain.ServerStatusProvider,
	history storage.RunLogStore,
	emitter EventEmitter,
	settings Settings,
	lg *log.Entry,
) *ExtractionService {
	if lg == nil {
		lg = logging.Discard()
	}
	if emitter == nil {
		emitter = &LogEmitter{Log: lg}
	}
	if status == nil {
		status = alwaysActive{}
	}
	if settings.Interval <= 0 {
		settings.Interval = DefaultInterval
	}
	if settings.RunTimeout <= 0 {
		settings.RunTimeout = DefaultRunTimeout
	}
	byName := make(map[string]*etl.Pipeline, len(pipelines))
	for _, p := range pipelines {
		byName[p.Strategy.Spec().Name] = p
	}
	return &ExtractionService{
		pipelines: byName,
		status:    status,
		history:   history,
		emitter:   emitter,
		settings:  settings,
		log:       logging.WithEvent(lg, logging.EventExecutingService),
	}
}

type alwaysActive struct{}

func (alwaysActive) Status() domain.ServerStatus { return domain.ServerStatusActive }

// ── Jobs ───────────────────────────────────────────────────

// Jobs returns the names of the scheduled jobs, sorted.
func (s *ExtractionService) Jobs() []string {
	names := make([]string, 0, len(s.pipelines))
	for name := range s.pipelines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Specs returns the file spec of every scheduled job, sorted by name.
func (s *ExtractionService) Specs() []etl.StrategySpec {
	specs := make([]etl.StrategySpec, 0, len(s.pipelines))
	for _, name := range s.Jobs() {
		specs = append(specs, s.pipelines[name].Strategy.Spec())
	}
	return specs
}

// History returns the most recent run logs for job.
func (s *ExtractionService) History(ctx context.Context, job string, limit int) ([]etl.RunLog, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history.List(ctx, job, limit)
}

// ── Run ────────────────────────────────────────────────────

// RunJob executes a single extraction synchronously. The returned error is
// the run's failure, if any; busy and unknown jobs return no result.
func (s *ExtractionService) RunJob(ctx context.Context, name string) (*etl.RunResult, error) {
	p, ok := s.pipelines[name]
	if !ok {
		return nil, errors.Wrap(ErrUnknownJob, name)
	}
	if !s.runs.begin(name) {
		return nil, errors.Wrap(ErrJobRunning, name)
	}
	defer s.runs.end(name)

	runCtx, cancel := context.WithTimeout(ctx, s.settings.RunTimeout)
	defer cancel()

	result := p.Run(runCtx)
	lg := s.log.WithFields(log.Fields{"job": name, "run_id": result.RunID, "status": result.Status})

	if s.history != nil {
		// The run log is kept even when the run was cut short by shutdown.
		saveCtx, cancelSave := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		if err := s.history.Save(saveCtx, result.RunLog()); err != nil {
			lg.WithError(err).Warn("cannot save run log")
		}
		cancelSave()
	}

	if result.Saved() {
		s.emitter.Emit(ctx, EventDatafileStaged, StagedFile{
			Job:       name,
			RunID:     result.RunID,
			File:      filepath.Base(result.File),
			Rows:      result.RowsWritten,
			Watermark: result.Watermark,
		})
	}
	lg.WithField("duration", result.Duration).Debug("run finished")
	return result, result.Err
}

// runScheduled is the body of each cron entry.
func (s *ExtractionService) runScheduled(ctx context.Context, name string) {
	if ctx.Err() != nil {
		return
	}
	if st := s.status.Status(); st != domain.ServerStatusActive {
		s.log.WithField("job", name).WithField("server_status", st.String()).Trace("server not active, skipping run")
		return
	}
	if _, err := s.RunJob(ctx, name); err != nil && !errors.Is(err, ErrJobRunning) {
		s.log.WithField("job", name).WithError(err).Error("scheduled run failed")
	}
}

// ── Lifecycle ──────────────────────────────────────────────

// Start primes each pipeline's watermark from its output directory, runs
// every job once if the server is already ACTIVE, then schedules them.
func (s *ExtractionService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cronSched != nil {
		return errors.New("extraction service already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for _, name := range s.Jobs() {
		if wm, ok := s.pipelines[name].Prime(); ok {
			s.log.WithField("job", name).WithField("watermark", wm.Format(etl.SQLDateTimeLayout)).Info("watermark primed from output directory")
		}
	}

	c := cron.New(cron.WithChain(
		cron.Recover(cron.PrintfLogger(s.log)),
		cron.SkipIfStillRunning(cron.PrintfLogger(s.log)),
	))
	spec := fmt.Sprintf("@every %s", s.settings.Interval)
	for _, name := range s.Jobs() {
		job := name
		if _, err := c.AddFunc(spec, func() { s.runScheduled(runCtx, job) }); err != nil {
			cancel()
			return errors.Wrapf(err, "schedule %s", job)
		}
		s.firstRuns.Add(1)
		go func() {
			defer s.firstRuns.Done()
			s.runScheduled(runCtx, job)
		}()
	}
	c.Start()
	s.cronSched = c

	s.log.WithFields(log.Fields{"jobs": len(s.pipelines), "interval": s.settings.Interval}).Info("extraction scheduled")
	return nil
}

// WaitRunning blocks until all running jobs finish or ctx is cancelled.
func (s *ExtractionService) WaitRunning(ctx context.Context) {
	if !s.runs.drain(ctx) {
		s.log.WithField("running", s.runs.inFlight()).Warn("gave up waiting for running jobs")
	}
}

// Stop halts the scheduler, cancels in-flight queries and waits for running
// jobs until ctx expires. It is safe to call more than once.
func (s *ExtractionService) Stop(ctx context.Context) {
	s.mu.Lock()
	c, cancel := s.cronSched, s.cancel
	s.cronSched, s.cancel = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c != nil {
		waitDone(ctx, c.Stop().Done())
	}
	firstDone := make(chan struct{})
	go func() {
		s.firstRuns.Wait()
		close(firstDone)
	}()
	waitDone(ctx, firstDone)
	s.WaitRunning(ctx)
}

func waitDone(ctx context.Context, done <-chan struct{}) bool {
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
