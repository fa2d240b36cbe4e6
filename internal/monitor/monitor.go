// Package monitor tracks whether this host is the active node. Extraction
// runs only on the active node; the standby node keeps polling so it can
// take over when the cluster fails over.
package monitor

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/intelliw/LSAssetDataService/internal/domain"
	"github.com/intelliw/LSAssetDataService/internal/logging"
)

const (
	DefaultInterval = 5 * time.Second
	watchDebounce   = 500 * time.Millisecond
)

// Monitor polls a Probe and holds the last known server status.
type Monitor struct {
	probe    Probe
	interval time.Duration
	host     string
	log      *log.Entry

	mu       sync.RWMutex
	status   domain.ServerStatus
	onChange []func(from, to domain.ServerStatus)
}

var _ domain.ServerStatusProvider = (*Monitor)(nil)

// New creates a Monitor. The status is UNKNOWN until the first check.
func New(probe Probe, interval time.Duration, lg *log.Entry) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if lg == nil {
		lg = logging.Discard()
	}
	host, _ := os.Hostname()
	return &Monitor{
		probe:    probe,
		interval: interval,
		host:     host,
		log:      logging.WithEvent(lg.WithField("probe", probe.Name()), logging.EventMonitoring),
	}
}

// Status returns the last known status.
func (m *Monitor) Status() domain.ServerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// OnChange registers fn to be called after every status transition.
func (m *Monitor) OnChange(fn func(from, to domain.ServerStatus)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = append(m.onChange, fn)
}

// Check runs the probe once and records the result. A probe error counts as
// STANDBY and is logged only when the host was not already on standby.
func (m *Monitor) Check(ctx context.Context) domain.ServerStatus {
	active, err := m.probe.Active(ctx)

	m.mu.Lock()
	prev := m.status
	next := domain.ServerStatusStandby
	if err == nil && active {
		next = domain.ServerStatusActive
	}
	m.status = next
	hooks := m.onChange
	m.mu.Unlock()

	if err != nil && prev != domain.ServerStatusStandby {
		m.log.WithError(err).Error("cannot check server status")
	}
	if next == prev {
		return next
	}

	lg := m.log.WithField("from", prev.String())
	if next == domain.ServerStatusActive {
		lg.Infof("%s is Active", m.host)
	} else {
		lg.Warnf("%s on Standby...", m.host)
	}
	for _, fn := range hooks {
		fn(prev, next)
	}
	return next
}

// Run checks immediately, then every interval until ctx is cancelled. File
// probes are also re-checked when their file changes.
func (m *Monitor) Run(ctx context.Context) {
	m.Check(ctx)

	var events <-chan fsnotify.Event
	var watchErrs <-chan error
	if w, ok := m.probe.(watchable); ok {
		if watcher, err := m.watch(w.WatchPath()); err != nil {
			m.log.WithError(err).Warn("cannot watch indicator file, polling only")
		} else {
			defer watcher.Close()
			events, watchErrs = watcher.Events, watcher.Errors
		}
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	var debounce *time.Timer
	recheck := make(chan struct{}, 1)
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		case <-recheck:
			m.Check(ctx)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watchDebounce, func() {
				select {
				case recheck <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
				continue
			}
			m.log.WithError(err).Warn("indicator file watcher error")
		}
	}
}

// watch follows the directory holding path so that replace-by-rename
// updates are seen too.
func (m *Monitor) watch(path string) (*fsnotify.Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, err
	}
	return watcher, nil
}
