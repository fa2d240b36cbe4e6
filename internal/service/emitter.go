package service

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/intelliw/LSAssetDataService/internal/etl"
	"github.com/intelliw/LSAssetDataService/internal/logging"
)

// ─────────────────────────────────────────────────────────────
// EventEmitter: notifies listeners about staged data files
// ─────────────────────────────────────────────────────────────

// EventEmitter is an interface for publishing service events. The default
// LogEmitter writes them to the service log; tests use MockEmitter.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// LogEmitter logs each event as a STAGING_DATAFILE entry.
type LogEmitter struct {
	Log *log.Entry
}

func (e *LogEmitter) Emit(_ context.Context, event string, data any) {
	lg := e.Log
	if lg == nil {
		lg = logging.Discard()
	}
	lg = logging.WithEvent(lg, logging.EventStagingDatafile).WithField("emit", event)
	if f, ok := data.(StagedFile); ok {
		lg = lg.WithFields(log.Fields{
			"job":       f.Job,
			"run_id":    f.RunID,
			"file":      f.File,
			"rows":      f.Rows,
			"watermark": f.Watermark.Format(etl.SQLDateTimeLayout),
		})
	} else if data != nil {
		lg = lg.WithField("data", data)
	}
	lg.Info("event")
}

// MockEmitter is a test-friendly EventEmitter that records all calls.
type MockEmitter struct {
	mu     sync.Mutex
	Events []EmittedEvent
}

// EmittedEvent holds a single recorded emission for test assertions.
type EmittedEvent struct {
	Event string
	Data  any
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, EmittedEvent{Event: event, Data: data})
}

// Recorded returns a copy of the events emitted so far.
func (m *MockEmitter) Recorded() []EmittedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EmittedEvent(nil), m.Events...)
}
