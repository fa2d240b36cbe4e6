package service

import (
	"context"
	"sync"
)

// ── jobRuns: one extraction per job at a time ──────────────

// jobRuns tracks which jobs have an extraction in flight. Manual runs and
// scheduled ticks share it, so a job never overlaps itself, and Stop uses it
// to drain in-flight runs.
type jobRuns struct {
	mu     sync.Mutex
	active map[string]struct{}
	wg     sync.WaitGroup
}

// begin claims job and reports false if an extraction of it is in flight.
func (r *jobRuns) begin(job string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		r.active = make(map[string]struct{})
	}
	if _, busy := r.active[job]; busy {
		return false
	}
	r.active[job] = struct{}{}
	r.wg.Add(1)
	return true
}

// end releases a job claimed by begin.
func (r *jobRuns) end(job string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.active[job]; !ok {
		return
	}
	delete(r.active, job)
	r.wg.Done()
}

// inFlight returns the number of extractions currently running.
func (r *jobRuns) inFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// drain waits for every claimed job to end. It returns false if ctx expired
// first.
func (r *jobRuns) drain(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	return waitDone(ctx, done)
}
