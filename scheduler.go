package typesetd

import "sync"

// Scheduler serializes compilations against an engine that cannot process
// concurrent jobs. At most one compilation runs at a time and at most one
// request waits in the pending slot; a newer submission overwrites an
// older pending one, so rapid-fire edits coalesce into the latest request
// and superseded requests are never executed.
type Scheduler struct {
	mu      sync.Mutex
	running bool
	pending *CompileRequest

	// run executes one request to completion. It is invoked from the
	// scheduler's worker goroutine, never concurrently with itself.
	run func(*CompileRequest)
}

// NewScheduler creates a scheduler that executes requests with run.
func NewScheduler(run func(*CompileRequest)) *Scheduler {
	return &Scheduler{run: run}
}

// Submit hands a request to the scheduler and returns immediately. If the
// scheduler is idle the request starts on a worker goroutine; otherwise it
// takes the single pending slot, displacing whatever was there.
func (s *Scheduler) Submit(req *CompileRequest) {
	s.mu.Lock()
	if s.running {
		s.pending = req
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	go s.loop(req)
}

// loop drains requests one at a time: the active request, then whatever
// accumulated in the pending slot while it ran. A failed compilation does
// not block the next one; run never panics (the engine boundary recovers).
func (s *Scheduler) loop(req *CompileRequest) {
	for {
		s.run(req)

		s.mu.Lock()
		if s.pending == nil {
			s.running = false
			s.mu.Unlock()
			return
		}
		req = s.pending
		s.pending = nil
		s.mu.Unlock()
	}
}
