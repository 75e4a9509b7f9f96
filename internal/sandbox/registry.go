package sandbox

import "sync"

// registry tracks the stop handle of each running job so a cancel request
// can reach the live process or container. Each handle fires at most once.
type registry struct {
	mu      sync.Mutex
	running map[string]func()
}

func newRegistry() *registry {
	return &registry{running: make(map[string]func())}
}

// add registers the stop handle for a job
func (r *registry) add(jobID string, stop func()) {
	r.mu.Lock()
	r.running[jobID] = stop
	r.mu.Unlock()
}

// remove drops the handle without invoking it, after normal completion
func (r *registry) remove(jobID string) {
	r.mu.Lock()
	delete(r.running, jobID)
	r.mu.Unlock()
}

// stop invokes and removes the handle if present. Returns false when the
// job was not running, which makes double-stop a no-op.
func (r *registry) stop(jobID string) bool {
	r.mu.Lock()
	stop, ok := r.running[jobID]
	if ok {
		delete(r.running, jobID)
	}
	r.mu.Unlock()
	if ok {
		stop()
	}
	return ok
}
