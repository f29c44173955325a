package pipeline

import "sync"

// Trigger is a one-shot latch. Fire closes it for every later caller, and
// the outcome recorded by Resolve never reopens it.
type Trigger struct {
	mu       sync.Mutex
	fired    bool
	resolved bool
	err      error
	done     chan struct{}
}

func NewTrigger() *Trigger {
	return &Trigger{done: make(chan struct{})}
}

// Fire returns true exactly once.
func (t *Trigger) Fire() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.fired {
		return false
	}
	t.fired = true

	return true
}

func (t *Trigger) Fired() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.fired
}

// Resolve records the outcome of the fired call. Later calls are ignored.
func (t *Trigger) Resolve(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.resolved {
		return
	}
	t.resolved = true
	t.err = err
	close(t.done)
}

// Done is closed once Resolve has been called.
func (t *Trigger) Done() <-chan struct{} {
	return t.done
}

func (t *Trigger) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.err
}
