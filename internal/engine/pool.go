package engine

import (
	"errors"
	"time"
)

// ErrBusy is returned when every worker slot is taken and none frees up
// within the acquire wait. Callers surface it as StatusEngineBusy and back
// off rather than queueing unbounded work.
var ErrBusy = errors.New("engine worker pool saturated")

// pool bounds how many script evaluations run at once. Workers are slots,
// not threads: each admitted task runs on its own goroutine with a fresh
// VM, and an abandoned (timed-out) task keeps holding its slot until the
// interpreter notices the interrupt, which bounds leaked work by the pool
// size.
type pool struct {
	slots       chan struct{}
	acquireWait time.Duration
}

func newPool(size int, acquireWait time.Duration) *pool {
	if size <= 0 {
		size = 4
	}
	if acquireWait <= 0 {
		acquireWait = 100 * time.Millisecond
	}
	p := &pool{
		slots:       make(chan struct{}, size),
		acquireWait: acquireWait,
	}
	for i := 0; i < size; i++ {
		p.slots <- struct{}{}
	}
	return p
}

// acquire claims a worker slot, waiting briefly for one to free up.
func (p *pool) acquire() error {
	select {
	case <-p.slots:
		return nil
	default:
	}
	select {
	case <-p.slots:
		return nil
	case <-time.After(p.acquireWait):
		return ErrBusy
	}
}

// release returns a slot. Called by the worker goroutine itself so a slot
// only frees once its interpreter has actually stopped.
func (p *pool) release() {
	p.slots <- struct{}{}
}

// available reports free slots, for stats and tests.
func (p *pool) available() int {
	return len(p.slots)
}
