package sandbox

import "sync"

// Pool bounds how many sandbox executions may run concurrently (spec §4.7,
// "the pool owns N sandbox workers"). A slot is acquired when an execution
// starts running and held across any number of Suspended→resume cycles,
// released only on a terminal outcome.
type Pool struct {
	backend Backend
	slots   chan struct{}

	mu   sync.Mutex
	busy int
}

// NewPool builds a pool of n sandbox slots driving backend.
func NewPool(backend Backend, n int) *Pool {
	if n < 1 {
		n = 1
	}
	return &Pool{backend: backend, slots: make(chan struct{}, n)}
}

// Backend returns the underlying SandboxBackend.
func (p *Pool) Backend() Backend { return p.backend }

// TryAcquire reserves one idle slot, returning false if the pool is
// saturated. The caller must call Release exactly once per successful
// acquire, when the execution reaches a terminal outcome.
func (p *Pool) TryAcquire() bool {
	select {
	case p.slots <- struct{}{}:
		p.mu.Lock()
		p.busy++
		p.mu.Unlock()
		return true
	default:
		return false
	}
}

// Release returns a previously acquired slot to the idle set.
func (p *Pool) Release() {
	select {
	case <-p.slots:
	default:
		return
	}
	p.mu.Lock()
	p.busy--
	p.mu.Unlock()
}

// Size is the pool's total slot count.
func (p *Pool) Size() int { return cap(p.slots) }

// Busy is the number of slots currently held.
func (p *Pool) Busy() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.busy
}

// Idle is the number of slots currently free.
func (p *Pool) Idle() int {
	return p.Size() - p.Busy()
}
