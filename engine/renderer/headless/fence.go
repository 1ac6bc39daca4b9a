package headless

import (
	"sync"
	"sync/atomic"

	"github.com/spaghettifunk/ringrender/engine/core"
)

// Fence parks waiters on a condition variable until the simulated timeline
// reaches their value.
type Fence struct {
	mu        sync.Mutex
	cond      *sync.Cond
	completed uint64
	err       error
	blocked   atomic.Int64
}

func newFence(initial uint64) *Fence {
	f := &Fence{completed: initial}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func (f *Fence) CompletedValue() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}

func (f *Fence) Wait(value uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completed < value && f.err == nil {
		f.blocked.Add(1)
	}
	for f.completed < value && f.err == nil {
		f.cond.Wait()
	}
	if f.completed < value {
		return core.NewDeviceError("fence wait", f.err)
	}
	return nil
}

// BlockedWaits counts Wait calls that had to park.
func (f *Fence) BlockedWaits() int64 {
	return f.blocked.Load()
}

// Set advances the fence as the device would. Lower values are ignored.
func (f *Fence) Set(value uint64) {
	f.mu.Lock()
	if value > f.completed {
		f.completed = value
	}
	f.mu.Unlock()
	f.cond.Broadcast()
}

func (f *Fence) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
	f.cond.Broadcast()
}

func (f *Fence) Release() {}
