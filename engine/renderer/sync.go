package renderer

import (
	"fmt"
	"sync/atomic"

	"github.com/spaghettifunk/ringrender/engine/core"
	"github.com/spaghettifunk/ringrender/engine/renderer/gpu"
)

// Gate pairs the queue with one fence and hands out monotonically increasing
// fence values. The completed value never exceeds the last value signaled.
type Gate struct {
	queue   gpu.Queue
	fence   gpu.Fence
	current atomic.Uint64
}

func NewGate(device gpu.Device) (*Gate, error) {
	fence, err := device.CreateFence(0)
	if err != nil {
		return nil, err
	}
	return &Gate{queue: device.Queue(), fence: fence}, nil
}

// Signal enqueues the next fence value behind everything submitted so far
// and returns it. Does not block.
func (g *Gate) Signal() (uint64, error) {
	v := g.current.Add(1)
	if err := g.queue.Signal(g.fence, v); err != nil {
		return 0, fmt.Errorf("signal fence %d: %w", v, err)
	}
	return v, nil
}

// WaitUntil blocks until the device reached value. Returns immediately when
// it already has.
func (g *Gate) WaitUntil(value uint64) error {
	if g.fence.CompletedValue() >= value {
		return nil
	}
	if value > g.current.Load() {
		return core.Violation("waiting on fence value %d that was never signaled (last %d)", value, g.current.Load())
	}
	if err := g.fence.Wait(value); err != nil {
		return fmt.Errorf("wait for fence %d: %w", value, err)
	}
	return nil
}

// IsComplete polls without blocking.
func (g *Gate) IsComplete(value uint64) bool {
	return g.fence.CompletedValue() >= value
}

// Flush drains the queue: signal, then wait for that value.
func (g *Gate) Flush() error {
	v, err := g.Signal()
	if err != nil {
		return err
	}
	return g.WaitUntil(v)
}

// Current is the last value handed out by Signal.
func (g *Gate) Current() uint64 {
	return g.current.Load()
}

// Completed is the last value the device reached.
func (g *Gate) Completed() uint64 {
	return g.fence.CompletedValue()
}

func (g *Gate) Release() {
	g.fence.Release()
}
