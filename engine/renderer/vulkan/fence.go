package vulkan

import (
	"errors"
	"math"
	"sync"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/ringrender/engine/core"
	"github.com/spaghettifunk/ringrender/engine/renderer/gpu"
)

// fencePool recycles binary VkFences. Every fence handed out is unsignaled.
type fencePool struct {
	dev  *Device
	mu   sync.Mutex
	free []vk.Fence
	all  []vk.Fence
}

func (p *fencePool) get() (vk.Fence, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.free); n > 0 {
		f := p.free[n-1]
		p.free = p.free[:n-1]
		if err := check("reset fence", vk.ResetFences(p.dev.device, 1, []vk.Fence{f})); err != nil {
			return vk.NullFence, err
		}
		return f, nil
	}
	var f vk.Fence
	if err := check("create fence", vk.CreateFence(p.dev.device, &vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}, nil, &f)); err != nil {
		return vk.NullFence, err
	}
	p.all = append(p.all, f)
	return f, nil
}

func (p *fencePool) put(f vk.Fence) {
	p.mu.Lock()
	p.free = append(p.free, f)
	p.mu.Unlock()
}

func (p *fencePool) release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, f := range p.all {
		vk.DestroyFence(p.dev.device, f, nil)
	}
	p.all, p.free = nil, nil
}

type pendingSignal struct {
	value uint64
	fence vk.Fence
}

// Fence emulates a timeline: each Signal submits an empty batch carrying a
// pooled VkFence, and the completed value is the highest signal whose
// VkFence has fired.
type Fence struct {
	dev       *Device
	mu        sync.Mutex
	completed uint64
	pending   []pendingSignal
	retired   []vk.Fence
	waiters   int
	err       error
}

func (f *Fence) CompletedValue() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.poll()
	return f.completed
}

// poll retires signals in submission order. Caller holds f.mu.
func (f *Fence) poll() {
	for len(f.pending) > 0 {
		p := f.pending[0]
		res := vk.GetFenceStatus(f.dev.device, p.fence)
		if res == vk.NotReady {
			break
		}
		if err := check("fence status", res); err != nil {
			f.err = err
			break
		}
		if p.value > f.completed {
			f.completed = p.value
		}
		f.pending = f.pending[1:]
		f.retired = append(f.retired, p.fence)
	}
	if f.waiters == 0 {
		for _, vf := range f.retired {
			f.dev.queue.pool.put(vf)
		}
		f.retired = f.retired[:0]
	}
}

func (f *Fence) Wait(value uint64) error {
	for {
		f.mu.Lock()
		f.poll()
		if f.completed >= value {
			f.mu.Unlock()
			return nil
		}
		if f.err != nil {
			err := f.err
			f.mu.Unlock()
			return err
		}
		target := vk.NullFence
		for _, p := range f.pending {
			if p.value >= value {
				target = p.fence
				break
			}
		}
		if target == vk.NullFence {
			f.mu.Unlock()
			return core.Violation("fence wait for %d which was never signaled", value)
		}
		f.waiters++
		f.mu.Unlock()

		res := vk.WaitForFences(f.dev.device, 1, []vk.Fence{target}, vk.True, math.MaxUint64)

		f.mu.Lock()
		f.waiters--
		if err := check("fence wait", res); err != nil && f.err == nil {
			f.err = err
		}
		f.mu.Unlock()
	}
}

func (f *Fence) signal(value uint64, vf vk.Fence) {
	f.mu.Lock()
	f.pending = append(f.pending, pendingSignal{value: value, fence: vf})
	f.mu.Unlock()
}

// Release drops outstanding signals without waiting for them. The pooled
// VkFences come back once the device is idle.
func (f *Fence) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) > 0 {
		vk.DeviceWaitIdle(f.dev.device)
		f.poll()
	}
}

// Queue is the single graphics queue of the device.
type Queue struct {
	dev    *Device
	handle vk.Queue
	pool   fencePool
}

func (q *Queue) ExecuteCommandLists(lists ...gpu.CommandList) error {
	cmds := make([]vk.CommandBuffer, 0, len(lists))
	var wait, signal []vk.Semaphore
	var stages []vk.PipelineStageFlags
	for _, l := range lists {
		cl, ok := l.(*CommandList)
		if !ok {
			return core.Violation("foreign command list %T", l)
		}
		if cl.open {
			return core.Violation("command list %q executed while open", cl.name)
		}
		if cl.err != nil {
			return cl.err
		}
		cmds = append(cmds, cl.cmd)
		if cl.acquired != nil {
			wait = append(wait, cl.acquired.acquireSemaphore())
			stages = append(stages, vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit))
			signal = append(signal, cl.acquired.renderSemaphore())
			cl.acquired = nil
		}
	}
	if len(cmds) == 0 {
		return nil
	}
	err := q.submit("execute command lists", []vk.SubmitInfo{{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(wait)),
		PWaitSemaphores:      wait,
		PWaitDstStageMask:    stages,
		CommandBufferCount:   uint32(len(cmds)),
		PCommandBuffers:      cmds,
		SignalSemaphoreCount: uint32(len(signal)),
		PSignalSemaphores:    signal,
	}}, vk.NullFence)
	if err != nil && errors.Is(err, core.ErrUnknown) {
		return core.NewDeviceError("execute command lists", core.ErrSubmitFailed)
	}
	return err
}

func (q *Queue) Signal(fence gpu.Fence, value uint64) error {
	f, ok := fence.(*Fence)
	if !ok {
		return core.Violation("foreign fence %T", fence)
	}
	vf, err := q.pool.get()
	if err != nil {
		return err
	}
	if err := q.submit("signal", nil, vf); err != nil {
		q.pool.put(vf)
		return err
	}
	f.signal(value, vf)
	return nil
}

func (q *Queue) submit(op string, infos []vk.SubmitInfo, fence vk.Fence) error {
	return q.dev.locks.SafeCall(QueueManagement, func() error {
		return check(op, vk.QueueSubmit(q.handle, uint32(len(infos)), infos, fence))
	})
}

func (d *Device) CreateFence(initial uint64) (gpu.Fence, error) {
	return &Fence{dev: d, completed: initial}, nil
}
