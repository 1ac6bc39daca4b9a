package renderer

import (
	"fmt"

	"github.com/spaghettifunk/ringrender/engine/containers"
	"github.com/spaghettifunk/ringrender/engine/core"
	"github.com/spaghettifunk/ringrender/engine/renderer/gpu"
)

// FrameResource is everything the CPU writes for one frame in flight. The
// device may still be reading it until the fence reaches FenceValue.
type FrameResource struct {
	Index      int
	Allocator  gpu.CommandAllocator
	ObjectCB   *UploadBuffer[ObjectConstants]
	MaterialCB *UploadBuffer[MaterialConstants]
	PassCB     *UploadBuffer[PassConstants]
	// FenceValue marks the last submission that used this slot. Zero means
	// the slot was never submitted.
	FenceValue uint64

	acquired bool
}

func newFrameResource(device gpu.Device, index, maxItems, maxMaterials int) (*FrameResource, error) {
	alloc, err := device.CreateCommandAllocator()
	if err != nil {
		return nil, err
	}
	fr := &FrameResource{Index: index, Allocator: alloc}
	if fr.ObjectCB, err = NewUploadBuffer[ObjectConstants](device, maxItems, true, fmt.Sprintf("object-cb-%d", index)); err != nil {
		fr.Release()
		return nil, err
	}
	if fr.MaterialCB, err = NewUploadBuffer[MaterialConstants](device, maxMaterials, true, fmt.Sprintf("material-cb-%d", index)); err != nil {
		fr.Release()
		return nil, err
	}
	if fr.PassCB, err = NewUploadBuffer[PassConstants](device, 1, true, fmt.Sprintf("pass-cb-%d", index)); err != nil {
		fr.Release()
		return nil, err
	}
	return fr, nil
}

// ResetAllocator recycles the command memory of this slot. Only valid once
// the ring has acquired the slot, which guarantees the device is done with it.
func (fr *FrameResource) ResetAllocator() error {
	if !fr.acquired {
		return core.Violation("frame resource %d: allocator reset before the slot was acquired", fr.Index)
	}
	return fr.Allocator.Reset()
}

func (fr *FrameResource) Release() {
	if fr.ObjectCB != nil {
		fr.ObjectCB.Release()
	}
	if fr.MaterialCB != nil {
		fr.MaterialCB.Release()
	}
	if fr.PassCB != nil {
		fr.PassCB.Release()
	}
	if fr.Allocator != nil {
		fr.Allocator.Release()
	}
}

// FrameRing is the fixed ring of frame resources. The CPU may run at most
// Depth frames ahead of the device.
type FrameRing struct {
	gate *Gate
	ring *containers.Ring[*FrameResource]
}

func NewFrameRing(device gpu.Device, gate *Gate, depth, maxItems, maxMaterials int) (*FrameRing, error) {
	if depth < 1 {
		return nil, core.Violation("frame ring depth %d", depth)
	}
	slots := make([]*FrameResource, 0, depth)
	for i := range depth {
		fr, err := newFrameResource(device, i, maxItems, maxMaterials)
		if err != nil {
			for _, s := range slots {
				s.Release()
			}
			return nil, err
		}
		slots = append(slots, fr)
	}
	ring := containers.NewRing(slots)
	// the first Advance lands on slot 0
	ring.Seek(depth - 1)
	return &FrameRing{gate: gate, ring: ring}, nil
}

// Advance moves to the next slot and blocks until the device has finished
// the last submission that used it.
func (r *FrameRing) Advance() (*FrameResource, error) {
	r.ring.Current().acquired = false
	fr := r.ring.Advance()
	if fr.FenceValue != 0 && !r.gate.IsComplete(fr.FenceValue) {
		core.LogDebug("frame slot %d busy, waiting for fence %d (completed %d)", fr.Index, fr.FenceValue, r.gate.Completed())
		if err := r.gate.WaitUntil(fr.FenceValue); err != nil {
			return nil, err
		}
	}
	fr.acquired = true
	return fr, nil
}

// Stamp records the fence value that covers everything submitted so far
// for the current slot.
func (r *FrameRing) Stamp() (uint64, error) {
	v, err := r.gate.Signal()
	if err != nil {
		return 0, err
	}
	fr := r.ring.Current()
	fr.FenceValue = v
	// submitted; the slot is only recyclable again after the next Advance onto it
	fr.acquired = false
	return v, nil
}

func (r *FrameRing) Current() *FrameResource {
	return r.ring.Current()
}

func (r *FrameRing) Index() int {
	return r.ring.Index()
}

func (r *FrameRing) Depth() int {
	return r.ring.Len()
}

func (r *FrameRing) Slot(i int) *FrameResource {
	return r.ring.At(i)
}

// Release frees every slot. The caller must have flushed the queue.
func (r *FrameRing) Release() {
	r.ring.Each(func(_ int, fr *FrameResource) {
		fr.Release()
	})
}
