// Package headless implements gpu.Device without a GPU. A worker goroutine
// plays the device timeline so fences, allocators and swap-chain rotation
// behave like the real thing, and every recorded command can be inspected.
package headless

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/spaghettifunk/ringrender/engine/core"
	"github.com/spaghettifunk/ringrender/engine/renderer/gpu"
)

const addressBase gpu.GPUAddress = 1 << 32

type Options struct {
	// Manual keeps submitted work pending until Queue.Retire is called.
	Manual bool
	// Latency is slept for every executed batch in automatic mode.
	Latency time.Duration
}

type Device struct {
	mu           sync.Mutex
	queue        *Queue
	buffers      map[gpu.GPUAddress]*Buffer
	nextAddress  gpu.GPUAddress
	nextHeap     uint64
	fences       []*Fence
	lists        int
	removed      error
	failPipeline error
	swapChain    *SwapChain
}

func NewDevice(opts Options) *Device {
	d := &Device{
		buffers:     map[gpu.GPUAddress]*Buffer{},
		nextAddress: addressBase,
	}
	d.queue = newQueue(d, opts)
	core.LogDebug("headless device created (manual=%t, latency=%s)", opts.Manual, opts.Latency)
	return d
}

func (d *Device) Name() string { return "headless" }

func (d *Device) Queue() gpu.Queue { return d.queue }

// HeadlessQueue exposes the simulated timeline controls.
func (d *Device) HeadlessQueue() *Queue { return d.queue }

// SwapChain returns the last swap chain created, or nil.
func (d *Device) SwapChain() *SwapChain {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.swapChain
}

// Remove simulates the device being removed. Pending and future waits fail.
func (d *Device) Remove(reason error) {
	if reason == nil {
		reason = core.ErrDeviceRemoved
	}
	if !errors.Is(reason, core.ErrDeviceRemoved) {
		reason = fmt.Errorf("%w: %w", core.ErrDeviceRemoved, reason)
	}
	d.mu.Lock()
	d.removed = reason
	fences := append([]*Fence(nil), d.fences...)
	d.mu.Unlock()
	for _, f := range fences {
		f.fail(reason)
	}
}

// FailNextPipeline makes the next CreatePipelineState return err.
func (d *Device) FailNextPipeline(err error) {
	d.mu.Lock()
	d.failPipeline = err
	d.mu.Unlock()
}

func (d *Device) lost() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.removed
}

func (d *Device) CreateFence(initial uint64) (gpu.Fence, error) {
	if err := d.lost(); err != nil {
		return nil, core.NewDeviceError("create fence", err)
	}
	f := newFence(initial)
	d.mu.Lock()
	d.fences = append(d.fences, f)
	d.mu.Unlock()
	return f, nil
}

func (d *Device) CreateCommandAllocator() (gpu.CommandAllocator, error) {
	if err := d.lost(); err != nil {
		return nil, core.NewDeviceError("create command allocator", err)
	}
	return &CommandAllocator{}, nil
}

func (d *Device) CreateCommandList(alloc gpu.CommandAllocator) (gpu.CommandList, error) {
	if err := d.lost(); err != nil {
		return nil, core.NewDeviceError("create command list", err)
	}
	a, ok := alloc.(*CommandAllocator)
	if !ok {
		return nil, core.Violation("foreign command allocator %T", alloc)
	}
	d.mu.Lock()
	d.lists++
	name := fmt.Sprintf("command-list-%d", d.lists)
	d.mu.Unlock()
	return &CommandList{name: name, alloc: a}, nil
}

func (d *Device) newBuffer(size uint64, name string, upload bool) (*Buffer, error) {
	if err := d.lost(); err != nil {
		return nil, core.NewDeviceError("create buffer "+name, err)
	}
	if size == 0 {
		return nil, core.NewDeviceError("create buffer "+name, core.ErrOutOfMemory)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	b := &Buffer{
		name:    name,
		data:    make([]byte, size),
		address: d.nextAddress,
		upload:  upload,
		dev:     d,
	}
	d.buffers[b.address] = b
	// 64KiB placement alignment
	d.nextAddress += gpu.GPUAddress((size + 0xFFFF) &^ 0xFFFF)
	return b, nil
}

func (d *Device) forget(b *Buffer) {
	d.mu.Lock()
	delete(d.buffers, b.address)
	d.mu.Unlock()
}

// read returns up to n bytes at addr, as the device would see them.
func (d *Device) read(addr gpu.GPUAddress, n int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for base, b := range d.buffers {
		if addr >= base && addr < base+gpu.GPUAddress(len(b.data)) {
			off := int(addr - base)
			end := off + n
			if end > len(b.data) {
				end = len(b.data)
			}
			out := make([]byte, end-off)
			copy(out, b.data[off:end])
			return out, nil
		}
	}
	return nil, fmt.Errorf("address %#x not mapped", uint64(addr))
}

func (d *Device) CreateUploadBuffer(size uint64, name string) (gpu.Buffer, error) {
	return d.newBuffer(size, name, true)
}

func (d *Device) CreateStaticBuffer(data []byte, usage gpu.BufferUsage, name string) (gpu.Buffer, error) {
	b, err := d.newBuffer(uint64(len(data)), name, false)
	if err != nil {
		return nil, err
	}
	copy(b.data, data)
	return b, nil
}

func (d *Device) CreateTexture(desc gpu.TextureDesc, pixels []byte) (gpu.Texture, error) {
	if err := d.lost(); err != nil {
		return nil, core.NewDeviceError("create texture "+desc.Name, err)
	}
	want := int(desc.Width * desc.Height * desc.Format.Size())
	if desc.Width == 0 || desc.Height == 0 || len(pixels) != want {
		return nil, fmt.Errorf("texture %q: %d bytes for %dx%d %s", desc.Name, len(pixels), desc.Width, desc.Height, desc.Format)
	}
	px := make([]byte, len(pixels))
	copy(px, pixels)
	return &Texture{name: desc.Name, width: desc.Width, height: desc.Height, format: desc.Format, pixels: px}, nil
}

func (d *Device) CreateDepthStencil(width, height uint32, format gpu.Format) (gpu.Texture, error) {
	if err := d.lost(); err != nil {
		return nil, core.NewDeviceError("create depth stencil", err)
	}
	if width == 0 || height == 0 {
		return nil, core.Violation("depth stencil of %dx%d", width, height)
	}
	return &Texture{name: "depth-stencil", width: width, height: height, format: format}, nil
}

func (d *Device) CreateSwapChain(desc gpu.SwapChainDesc) (gpu.SwapChain, error) {
	if err := d.lost(); err != nil {
		return nil, core.NewDeviceError("create swap chain", err)
	}
	sc := &SwapChain{dev: d}
	if err := sc.ResizeBuffers(desc.BufferCount, desc.Width, desc.Height, desc.Format); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.swapChain = sc
	d.mu.Unlock()
	return sc, nil
}

func (d *Device) DescriptorHandleIncrementSize(kind gpu.HeapKind) uint32 {
	switch kind {
	case gpu.HeapDepthStencil:
		return 8
	default:
		return 32
	}
}

func (d *Device) CreateDescriptorHeap(kind gpu.HeapKind, capacity int) (gpu.DescriptorHeap, error) {
	if capacity <= 0 {
		return nil, core.Violation("descriptor heap capacity %d", capacity)
	}
	d.mu.Lock()
	d.nextHeap++
	start := gpu.DescriptorHandle(d.nextHeap << 32)
	d.mu.Unlock()
	return &DescriptorHeap{
		kind:  kind,
		start: start,
		size:  d.DescriptorHandleIncrementSize(kind),
		slots: make([]descriptor, capacity),
	}, nil
}

func (d *Device) CreateRootSignature(layout gpu.RootLayout) (gpu.RootSignature, error) {
	for i, p := range layout.Parameters {
		if p.Kind == gpu.RootDescriptorTable && p.DescriptorCount == 0 {
			return nil, fmt.Errorf("%w: root parameter %d is an empty descriptor table", core.ErrPipelineBuild, i)
		}
	}
	return &RootSignature{layout: layout}, nil
}

func (d *Device) CreatePipelineState(desc gpu.PipelineDesc) (gpu.PipelineState, error) {
	d.mu.Lock()
	fail := d.failPipeline
	d.failPipeline = nil
	d.mu.Unlock()
	if fail != nil {
		return nil, fmt.Errorf("%w: %s: %w", core.ErrPipelineBuild, desc.Name, fail)
	}
	if desc.RootSignature == nil {
		return nil, fmt.Errorf("%w: %s: missing root signature", core.ErrPipelineBuild, desc.Name)
	}
	if len(desc.VertexShader) == 0 || len(desc.PixelShader) == 0 {
		return nil, fmt.Errorf("%w: %s: missing shader bytecode", core.ErrPipelineBuild, desc.Name)
	}
	return &PipelineState{desc: desc}, nil
}

// Release stops the timeline worker. Pending manual work is dropped.
func (d *Device) Release() {
	d.queue.shutdown()
}
