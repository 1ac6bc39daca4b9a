package headless

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/spaghettifunk/ringrender/engine/core"
	"github.com/spaghettifunk/ringrender/engine/renderer/gpu"
)

type Buffer struct {
	name     string
	data     []byte
	address  gpu.GPUAddress
	upload   bool
	released atomic.Bool
	dev      *Device
}

func (b *Buffer) Name() string               { return b.name }
func (b *Buffer) Size() uint64               { return uint64(len(b.data)) }
func (b *Buffer) GPUAddress() gpu.GPUAddress { return b.address }

func (b *Buffer) Bytes() []byte {
	if !b.upload {
		return nil
	}
	return b.data
}

func (b *Buffer) Release() {
	if b.released.CompareAndSwap(false, true) {
		b.dev.forget(b)
	}
}

type Texture struct {
	name     string
	width    uint32
	height   uint32
	format   gpu.Format
	pixels   []byte
	refs     *atomic.Int32
	released atomic.Bool
}

func (t *Texture) Name() string       { return t.name }
func (t *Texture) Width() uint32      { return t.width }
func (t *Texture) Height() uint32     { return t.height }
func (t *Texture) Format() gpu.Format { return t.format }
func (t *Texture) Pixels() []byte     { return t.pixels }

func (t *Texture) Release() {
	if t.released.CompareAndSwap(false, true) && t.refs != nil {
		t.refs.Add(-1)
	}
}

type descriptor struct {
	kind gpu.HeapKind
	tex  gpu.Texture
}

type DescriptorHeap struct {
	kind  gpu.HeapKind
	start gpu.DescriptorHandle
	size  uint32
	slots []descriptor
}

func (h *DescriptorHeap) Kind() gpu.HeapKind          { return h.kind }
func (h *DescriptorHeap) Capacity() int               { return len(h.slots) }
func (h *DescriptorHeap) Start() gpu.DescriptorHandle { return h.start }
func (h *DescriptorHeap) Release()                    {}

// Descriptor returns the texture viewed at index.
func (h *DescriptorHeap) Descriptor(index int) (gpu.Texture, bool) {
	if index < 0 || index >= len(h.slots) || h.slots[index].tex == nil {
		return nil, false
	}
	return h.slots[index].tex, true
}

func (h *DescriptorHeap) write(want gpu.HeapKind, tex gpu.Texture, index int) (gpu.DescriptorHandle, error) {
	if h.kind != want {
		return 0, core.Violation("%s view written into %s heap", want, h.kind)
	}
	if index < 0 || index >= len(h.slots) {
		return 0, core.Violation("descriptor index %d out of range [0,%d)", index, len(h.slots))
	}
	h.slots[index] = descriptor{kind: want, tex: tex}
	return h.start.Offset(index, h.size), nil
}

func (h *DescriptorHeap) CreateShaderResourceView(tex gpu.Texture, index int) (gpu.DescriptorHandle, error) {
	return h.write(gpu.HeapShaderResource, tex, index)
}

func (h *DescriptorHeap) CreateRenderTargetView(tex gpu.Texture, index int) (gpu.DescriptorHandle, error) {
	return h.write(gpu.HeapRenderTarget, tex, index)
}

func (h *DescriptorHeap) CreateDepthStencilView(tex gpu.Texture, index int) (gpu.DescriptorHandle, error) {
	return h.write(gpu.HeapDepthStencil, tex, index)
}

type RootSignature struct {
	layout gpu.RootLayout
}

func (r *RootSignature) Layout() gpu.RootLayout { return r.layout }
func (r *RootSignature) Release()               {}

type PipelineState struct {
	desc gpu.PipelineDesc
}

func (p *PipelineState) Name() string           { return p.desc.Name }
func (p *PipelineState) Desc() gpu.PipelineDesc { return p.desc }
func (p *PipelineState) Release()               {}

// SwapChain rotates its own index on every present so tests can check the
// caller's bookkeeping against it.
type SwapChain struct {
	mu          sync.Mutex
	dev         *Device
	buffers     []*Texture
	refs        atomic.Int32
	current     int
	presents    int
	format      gpu.Format
	failPresent error
	generation  int
}

func (s *SwapChain) BufferCount() int {
	return len(s.buffers)
}

func (s *SwapChain) Buffer(i int) (gpu.Texture, error) {
	if i < 0 || i >= len(s.buffers) {
		return nil, fmt.Errorf("swap chain buffer %d out of range", i)
	}
	s.refs.Add(1)
	b := s.buffers[i]
	return &Texture{
		name:   b.name,
		width:  b.width,
		height: b.height,
		format: b.format,
		refs:   &s.refs,
	}, nil
}

func (s *SwapChain) ResizeBuffers(count int, width, height uint32, format gpu.Format) error {
	if n := s.refs.Load(); n > 0 {
		return core.Violation("swap chain resized with %d buffer reference(s) alive", n)
	}
	if s.dev.queue.Pending() > 0 {
		return core.Violation("swap chain resized while the device is busy")
	}
	if width == 0 || height == 0 {
		return core.Violation("swap chain resized to %dx%d", width, height)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.format = format
	s.buffers = make([]*Texture, count)
	for i := range s.buffers {
		s.buffers[i] = &Texture{
			name:   fmt.Sprintf("back-buffer-%d", i),
			width:  width,
			height: height,
			format: format,
		}
	}
	s.current = 0
	return nil
}

func (s *SwapChain) Present(syncInterval int) error {
	if err := s.dev.lost(); err != nil {
		return core.NewDeviceError("present", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPresent != nil {
		return core.NewDeviceError("present", s.failPresent)
	}
	s.presents++
	s.current = (s.current + 1) % len(s.buffers)
	return nil
}

// CurrentIndex is the index the display expects to be rendered next.
func (s *SwapChain) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *SwapChain) Presents() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presents
}

// Generation counts successful ResizeBuffers calls.
func (s *SwapChain) Generation() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// FailPresent makes every later Present fail with err.
func (s *SwapChain) FailPresent(err error) {
	s.mu.Lock()
	s.failPresent = err
	s.mu.Unlock()
}

func (s *SwapChain) Release() {}
