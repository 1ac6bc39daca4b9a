package renderer

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/ringrender/engine/core"
	"github.com/spaghettifunk/ringrender/engine/math"
	"github.com/spaghettifunk/ringrender/engine/renderer/gpu"
)

const (
	// DefaultSwapChainBufferCount is double buffering.
	DefaultSwapChainBufferCount = 2
	BackBufferFormat            = gpu.FormatR8G8B8A8Unorm
	DepthStencilFormat          = gpu.FormatD24UnormS8Uint
)

// Lens receives the new aspect ratio after every resize.
type Lens interface {
	SetLens(fovY, aspect, nearZ, farZ float32)
}

// SwapChainState is the externally visible result of a resize.
type SwapChainState struct {
	Width       uint32
	Height      uint32
	Current     int
	BackBuffers []string
	Viewport    gpu.Viewport
	Scissor     gpu.Rect
}

// SwapChainManager owns the presentable buffers, their render-target views
// and the depth buffer, and tracks which back buffer is current.
type SwapChainManager struct {
	device    gpu.Device
	gate      *Gate
	alloc     gpu.CommandAllocator
	list      gpu.CommandList
	lens      Lens
	vsync     bool
	count     int
	swapChain gpu.SwapChain

	rtvHeap gpu.DescriptorHeap
	dsvHeap gpu.DescriptorHeap
	rtvSize uint32

	buffers []gpu.Texture
	depth   gpu.Texture
	current int

	width    uint32
	height   uint32
	viewport gpu.Viewport
	scissor  gpu.Rect
}

// NewSwapChainManager creates the swap chain and its view heaps. Call Resize
// before the first frame. alloc and list are the direct pair also used for
// initialization work.
func NewSwapChainManager(device gpu.Device, gate *Gate, alloc gpu.CommandAllocator, list gpu.CommandList, lens Lens, count int, width, height uint32, vsync bool) (*SwapChainManager, error) {
	if count < 2 {
		return nil, core.Violation("swap chain with %d buffers", count)
	}
	sc, err := device.CreateSwapChain(gpu.SwapChainDesc{
		Width:       width,
		Height:      height,
		BufferCount: count,
		Format:      BackBufferFormat,
		VSync:       vsync,
	})
	if err != nil {
		return nil, err
	}
	rtvHeap, err := device.CreateDescriptorHeap(gpu.HeapRenderTarget, count)
	if err != nil {
		sc.Release()
		return nil, err
	}
	dsvHeap, err := device.CreateDescriptorHeap(gpu.HeapDepthStencil, 1)
	if err != nil {
		rtvHeap.Release()
		sc.Release()
		return nil, err
	}
	return &SwapChainManager{
		device:    device,
		gate:      gate,
		alloc:     alloc,
		list:      list,
		lens:      lens,
		vsync:     vsync,
		count:     count,
		swapChain: sc,
		rtvHeap:   rtvHeap,
		dsvHeap:   dsvHeap,
		rtvSize:   device.DescriptorHandleIncrementSize(gpu.HeapRenderTarget),
	}, nil
}

// Resize rebuilds every size-dependent resource. The device is drained
// before anything is released. A zero dimension is ignored.
func (s *SwapChainManager) Resize(width, height uint32) error {
	if width == 0 || height == 0 {
		core.LogDebug("ignoring resize to %dx%d", width, height)
		return nil
	}

	if err := s.gate.Flush(); err != nil {
		return err
	}
	if err := s.alloc.Reset(); err != nil {
		return err
	}
	if err := s.list.Reset(s.alloc, nil); err != nil {
		return err
	}

	s.releaseBuffers()

	if err := s.swapChain.ResizeBuffers(s.count, width, height, BackBufferFormat); err != nil {
		return fmt.Errorf("resize swap chain to %dx%d: %w", width, height, err)
	}
	s.current = 0

	s.buffers = make([]gpu.Texture, 0, s.count)
	for i := range s.count {
		buf, err := s.swapChain.Buffer(i)
		if err != nil {
			return err
		}
		s.buffers = append(s.buffers, buf)
		if _, err := s.rtvHeap.CreateRenderTargetView(buf, i); err != nil {
			return err
		}
	}

	depth, err := s.device.CreateDepthStencil(width, height, DepthStencilFormat)
	if err != nil {
		return err
	}
	s.depth = depth
	if _, err := s.dsvHeap.CreateDepthStencilView(depth, 0); err != nil {
		return err
	}

	s.list.ResourceBarrier(depth, gpu.StateCommon, gpu.StateDepthWrite)
	if err := s.list.Close(); err != nil {
		return err
	}
	if err := s.device.Queue().ExecuteCommandLists(s.list); err != nil {
		return err
	}
	if err := s.gate.Flush(); err != nil {
		return err
	}

	s.width, s.height = width, height
	s.viewport = gpu.Viewport{Width: float32(width), Height: float32(height), MinDepth: 0, MaxDepth: 1}
	s.scissor = gpu.Rect{Right: int32(width), Bottom: int32(height)}
	if s.lens != nil {
		s.lens.SetLens(0.25*math.K_PI, s.AspectRatio(), 1.0, 1000.0)
	}
	core.LogDebug("swap chain resized to %dx%d", width, height)
	return nil
}

func (s *SwapChainManager) releaseBuffers() {
	for _, b := range s.buffers {
		b.Release()
	}
	s.buffers = nil
	if s.depth != nil {
		s.depth.Release()
		s.depth = nil
	}
}

func (s *SwapChainManager) AspectRatio() float32 {
	if s.height == 0 {
		return 1
	}
	return float32(s.width) / float32(s.height)
}

func (s *SwapChainManager) CurrentBackBuffer() gpu.Texture {
	return s.buffers[s.current]
}

func (s *SwapChainManager) CurrentBackBufferView() gpu.DescriptorHandle {
	return s.rtvHeap.Start().Offset(s.current, s.rtvSize)
}

func (s *SwapChainManager) DepthStencilView() gpu.DescriptorHandle {
	return s.dsvHeap.Start()
}

// Present shows the current back buffer and advances to the next one.
// Any failure is fatal.
func (s *SwapChainManager) Present() error {
	interval := 0
	if s.vsync {
		interval = 1
	}
	if err := s.swapChain.Present(interval); err != nil {
		var de *core.DeviceError
		if errors.As(err, &de) {
			return err
		}
		return core.NewDeviceError("present", fmt.Errorf("%w: %w", core.ErrPresentFailed, err))
	}
	s.AdvanceBackBuffer()
	return nil
}

// AdvanceBackBuffer steps the current index, period BufferCount.
func (s *SwapChainManager) AdvanceBackBuffer() {
	s.current = (s.current + 1) % s.count
}

func (s *SwapChainManager) BufferCount() int {
	return s.count
}

func (s *SwapChainManager) CurrentIndex() int {
	return s.current
}

func (s *SwapChainManager) Viewport() gpu.Viewport {
	return s.viewport
}

func (s *SwapChainManager) ScissorRect() gpu.Rect {
	return s.scissor
}

func (s *SwapChainManager) Size() (uint32, uint32) {
	return s.width, s.height
}

func (s *SwapChainManager) State() SwapChainState {
	st := SwapChainState{
		Width:    s.width,
		Height:   s.height,
		Current:  s.current,
		Viewport: s.viewport,
		Scissor:  s.scissor,
	}
	for _, b := range s.buffers {
		st.BackBuffers = append(st.BackBuffers, fmt.Sprintf("%s %dx%d", b.Name(), b.Width(), b.Height()))
	}
	return st
}

// Release frees every buffer. The caller must have flushed the queue.
func (s *SwapChainManager) Release() {
	s.releaseBuffers()
	s.rtvHeap.Release()
	s.dsvHeap.Release()
	s.swapChain.Release()
}
