// Package gpu is the boundary between the render core and a graphics device.
//
// The shapes follow an explicit, queue-and-fence model: the host records
// command lists into allocators, submits them to a single queue, and asks the
// queue to set a fence to a value once everything submitted before has
// retired. Every fallible call returns an error; device failures come back as
// *core.DeviceError.
package gpu

type Releaser interface {
	Release()
}

type Resource interface {
	Releaser
	Name() string
}

// Buffer is linear device memory. Upload buffers are persistently mapped and
// Bytes exposes the mapping; static buffers return nil.
type Buffer interface {
	Resource
	Size() uint64
	GPUAddress() GPUAddress
	Bytes() []byte
}

type Texture interface {
	Resource
	Width() uint32
	Height() uint32
	Format() Format
}

// Fence is a monotonically increasing counter advanced by the queue.
type Fence interface {
	Releaser
	// CompletedValue is the last value the device reached. Never blocks.
	CompletedValue() uint64
	// Wait blocks the calling goroutine until CompletedValue() >= value.
	// There is no timeout.
	Wait(value uint64) error
}

type Queue interface {
	ExecuteCommandLists(lists ...CommandList) error
	// Signal enqueues "set fence to value" after all previously submitted work.
	Signal(fence Fence, value uint64) error
}

// CommandAllocator backs the memory of recorded commands. Reset only once the
// device has finished every list recorded from it.
type CommandAllocator interface {
	Releaser
	Reset() error
}

type CommandList interface {
	Releaser
	Reset(alloc CommandAllocator, initial PipelineState) error
	Close() error

	ResourceBarrier(res Texture, before, after ResourceState)
	SetViewport(vp Viewport)
	SetScissorRect(r Rect)
	ClearRenderTargetView(rtv DescriptorHandle, color Color)
	ClearDepthStencilView(dsv DescriptorHandle, depth float32, stencil uint8)
	SetRenderTargets(rtv DescriptorHandle, dsv DescriptorHandle)

	SetDescriptorHeaps(heaps ...DescriptorHeap)
	SetGraphicsRootSignature(rs RootSignature)
	SetPipelineState(pso PipelineState)
	SetGraphicsRootDescriptorTable(slot uint32, base DescriptorHandle)
	SetGraphicsRootConstantBufferView(slot uint32, address GPUAddress)

	SetVertexBuffer(view VertexBufferView)
	SetIndexBuffer(view IndexBufferView)
	SetPrimitiveTopology(t Topology)
	DrawIndexedInstanced(indexCount, instanceCount, startIndex uint32, baseVertex int32, startInstance uint32)
}

type SwapChain interface {
	Releaser
	BufferCount() int
	Buffer(i int) (Texture, error)
	// ResizeBuffers requires every reference to the old buffers released.
	ResizeBuffers(count int, width, height uint32, format Format) error
	Present(syncInterval int) error
}

// DescriptorHeap is a fixed array of descriptors of one kind.
type DescriptorHeap interface {
	Releaser
	Kind() HeapKind
	Capacity() int
	Start() DescriptorHandle
	CreateShaderResourceView(tex Texture, index int) (DescriptorHandle, error)
	CreateRenderTargetView(tex Texture, index int) (DescriptorHandle, error)
	CreateDepthStencilView(tex Texture, index int) (DescriptorHandle, error)
}

type RootSignature interface {
	Releaser
	Layout() RootLayout
}

type PipelineState interface {
	Releaser
	Name() string
}

type Device interface {
	Releaser
	Name() string
	Queue() Queue

	CreateFence(initial uint64) (Fence, error)
	CreateCommandAllocator() (CommandAllocator, error)
	// CreateCommandList returns a closed list; Reset it before recording.
	CreateCommandList(alloc CommandAllocator) (CommandList, error)

	CreateUploadBuffer(size uint64, name string) (Buffer, error)
	// CreateStaticBuffer copies data into device-local memory and waits for
	// the copy to finish.
	CreateStaticBuffer(data []byte, usage BufferUsage, name string) (Buffer, error)
	CreateTexture(desc TextureDesc, pixels []byte) (Texture, error)
	CreateDepthStencil(width, height uint32, format Format) (Texture, error)
	CreateSwapChain(desc SwapChainDesc) (SwapChain, error)

	CreateDescriptorHeap(kind HeapKind, capacity int) (DescriptorHeap, error)
	DescriptorHandleIncrementSize(kind HeapKind) uint32

	CreateRootSignature(layout RootLayout) (RootSignature, error)
	CreatePipelineState(desc PipelineDesc) (PipelineState, error)
}
