package gpu

// GPUAddress is a device virtual address of buffer memory.
type GPUAddress uint64

// DescriptorHandle addresses one slot of a descriptor heap:
// heap.Start() + index * device.DescriptorHandleIncrementSize(kind).
type DescriptorHandle uint64

// Offset returns the handle index slots past h.
func (h DescriptorHandle) Offset(index int, incrementSize uint32) DescriptorHandle {
	return h + DescriptorHandle(uint64(index)*uint64(incrementSize))
}

type Format uint32

const (
	FormatUnknown Format = iota
	FormatR8G8B8A8Unorm
	FormatB8G8R8A8Unorm
	FormatD24UnormS8Uint
	FormatD32Float
	FormatR32G32Float
	FormatR32G32B32Float
	FormatR32G32B32A32Float
	FormatR16Uint
	FormatR32Uint
)

// Size returns the byte size of one element of f.
func (f Format) Size() uint32 {
	switch f {
	case FormatR8G8B8A8Unorm, FormatB8G8R8A8Unorm, FormatD24UnormS8Uint, FormatD32Float, FormatR32Uint:
		return 4
	case FormatR16Uint:
		return 2
	case FormatR32G32Float:
		return 8
	case FormatR32G32B32Float:
		return 12
	case FormatR32G32B32A32Float:
		return 16
	default:
		return 0
	}
}

func (f Format) String() string {
	switch f {
	case FormatR8G8B8A8Unorm:
		return "R8G8B8A8_UNORM"
	case FormatB8G8R8A8Unorm:
		return "B8G8R8A8_UNORM"
	case FormatD24UnormS8Uint:
		return "D24_UNORM_S8_UINT"
	case FormatD32Float:
		return "D32_FLOAT"
	case FormatR32G32Float:
		return "R32G32_FLOAT"
	case FormatR32G32B32Float:
		return "R32G32B32_FLOAT"
	case FormatR32G32B32A32Float:
		return "R32G32B32A32_FLOAT"
	case FormatR16Uint:
		return "R16_UINT"
	case FormatR32Uint:
		return "R32_UINT"
	default:
		return "UNKNOWN"
	}
}

// ResourceState is the usage a resource is transitioned into by a barrier.
type ResourceState uint8

const (
	StateCommon ResourceState = iota
	StatePresent
	StateRenderTarget
	StateDepthWrite
	StatePixelShaderResource
	StateCopyDest
	StateGenericRead
)

func (s ResourceState) String() string {
	return [...]string{"COMMON", "PRESENT", "RENDER_TARGET", "DEPTH_WRITE", "PIXEL_SHADER_RESOURCE", "COPY_DEST", "GENERIC_READ"}[s]
}

type Topology uint8

const (
	TopologyTriangleList Topology = iota
	TopologyTriangleStrip
	TopologyLineList
)

type BufferUsage uint8

const (
	BufferUsageVertex BufferUsage = 1 << iota
	BufferUsageIndex
	BufferUsageConstant
)

type HeapKind uint8

const (
	// HeapShaderResource holds shader-visible texture views.
	HeapShaderResource HeapKind = iota
	HeapRenderTarget
	HeapDepthStencil
)

func (k HeapKind) String() string {
	return [...]string{"CBV_SRV_UAV", "RTV", "DSV"}[k]
}

type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

type Rect struct {
	Left, Top, Right, Bottom int32
}

type Color [4]float32

type VertexBufferView struct {
	Buffer Buffer
	Stride uint32
	Size   uint32
}

type IndexBufferView struct {
	Buffer Buffer
	Format Format
	Size   uint32
}

type TextureDesc struct {
	Name   string
	Width  uint32
	Height uint32
	Format Format
}

type SwapChainDesc struct {
	Width       uint32
	Height      uint32
	BufferCount int
	Format      Format
	VSync       bool
}
