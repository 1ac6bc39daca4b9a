package gpu

type ShaderVisibility uint8

const (
	VisibilityAll ShaderVisibility = iota
	VisibilityVertex
	VisibilityPixel
)

type RootParameterKind uint8

const (
	// RootDescriptorTable binds a range of shader-resource descriptors by
	// base handle.
	RootDescriptorTable RootParameterKind = iota
	// RootConstantBufferView binds a constant buffer by GPU address.
	RootConstantBufferView
)

type RootParameter struct {
	Kind            RootParameterKind
	ShaderRegister  uint32
	Visibility      ShaderVisibility
	DescriptorCount uint32
}

type Filter uint8

const (
	FilterPoint Filter = iota
	FilterLinear
	FilterAnisotropic
)

type AddressMode uint8

const (
	AddressWrap AddressMode = iota
	AddressClamp
)

// StaticSampler is baked into the root layout and never changes.
type StaticSampler struct {
	ShaderRegister uint32
	Filter         Filter
	AddressMode    AddressMode
	MaxAnisotropy  uint32
}

// RootLayout is the binding contract shared by every draw using it.
type RootLayout struct {
	Parameters     []RootParameter
	StaticSamplers []StaticSampler
}

// InputElement describes one vertex attribute.
type InputElement struct {
	Semantic string
	Format   Format
	Offset   uint32
}

// PipelineDesc describes a graphics pipeline. Shader stages are SPIR-V words.
type PipelineDesc struct {
	Name               string
	RootSignature      RootSignature
	InputLayout        []InputElement
	VertexStride       uint32
	VertexShader       []uint32
	PixelShader        []uint32
	Topology           Topology
	RenderTargetFormat Format
	DepthStencilFormat Format
	DepthTest          bool
	AlphaBlend         bool
	CullBack           bool
}
