package renderer

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/spaghettifunk/ringrender/engine/containers"
	"github.com/spaghettifunk/ringrender/engine/core"
	"github.com/spaghettifunk/ringrender/engine/renderer/components"
	"github.com/spaghettifunk/ringrender/engine/renderer/gpu"
)

// LightSteelBlue is the default clear colour.
var LightSteelBlue = gpu.Color{0.690196097, 0.768627524, 0.870588303, 1.0}

type Config struct {
	FrameResources   int
	SwapChainBuffers int
	MaxRenderItems   int
	MaxMaterials     int
	MaxTextures      int
	Binding          BindingVariant
	VSync            bool
	ClearColor       gpu.Color
	Width            uint32
	Height           uint32
}

func DefaultConfig() Config {
	return Config{
		FrameResources:   3,
		SwapChainBuffers: DefaultSwapChainBufferCount,
		MaxRenderItems:   256,
		MaxMaterials:     16,
		MaxTextures:      16,
		Binding:          BindingTextured,
		ClearColor:       LightSteelBlue,
		Width:            1280,
		Height:           720,
	}
}

// ShaderSource resolves a shader name to SPIR-V words.
type ShaderSource interface {
	Load(name string) ([]uint32, error)
}

// OverlayContext is what an overlay needs to build its own pipeline.
type OverlayContext struct {
	Device             gpu.Device
	Shaders            ShaderSource
	SRVHeap            gpu.DescriptorHeap
	SRVSlot            int
	FrameCount         int
	RenderTargetFormat gpu.Format
	DepthStencilFormat gpu.Format
}

// Overlay is drawn after the scene in the same command list.
type Overlay interface {
	Build(ctx OverlayContext) error
	// Begin writes this frame's vertices into the ring slot's buffer.
	Begin(frameIndex int, width, height uint32) error
	Render(cl gpu.CommandList, frameIndex int) error
	Release()
}

// Renderer drives one frame at a time through the frame ring: update writes
// the constants of the acquired slot, draw records and submits one command
// list and presents.
type Renderer struct {
	cfg      Config
	device   gpu.Device
	shaders  ShaderSource
	camera   *components.Camera
	lighting Lighting
	overlay  Overlay
	logger   *log.Logger

	gate        *Gate
	frames      *FrameRing
	directAlloc gpu.CommandAllocator
	list        gpu.CommandList
	swap        *SwapChainManager

	binding  BindingLayout
	scene    *Scene
	srvHeap  gpu.DescriptorHeap
	srvSize  uint32
	nextSRV  int
	rootSig  gpu.RootSignature
	pipeline gpu.PipelineState
	recorder *DrawRecorder

	built bool
}

func New(device gpu.Device, cfg Config, shaders ShaderSource, camera *components.Camera) (*Renderer, error) {
	binding, err := NewBindingLayout(cfg.Binding)
	if err != nil {
		return nil, err
	}
	if cfg.FrameResources < 1 {
		return nil, fmt.Errorf("frame resource count %d", cfg.FrameResources)
	}
	if camera == nil {
		camera = components.NewCamera()
	}

	r := &Renderer{
		cfg:      cfg,
		device:   device,
		shaders:  shaders,
		camera:   camera,
		lighting: DefaultLighting(),
		logger:   core.Logger().With("component", "renderer"),
		binding:  binding,
		scene:    NewScene(cfg.FrameResources, cfg.MaxRenderItems, cfg.MaxMaterials),
		nextSRV:  TextureTableBase,
	}

	if r.gate, err = NewGate(device); err != nil {
		return nil, err
	}
	if r.directAlloc, err = device.CreateCommandAllocator(); err != nil {
		return nil, err
	}
	if r.list, err = device.CreateCommandList(r.directAlloc); err != nil {
		return nil, err
	}
	if r.frames, err = NewFrameRing(device, r.gate, cfg.FrameResources, cfg.MaxRenderItems, cfg.MaxMaterials); err != nil {
		return nil, err
	}
	if r.swap, err = NewSwapChainManager(device, r.gate, r.directAlloc, r.list, camera, cfg.SwapChainBuffers, cfg.Width, cfg.Height, cfg.VSync); err != nil {
		return nil, err
	}
	if r.srvHeap, err = device.CreateDescriptorHeap(gpu.HeapShaderResource, TextureTableBase+cfg.MaxTextures); err != nil {
		return nil, err
	}
	r.srvSize = device.DescriptorHandleIncrementSize(gpu.HeapShaderResource)
	r.recorder = &DrawRecorder{Binding: binding, Scene: r.scene, SRVHeap: r.srvHeap, SRVStride: r.srvSize}

	r.logger.Info("renderer created", "device", device.Name(), "frames", cfg.FrameResources, "binding", binding.Variant)
	return r, nil
}

// SetOverlay installs the debug overlay. Call before Build.
func (r *Renderer) SetOverlay(o Overlay) {
	r.overlay = o
}

func (r *Renderer) SetLighting(l Lighting) {
	r.lighting = l
}

// GeometryDesc is CPU-side mesh data ready for upload.
type GeometryDesc struct {
	Name         string
	Vertices     []byte
	VertexStride uint32
	Indices      []byte
	IndexFormat  gpu.Format
	DrawArgs     map[string]SubmeshGeometry
}

// VertexBytes reinterprets a slice of plain vertex structs as bytes.
func VertexBytes[V any](v []V) []byte {
	if len(v) == 0 {
		return nil
	}
	var zero V
	return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)*int(unsafe.Sizeof(zero)))
}

// CreateGeometry uploads a vertex/index buffer pair into device-local memory
// and registers it with the scene.
func (r *Renderer) CreateGeometry(desc GeometryDesc) (containers.Handle, error) {
	desc.Name = debugName("geo", desc.Name)
	vb, err := r.device.CreateStaticBuffer(desc.Vertices, gpu.BufferUsageVertex, desc.Name+"-vb")
	if err != nil {
		return containers.Handle{}, err
	}
	ib, err := r.device.CreateStaticBuffer(desc.Indices, gpu.BufferUsageIndex, desc.Name+"-ib")
	if err != nil {
		vb.Release()
		return containers.Handle{}, err
	}
	g := &MeshGeometry{
		Name:                 desc.Name,
		VertexBuffer:         vb,
		IndexBuffer:          ib,
		VertexByteStride:     desc.VertexStride,
		VertexBufferByteSize: uint32(len(desc.Vertices)),
		IndexFormat:          desc.IndexFormat,
		IndexBufferByteSize:  uint32(len(desc.Indices)),
		DrawArgs:             desc.DrawArgs,
	}
	h, err := r.scene.AddGeometry(g)
	if err != nil {
		g.Release()
	}
	return h, err
}

// CreateTexture uploads RGBA8 pixels and writes a shader-resource view at
// the next free heap slot.
func (r *Renderer) CreateTexture(name string, width, height uint32, rgba []byte) (containers.Handle, error) {
	name = debugName("tex", name)
	if r.nextSRV >= r.srvHeap.Capacity() {
		return containers.Handle{}, core.Violation("texture %q exceeds the heap capacity of %d", name, r.srvHeap.Capacity())
	}
	tex, err := r.device.CreateTexture(gpu.TextureDesc{Name: name, Width: width, Height: height, Format: gpu.FormatR8G8B8A8Unorm}, rgba)
	if err != nil {
		return containers.Handle{}, err
	}
	if _, err := r.srvHeap.CreateShaderResourceView(tex, r.nextSRV); err != nil {
		tex.Release()
		return containers.Handle{}, err
	}
	h, err := r.scene.AddTexture(&Texture{Name: name, Resource: tex, SRVIndex: r.nextSRV})
	if err != nil {
		tex.Release()
		return h, err
	}
	r.nextSRV++
	return h, nil
}

// Build creates the root signature, the pipeline and the overlay, then
// sizes the swap chain.
func (r *Renderer) Build() error {
	rs, err := r.device.CreateRootSignature(r.binding.Root)
	if err != nil {
		return err
	}
	r.rootSig = rs
	if r.pipeline, err = r.buildPipeline(); err != nil {
		return err
	}
	if r.overlay != nil {
		err := r.overlay.Build(OverlayContext{
			Device:             r.device,
			Shaders:            r.shaders,
			SRVHeap:            r.srvHeap,
			SRVSlot:            OverlayDescriptorSlot,
			FrameCount:         r.cfg.FrameResources,
			RenderTargetFormat: BackBufferFormat,
			DepthStencilFormat: DepthStencilFormat,
		})
		if err != nil {
			return fmt.Errorf("build overlay: %w", err)
		}
	}
	if err := r.swap.Resize(r.cfg.Width, r.cfg.Height); err != nil {
		return err
	}
	r.built = true
	r.logger.Info("renderer built",
		"geometries", r.scene.Geometries.Len(),
		"textures", r.scene.Textures.Len(),
		"materials", r.scene.Materials.Len(),
		"items", len(r.scene.Items()))
	return nil
}

func shaderNames(v BindingVariant) (vs, ps string) {
	if v == BindingColored {
		return "color.vert.spv", "color.frag.spv"
	}
	return "default.vert.spv", "default.frag.spv"
}

// inputLayout matches Vertex3D for textured and VertexColor for colored.
func inputLayout(v BindingVariant) ([]gpu.InputElement, uint32) {
	if v == BindingColored {
		return []gpu.InputElement{
			{Semantic: "POSITION", Format: gpu.FormatR32G32B32Float, Offset: 0},
			{Semantic: "COLOR", Format: gpu.FormatR32G32B32A32Float, Offset: 12},
		}, 28
	}
	return []gpu.InputElement{
		{Semantic: "POSITION", Format: gpu.FormatR32G32B32Float, Offset: 0},
		{Semantic: "NORMAL", Format: gpu.FormatR32G32B32Float, Offset: 12},
		{Semantic: "TEXCOORD", Format: gpu.FormatR32G32Float, Offset: 24},
	}, 32
}

func (r *Renderer) buildPipeline() (gpu.PipelineState, error) {
	if r.shaders == nil {
		return nil, fmt.Errorf("%w: no shader source", core.ErrPipelineBuild)
	}
	vsName, psName := shaderNames(r.binding.Variant)
	vs, err := r.shaders.Load(vsName)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", core.ErrPipelineBuild, vsName, err)
	}
	ps, err := r.shaders.Load(psName)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", core.ErrPipelineBuild, psName, err)
	}
	layout, stride := inputLayout(r.binding.Variant)
	pso, err := r.device.CreatePipelineState(gpu.PipelineDesc{
		Name:               "opaque-" + string(r.binding.Variant),
		RootSignature:      r.rootSig,
		InputLayout:        layout,
		VertexStride:       stride,
		VertexShader:       vs,
		PixelShader:        ps,
		Topology:           gpu.TopologyTriangleList,
		RenderTargetFormat: BackBufferFormat,
		DepthStencilFormat: DepthStencilFormat,
		DepthTest:          true,
		CullBack:           true,
	})
	if err != nil {
		if !errors.Is(err, core.ErrPipelineBuild) {
			err = fmt.Errorf("%w: %w", core.ErrPipelineBuild, err)
		}
		return nil, err
	}
	return pso, nil
}

// ReloadShaders drains the device and rebuilds the pipeline from fresh
// shader code. A failed build is logged and the previous pipeline stays.
// Only a failed drain is returned.
func (r *Renderer) ReloadShaders() error {
	if !r.built {
		return nil
	}
	if err := r.gate.Flush(); err != nil {
		return err
	}
	pso, err := r.buildPipeline()
	if err != nil {
		r.logger.Error("shader reload failed, keeping the previous pipeline", "err", err)
		return nil
	}
	r.pipeline.Release()
	r.pipeline = pso
	r.logger.Info("pipeline rebuilt", "name", pso.Name())
	return nil
}

// OnResize rebuilds the size-dependent resources. Zero area is ignored.
func (r *Renderer) OnResize(width, height uint32) error {
	return r.swap.Resize(width, height)
}

// OnUpdate acquires the next ring slot, waiting for the device if it is
// still reading it, and writes this frame's constants into it.
func (r *Renderer) OnUpdate(totalTime, deltaTime float64) error {
	fr, err := r.frames.Advance()
	if err != nil {
		return err
	}
	if err := UpdateObjectConstants(r.scene.Items(), fr); err != nil {
		return err
	}
	if err := UpdateMaterialConstants(r.scene.Materials, fr); err != nil {
		return err
	}
	w, h := r.swap.Size()
	pc := BuildPassConstants(r.camera, w, h, float32(totalTime), float32(deltaTime), r.lighting)
	if err := fr.PassCB.CopyData(0, &pc); err != nil {
		return err
	}
	if r.overlay != nil {
		if err := r.overlay.Begin(fr.Index, w, h); err != nil {
			return err
		}
	}
	return nil
}

// OnDraw records the frame into the current slot's allocator, submits it,
// presents and stamps the slot with a new fence value.
func (r *Renderer) OnDraw() error {
	fr := r.frames.Current()
	if err := fr.ResetAllocator(); err != nil {
		return err
	}
	cl := r.list
	if err := cl.Reset(fr.Allocator, r.pipeline); err != nil {
		return err
	}

	cl.SetViewport(r.swap.Viewport())
	cl.SetScissorRect(r.swap.ScissorRect())

	back := r.swap.CurrentBackBuffer()
	cl.ResourceBarrier(back, gpu.StatePresent, gpu.StateRenderTarget)

	rtv := r.swap.CurrentBackBufferView()
	dsv := r.swap.DepthStencilView()
	cl.ClearRenderTargetView(rtv, r.cfg.ClearColor)
	cl.ClearDepthStencilView(dsv, 1.0, 0)
	cl.SetRenderTargets(rtv, dsv)

	cl.SetDescriptorHeaps(r.srvHeap)
	cl.SetGraphicsRootSignature(r.rootSig)
	cl.SetGraphicsRootConstantBufferView(uint32(r.binding.PassCB), fr.PassCB.Address(0))

	if err := r.recorder.Record(cl, fr, r.scene.Items()); err != nil {
		return err
	}
	if r.overlay != nil {
		if err := r.overlay.Render(cl, fr.Index); err != nil {
			return err
		}
	}

	cl.ResourceBarrier(back, gpu.StateRenderTarget, gpu.StatePresent)
	if err := cl.Close(); err != nil {
		return err
	}
	if err := r.device.Queue().ExecuteCommandLists(cl); err != nil {
		return err
	}
	if err := r.swap.Present(); err != nil {
		return err
	}
	_, err := r.frames.Stamp()
	return err
}

// Shutdown drains the device and releases everything the renderer owns.
func (r *Renderer) Shutdown() error {
	err := r.gate.Flush()
	if err != nil {
		r.logger.Error("drain on shutdown failed", "err", err)
	}
	if r.overlay != nil {
		r.overlay.Release()
	}
	r.scene.Release()
	r.frames.Release()
	r.swap.Release()
	if r.pipeline != nil {
		r.pipeline.Release()
	}
	if r.rootSig != nil {
		r.rootSig.Release()
	}
	r.srvHeap.Release()
	r.list.Release()
	r.directAlloc.Release()
	r.gate.Release()
	r.logger.Info("renderer shut down")
	return err
}

func (r *Renderer) Camera() *components.Camera {
	return r.camera
}

func (r *Renderer) Scene() *Scene {
	return r.scene
}

func (r *Renderer) Frames() *FrameRing {
	return r.frames
}

func (r *Renderer) SwapChain() *SwapChainManager {
	return r.swap
}

func (r *Renderer) Gate() *Gate {
	return r.gate
}

func (r *Renderer) Binding() BindingLayout {
	return r.binding
}

func (r *Renderer) Pipeline() gpu.PipelineState {
	return r.pipeline
}

func (r *Renderer) SRVHeap() gpu.DescriptorHeap {
	return r.srvHeap
}

// debugName gives unnamed resources a unique label for device debug output.
func debugName(kind, name string) string {
	if name != "" {
		return name
	}
	return kind + "-" + uuid.NewString()[:8]
}
