// Package overlay draws screen-space debug text on top of the scene. Glyph
// quads live in one upload buffer per frame-ring slot, so text written for
// frame N never touches memory the device may still be reading for an
// earlier frame.
package overlay

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/spaghettifunk/ringrender/engine/assets/loaders"
	"github.com/spaghettifunk/ringrender/engine/core"
	"github.com/spaghettifunk/ringrender/engine/math"
	"github.com/spaghettifunk/ringrender/engine/renderer"
	"github.com/spaghettifunk/ringrender/engine/renderer/gpu"
)

// MaxGlyphs bounds the quads drawn per frame. Text past it is cut.
const MaxGlyphs = 2048

const (
	vertexShader = "overlay.vert.spv"
	pixelShader  = "overlay.frag.spv"
	margin       = 8
)

type quad [4]math.Vertex2D

// Overlay is a renderer.Overlay that prints lines of text in the top-left
// corner of the back buffer.
type Overlay struct {
	font    *loaders.FontAtlas
	colour  math.Vec4
	lines   []string
	enabled bool
	logger  *log.Logger

	device   gpu.Device
	texture  gpu.Texture
	table    gpu.DescriptorHandle
	rootSig  gpu.RootSignature
	pipeline gpu.PipelineState
	indices  gpu.Buffer
	vertices []*renderer.UploadBuffer[quad]
	counts   []int
}

// New creates an overlay with the given font, or the built-in face when
// font is nil.
func New(font *loaders.FontAtlas) *Overlay {
	if font == nil {
		font = loaders.DefaultFont()
	}
	return &Overlay{
		font:    font,
		colour:  math.NewVec4(1, 1, 1, 1),
		enabled: true,
		logger:  core.Logger().With("component", "overlay"),
	}
}

func (o *Overlay) SetLines(lines ...string) {
	o.lines = append(o.lines[:0], lines...)
}

func (o *Overlay) Lines() []string {
	return o.lines
}

func (o *Overlay) SetColour(c math.Vec4) {
	o.colour = c
}

func (o *Overlay) SetEnabled(enabled bool) {
	o.enabled = enabled
}

func (o *Overlay) Enabled() bool {
	return o.enabled
}

func (o *Overlay) Toggle() {
	o.enabled = !o.enabled
}

// GlyphCount is the number of quads written for a ring slot.
func (o *Overlay) GlyphCount(frameIndex int) int {
	if frameIndex < 0 || frameIndex >= len(o.counts) {
		return 0
	}
	return o.counts[frameIndex]
}

// Build uploads the font atlas into the reserved descriptor slot and creates
// the overlay pipeline and per-slot vertex buffers.
func (o *Overlay) Build(ctx renderer.OverlayContext) error {
	o.device = ctx.Device
	img := o.font.Image

	tex, err := ctx.Device.CreateTexture(gpu.TextureDesc{
		Name:   "overlay-font-" + o.font.Face,
		Width:  img.Width,
		Height: img.Height,
		Format: gpu.FormatR8G8B8A8Unorm,
	}, img.Pixels)
	if err != nil {
		return err
	}
	o.texture = tex
	if _, err := ctx.SRVHeap.CreateShaderResourceView(tex, ctx.SRVSlot); err != nil {
		return err
	}
	inc := ctx.Device.DescriptorHandleIncrementSize(gpu.HeapShaderResource)
	o.table = ctx.SRVHeap.Start().Offset(ctx.SRVSlot, inc)

	if o.rootSig, err = ctx.Device.CreateRootSignature(gpu.RootLayout{
		Parameters: []gpu.RootParameter{
			{Kind: gpu.RootDescriptorTable, ShaderRegister: 0, Visibility: gpu.VisibilityPixel, DescriptorCount: 1},
		},
		StaticSamplers: []gpu.StaticSampler{
			{ShaderRegister: 0, Filter: gpu.FilterPoint, AddressMode: gpu.AddressClamp, MaxAnisotropy: 1},
		},
	}); err != nil {
		return err
	}

	if ctx.Shaders == nil {
		return fmt.Errorf("%w: no shader source", core.ErrPipelineBuild)
	}
	vs, err := ctx.Shaders.Load(vertexShader)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", core.ErrPipelineBuild, vertexShader, err)
	}
	ps, err := ctx.Shaders.Load(pixelShader)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", core.ErrPipelineBuild, pixelShader, err)
	}
	if o.pipeline, err = ctx.Device.CreatePipelineState(gpu.PipelineDesc{
		Name:          "overlay",
		RootSignature: o.rootSig,
		InputLayout: []gpu.InputElement{
			{Semantic: "POSITION", Format: gpu.FormatR32G32Float, Offset: 0},
			{Semantic: "TEXCOORD", Format: gpu.FormatR32G32Float, Offset: 8},
			{Semantic: "COLOR", Format: gpu.FormatR32G32B32A32Float, Offset: 16},
		},
		VertexStride:       32,
		VertexShader:       vs,
		PixelShader:        ps,
		Topology:           gpu.TopologyTriangleList,
		RenderTargetFormat: ctx.RenderTargetFormat,
		DepthStencilFormat: ctx.DepthStencilFormat,
		AlphaBlend:         true,
	}); err != nil {
		return err
	}

	indices := make([]uint16, 0, MaxGlyphs*6)
	for i := uint16(0); i < MaxGlyphs; i++ {
		b := i * 4
		indices = append(indices, b, b+1, b+2, b, b+2, b+3)
	}
	if o.indices, err = ctx.Device.CreateStaticBuffer(renderer.VertexBytes(indices), gpu.BufferUsageIndex, "overlay-ib"); err != nil {
		return err
	}

	o.vertices = make([]*renderer.UploadBuffer[quad], ctx.FrameCount)
	o.counts = make([]int, ctx.FrameCount)
	for i := range o.vertices {
		vb, err := renderer.NewUploadBuffer[quad](ctx.Device, MaxGlyphs, false, fmt.Sprintf("overlay-vb-%d", i))
		if err != nil {
			return err
		}
		o.vertices[i] = vb
	}
	o.logger.Debug("overlay built", "font", o.font.Face, "atlas", fmt.Sprintf("%dx%d", img.Width, img.Height), "slot", ctx.SRVSlot)
	return nil
}

// Begin lays the current lines out in pixels and writes their quads, in
// normalized device coordinates, into the buffer of ring slot frameIndex.
func (o *Overlay) Begin(frameIndex int, width, height uint32) error {
	if frameIndex < 0 || frameIndex >= len(o.vertices) {
		return core.Violation("overlay frame index %d outside [0,%d)", frameIndex, len(o.vertices))
	}
	o.counts[frameIndex] = 0
	if !o.enabled || width == 0 || height == 0 {
		return nil
	}

	vb := o.vertices[frameIndex]
	fw, fh := float32(width), float32(height)
	aw, ah := float32(o.font.Image.Width), float32(o.font.Image.Height)
	ndc := func(x, y int) math.Vec2 {
		return math.NewVec2(float32(x)/fw*2-1, 1-float32(y)/fh*2)
	}

	n := 0
	penY := margin
	for _, line := range o.lines {
		penX := margin
		var prev rune = -1
		for _, r := range line {
			g, ok := o.font.Glyph(r)
			if !ok {
				continue
			}
			if prev >= 0 {
				penX += o.font.Kern(prev, r)
			}
			prev = r
			if g.Width > 0 && g.Height > 0 {
				if n == MaxGlyphs {
					o.counts[frameIndex] = n
					return nil
				}
				x0, y0 := penX+g.XOffset, penY+g.YOffset
				x1, y1 := x0+g.Width, y0+g.Height
				u0, v0 := float32(g.X)/aw, float32(g.Y)/ah
				u1, v1 := float32(g.X+g.Width)/aw, float32(g.Y+g.Height)/ah
				q := quad{
					{Position: ndc(x0, y0), Texcoord: math.NewVec2(u0, v0), Colour: o.colour},
					{Position: ndc(x1, y0), Texcoord: math.NewVec2(u1, v0), Colour: o.colour},
					{Position: ndc(x1, y1), Texcoord: math.NewVec2(u1, v1), Colour: o.colour},
					{Position: ndc(x0, y1), Texcoord: math.NewVec2(u0, v1), Colour: o.colour},
				}
				if err := vb.CopyData(n, &q); err != nil {
					return err
				}
				n++
			}
			penX += g.XAdvance
		}
		penY += o.font.LineHeight
	}
	o.counts[frameIndex] = n
	return nil
}

// Render records the overlay draw. It replaces the scene's pipeline and root
// signature, so it must be the last thing recorded before the present
// barrier.
func (o *Overlay) Render(cl gpu.CommandList, frameIndex int) error {
	if frameIndex < 0 || frameIndex >= len(o.vertices) {
		return core.Violation("overlay frame index %d outside [0,%d)", frameIndex, len(o.vertices))
	}
	n := o.counts[frameIndex]
	if n == 0 {
		return nil
	}
	vb := o.vertices[frameIndex]
	cl.SetPipelineState(o.pipeline)
	cl.SetGraphicsRootSignature(o.rootSig)
	cl.SetGraphicsRootDescriptorTable(0, o.table)
	cl.SetVertexBuffer(gpu.VertexBufferView{
		Buffer: vb.Buffer(),
		Stride: 32,
		Size:   uint32(uint64(n) * vb.Stride()),
	})
	cl.SetIndexBuffer(gpu.IndexBufferView{
		Buffer: o.indices,
		Format: gpu.FormatR16Uint,
		Size:   uint32(n * 6 * 2),
	})
	cl.SetPrimitiveTopology(gpu.TopologyTriangleList)
	cl.DrawIndexedInstanced(uint32(n*6), 1, 0, 0, 0)
	return nil
}

func (o *Overlay) Release() {
	for _, vb := range o.vertices {
		if vb != nil {
			vb.Release()
		}
	}
	o.vertices = nil
	o.counts = nil
	if o.indices != nil {
		o.indices.Release()
	}
	if o.pipeline != nil {
		o.pipeline.Release()
	}
	if o.rootSig != nil {
		o.rootSig.Release()
	}
	if o.texture != nil {
		o.texture.Release()
	}
}
