package overlay

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/ringrender/engine/core"
	"github.com/spaghettifunk/ringrender/engine/math"
	"github.com/spaghettifunk/ringrender/engine/renderer"
	"github.com/spaghettifunk/ringrender/engine/renderer/gpu"
	"github.com/spaghettifunk/ringrender/engine/renderer/headless"
)

type shaders struct {
	missing string
}

func (s shaders) Load(name string) ([]uint32, error) {
	if name == s.missing {
		return nil, errors.New("not compiled")
	}
	return []uint32{0x07230203, 0x00010000}, nil
}

func newOverlayRenderer(t *testing.T) (*renderer.Renderer, *Overlay, *headless.Device) {
	t.Helper()
	dev := headless.NewDevice(headless.Options{})
	t.Cleanup(dev.Release)

	cfg := renderer.DefaultConfig()
	cfg.Width, cfg.Height = 400, 200
	r, err := renderer.New(dev, cfg, shaders{}, nil)
	require.NoError(t, err)

	o := New(nil)
	r.SetOverlay(o)
	require.NoError(t, r.Build())
	t.Cleanup(func() { _ = r.Shutdown() })
	return r, o, dev
}

func TestBuildUsesReservedSlot(t *testing.T) {
	r, o, _ := newOverlayRenderer(t)

	heap := r.SRVHeap().(*headless.DescriptorHeap)
	tex, ok := heap.Descriptor(renderer.OverlayDescriptorSlot)
	require.True(t, ok)
	assert.Same(t, o.texture, tex)
	assert.Equal(t, "overlay", o.pipeline.Name())

	desc := o.pipeline.(*headless.PipelineState).Desc()
	assert.True(t, desc.AlphaBlend)
	assert.False(t, desc.DepthTest)
	assert.Equal(t, uint32(32), desc.VertexStride)
	assert.Len(t, o.vertices, renderer.DefaultConfig().FrameResources)
}

func TestBeginWritesQuadsIntoSlot(t *testing.T) {
	_, o, _ := newOverlayRenderer(t)
	o.SetLines("ab c", "d")

	require.NoError(t, o.Begin(1, 400, 200))
	assert.Equal(t, 4, o.GlyphCount(1), "the space has no quad")
	assert.Equal(t, 0, o.GlyphCount(0))

	a, _ := o.font.Glyph('a')
	q := o.vertices[1].Element(0)
	x0 := float32(margin+a.XOffset)/400*2 - 1
	y0 := 1 - float32(margin+a.YOffset)/200*2
	assert.InDelta(t, x0, q[0].Position.X, 1e-6)
	assert.InDelta(t, y0, q[0].Position.Y, 1e-6)
	assert.Equal(t, math.NewVec4(1, 1, 1, 1), q[0].Colour)

	// second line starts one line height lower
	d, _ := o.font.Glyph('d')
	q = o.vertices[1].Element(3)
	y0 = 1 - float32(margin+o.font.LineHeight+d.YOffset)/200*2
	assert.InDelta(t, y0, q[0].Position.Y, 1e-6)

	o.SetEnabled(false)
	require.NoError(t, o.Begin(1, 400, 200))
	assert.Equal(t, 0, o.GlyphCount(1))

	err := o.Begin(5, 400, 200)
	assert.ErrorIs(t, err, core.ErrContractViolation)
}

func TestBeginTruncatesAtMaxGlyphs(t *testing.T) {
	_, o, _ := newOverlayRenderer(t)
	long := make([]byte, MaxGlyphs+10)
	for i := range long {
		long[i] = 'x'
	}
	o.SetLines(string(long))
	require.NoError(t, o.Begin(0, 400, 200))
	assert.Equal(t, MaxGlyphs, o.GlyphCount(0))
}

func TestOverlayDrawnAfterScene(t *testing.T) {
	r, o, dev := newOverlayRenderer(t)
	o.SetLines("fps: 60")

	for frame := 0; frame < 4; frame++ {
		require.NoError(t, r.OnUpdate(float64(frame)/60, 1.0/60))
		require.NoError(t, r.OnDraw())
	}
	require.NoError(t, r.Gate().Flush())

	executed := dev.HeadlessQueue().Executed()
	require.NotEmpty(t, executed)
	last := executed[len(executed)-1]
	require.Len(t, last.Draws, 1)
	assert.Equal(t, uint32(6*6), last.Draws[0].IndexCount, "six visible glyphs in %q", "fps: 60")
}

func TestRenderSkipsEmptyFrame(t *testing.T) {
	_, o, dev := newOverlayRenderer(t)
	alloc, err := dev.CreateCommandAllocator()
	require.NoError(t, err)
	cl, err := dev.CreateCommandList(alloc)
	require.NoError(t, err)
	require.NoError(t, cl.Reset(alloc, nil))

	require.NoError(t, o.Begin(0, 400, 200))
	require.NoError(t, o.Render(cl, 0))
	assert.Empty(t, cl.(*headless.CommandList).Commands())
}

func TestBuildFailsWithoutShader(t *testing.T) {
	dev := headless.NewDevice(headless.Options{})
	t.Cleanup(dev.Release)
	heap, err := dev.CreateDescriptorHeap(gpu.HeapShaderResource, 4)
	require.NoError(t, err)

	o := New(nil)
	err = o.Build(renderer.OverlayContext{
		Device:     dev,
		Shaders:    shaders{missing: pixelShader},
		SRVHeap:    heap,
		FrameCount: 3,
	})
	assert.ErrorIs(t, err, core.ErrPipelineBuild)
	o.Release()
}
