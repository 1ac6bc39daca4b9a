package renderer

import (
	"errors"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/ringrender/engine/containers"
	"github.com/spaghettifunk/ringrender/engine/core"
	"github.com/spaghettifunk/ringrender/engine/math"
	"github.com/spaghettifunk/ringrender/engine/renderer/gpu"
	"github.com/spaghettifunk/ringrender/engine/renderer/headless"
)

type testShaders struct {
	loads map[string]int
}

func (s *testShaders) Load(name string) ([]uint32, error) {
	if s.loads == nil {
		s.loads = map[string]int{}
	}
	s.loads[name]++
	return []uint32{0x07230203, 0x00010000}, nil
}

func quadGeometry(name string) GeometryDesc {
	verts := []math.Vertex3D{
		{Position: math.NewVec3(-1, -1, 0)},
		{Position: math.NewVec3(-1, 1, 0)},
		{Position: math.NewVec3(1, 1, 0)},
		{Position: math.NewVec3(1, -1, 0)},
	}
	indices := []uint16{0, 1, 2, 0, 2, 3}
	return GeometryDesc{
		Name:         name,
		Vertices:     VertexBytes(verts),
		VertexStride: uint32(unsafe.Sizeof(math.Vertex3D{})),
		Indices:      VertexBytes(indices),
		IndexFormat:  gpu.FormatR16Uint,
		DrawArgs: map[string]SubmeshGeometry{
			"quad": {IndexCount: 6},
		},
	}
}

type testScene struct {
	geometry containers.Handle
	material containers.Handle
	items    []*RenderItem
}

func populate(t *testing.T, r *Renderer, count int) testScene {
	t.Helper()
	geo, err := r.CreateGeometry(quadGeometry("quad"))
	require.NoError(t, err)
	texH, err := r.CreateTexture("white", 2, 2, make([]byte, 2*2*4))
	require.NoError(t, err)
	tex, err := r.Scene().Textures.Get(texH)
	require.NoError(t, err)

	matH, err := r.Scene().AddMaterial(&Material{
		Name:            "grass",
		DiffuseSRVIndex: tex.SRVIndex,
		DiffuseAlbedo:   math.NewVec4(1, 1, 1, 1),
		FresnelR0:       math.NewVec3(0.05, 0.05, 0.05),
		Roughness:       0.2,
		MatTransform:    math.NewMat4Identity(),
	})
	require.NoError(t, err)

	ts := testScene{geometry: geo, material: matH}
	for i := 0; i < count; i++ {
		item, err := r.Scene().SubmeshItem(geo, "quad", matH, math.NewMat4Translation(math.NewVec3(float32(i), 0.5, 0)))
		require.NoError(t, err)
		require.NoError(t, r.Scene().AddRenderItem(item))
		ts.items = append(ts.items, item)
	}
	return ts
}

func newTestRenderer(t *testing.T, dev *headless.Device, cfg Config) (*Renderer, *testShaders) {
	t.Helper()
	shaders := &testShaders{}
	cfg.Width, cfg.Height = 320, 240
	r, err := New(dev, cfg, shaders, nil)
	require.NoError(t, err)
	return r, shaders
}

func TestBindingLayoutVariants(t *testing.T) {
	tests := []struct {
		variant    BindingVariant
		params     int
		samplers   int
		table      int
		objectCB   int
		passCB     int
		materialCB int
	}{
		{BindingTextured, 4, 6, 0, 1, 2, 3},
		{BindingColored, 2, 0, -1, 0, 1, -1},
	}
	for _, tt := range tests {
		t.Run(string(tt.variant), func(t *testing.T) {
			b, err := NewBindingLayout(tt.variant)
			require.NoError(t, err)
			assert.Len(t, b.Root.Parameters, tt.params)
			assert.Len(t, b.Root.StaticSamplers, tt.samplers)
			assert.Equal(t, tt.table, b.TextureTable)
			assert.Equal(t, tt.objectCB, b.ObjectCB)
			assert.Equal(t, tt.passCB, b.PassCB)
			assert.Equal(t, tt.materialCB, b.MaterialCB)
		})
	}

	_, err := NewBindingLayout("wireframe")
	assert.Error(t, err)
}

func TestTexturedLayoutRegisters(t *testing.T) {
	b, err := NewBindingLayout(BindingTextured)
	require.NoError(t, err)

	table := b.Root.Parameters[b.TextureTable]
	assert.Equal(t, gpu.RootDescriptorTable, table.Kind)
	assert.Equal(t, gpu.VisibilityPixel, table.Visibility)
	assert.Equal(t, uint32(1), table.DescriptorCount)

	for slot, reg := range map[int]uint32{b.ObjectCB: 0, b.PassCB: 1, b.MaterialCB: 2} {
		assert.Equal(t, gpu.RootConstantBufferView, b.Root.Parameters[slot].Kind)
		assert.Equal(t, reg, b.Root.Parameters[slot].ShaderRegister)
	}

	for i, s := range b.Root.StaticSamplers {
		assert.Equal(t, uint32(i), s.ShaderRegister)
		if s.Filter == gpu.FilterAnisotropic {
			assert.Equal(t, uint32(8), s.MaxAnisotropy)
		}
	}
}

func TestDirtyItemWrittenOncePerSlot(t *testing.T) {
	dev := headless.NewDevice(headless.Options{Manual: true})
	defer dev.Release()
	gate, err := NewGate(dev)
	require.NoError(t, err)

	const depth = 3
	ring, err := NewFrameRing(dev, gate, depth, 4, 1)
	require.NoError(t, err)
	defer ring.Release()

	scene := NewScene(depth, 4, 1)
	geo, err := scene.AddGeometry(&MeshGeometry{Name: "g", DrawArgs: map[string]SubmeshGeometry{"box": {IndexCount: 36}}})
	require.NoError(t, err)
	item, err := scene.SubmeshItem(geo, "box", containers.Handle{}, math.NewMat4Identity())
	require.NoError(t, err)
	require.NoError(t, scene.AddRenderItem(item))
	assert.Equal(t, depth, item.DirtyFrameCount)

	world := math.NewMat4Translation(math.NewVec3(1, 2, 3))
	scene.SetWorld(item, world)

	var written []int
	for frame := 0; frame < depth+2; frame++ {
		fr, err := ring.Advance()
		require.NoError(t, err)
		before := item.DirtyFrameCount
		require.NoError(t, UpdateObjectConstants(scene.Items(), fr))
		if before > 0 {
			written = append(written, fr.Index)
			assert.Equal(t, before-1, item.DirtyFrameCount)
			got := fr.ObjectCB.Element(item.ObjectIndex)
			assert.Equal(t, math.NewMat4Transposed(world), got.World)
		}
		assert.GreaterOrEqual(t, item.DirtyFrameCount, 0)
	}
	assert.Equal(t, []int{0, 1, 2}, written)
	assert.Equal(t, 0, item.DirtyFrameCount)

	// clean items leave the slot untouched
	fr := ring.Slot((ring.Index() + 1) % depth)
	var zero ObjectConstants
	require.NoError(t, fr.ObjectCB.CopyData(item.ObjectIndex, &zero))
	next, err := ring.Advance()
	require.NoError(t, err)
	require.Same(t, fr, next)
	require.NoError(t, UpdateObjectConstants(scene.Items(), next))
	assert.Equal(t, zero, fr.ObjectCB.Element(item.ObjectIndex))
}

func TestMaterialConstantsFollowDirtyCount(t *testing.T) {
	dev := headless.NewDevice(headless.Options{Manual: true})
	defer dev.Release()
	gate, err := NewGate(dev)
	require.NoError(t, err)
	ring, err := NewFrameRing(dev, gate, 2, 1, 2)
	require.NoError(t, err)
	defer ring.Release()

	scene := NewScene(2, 1, 2)
	m := &Material{Name: "grass", Roughness: 0.2, MatTransform: math.NewMat4Identity()}
	_, err = scene.AddMaterial(m)
	require.NoError(t, err)
	assert.Equal(t, 2, m.DirtyFrameCount)

	for i := 0; i < 3; i++ {
		fr, err := ring.Advance()
		require.NoError(t, err)
		require.NoError(t, UpdateMaterialConstants(scene.Materials, fr))
	}
	assert.Equal(t, 0, m.DirtyFrameCount)
	for i := 0; i < 2; i++ {
		assert.Equal(t, float32(0.2), ring.Slot(i).MaterialCB.Element(m.MaterialIndex).Roughness)
	}

	_, err = scene.AddMaterial(&Material{Name: "stone"})
	require.NoError(t, err)
	_, err = scene.AddMaterial(&Material{Name: "sand"})
	assert.ErrorIs(t, err, core.ErrContractViolation)
}

func TestDrawRecorderCommandSequence(t *testing.T) {
	dev := headless.NewDevice(headless.Options{})
	defer dev.Release()
	r, _ := newTestRenderer(t, dev, DefaultConfig())
	ts := populate(t, r, 2)
	require.NoError(t, r.Build())
	defer r.Shutdown()

	require.NoError(t, r.OnUpdate(0, 0))
	fr := r.Frames().Current()

	alloc, err := dev.CreateCommandAllocator()
	require.NoError(t, err)
	list, err := dev.CreateCommandList(alloc)
	require.NoError(t, err)
	require.NoError(t, list.Reset(alloc, r.Pipeline()))
	list.SetRenderTargets(1, 2)
	list.SetGraphicsRootSignature(r.rootSig)
	require.NoError(t, r.recorder.Record(list, fr, r.Scene().Items()))
	require.NoError(t, list.Close())

	cmds := list.(*headless.CommandList).Commands()[3:]
	perItem := []headless.Op{
		headless.OpSetVertexBuffer,
		headless.OpSetIndexBuffer,
		headless.OpSetTopology,
		headless.OpSetRootTable,
		headless.OpSetRootCBV,
		headless.OpSetRootCBV,
		headless.OpDraw,
	}
	require.Len(t, cmds, len(perItem)*len(ts.items))

	mat, err := r.Scene().Materials.Get(ts.material)
	require.NoError(t, err)
	srvSize := dev.DescriptorHandleIncrementSize(gpu.HeapShaderResource)
	for i, item := range ts.items {
		got := cmds[i*len(perItem) : (i+1)*len(perItem)]
		for j, op := range perItem {
			assert.Equal(t, op, got[j].Op, "item %d command %d", i, j)
		}
		assert.Equal(t, uint32(0), got[3].Slot)
		assert.Equal(t, r.SRVHeap().Start().Offset(mat.DiffuseSRVIndex, srvSize), got[3].Handle)
		assert.Equal(t, uint32(1), got[4].Slot)
		assert.Equal(t, fr.ObjectCB.Address(item.ObjectIndex), got[4].Address)
		assert.Equal(t, uint32(3), got[5].Slot)
		assert.Equal(t, fr.MaterialCB.Address(mat.MaterialIndex), got[5].Address)
		assert.Equal(t, headless.DrawArgs{IndexCount: 6, InstanceCount: 1}, got[6].Draw)
	}
	// object addresses are stride apart
	assert.Equal(t, gpu.GPUAddress(fr.ObjectCB.Stride()), cmds[len(perItem)+4].Address-cmds[4].Address)
}

func TestDrawRecorderStaleGeometry(t *testing.T) {
	dev := headless.NewDevice(headless.Options{})
	defer dev.Release()
	r, _ := newTestRenderer(t, dev, DefaultConfig())
	ts := populate(t, r, 1)
	require.NoError(t, r.Build())
	defer r.Shutdown()
	require.NoError(t, r.OnUpdate(0, 0))

	g, _ := r.Scene().Geometries.Get(ts.geometry)
	r.Scene().Geometries.Clear()
	defer g.Release()

	err := r.OnDraw()
	assert.ErrorIs(t, err, core.ErrContractViolation)
}

func TestRendererRunsFrames(t *testing.T) {
	dev := headless.NewDevice(headless.Options{Latency: 2 * time.Millisecond})
	defer dev.Release()
	r, shaders := newTestRenderer(t, dev, DefaultConfig())
	ts := populate(t, r, 3)
	require.NoError(t, r.Build())

	assert.Equal(t, 1, shaders.loads["default.vert.spv"])
	assert.Equal(t, 1, shaders.loads["default.frag.spv"])

	var stamps []uint64
	for frame := 0; frame < 10; frame++ {
		require.NoError(t, r.OnUpdate(float64(frame)/60, 1.0/60))
		require.NoError(t, r.OnDraw())
		fr := r.Frames().Current()
		assert.Equal(t, frame%3, fr.Index)
		stamps = append(stamps, fr.FenceValue)
		assert.Equal(t, dev.SwapChain().CurrentIndex(), r.SwapChain().CurrentIndex())
		// the CPU never runs more than the ring depth ahead
		assert.LessOrEqual(t, r.Gate().Current()-r.Gate().Completed(), uint64(3))
	}
	for i := 1; i < len(stamps); i++ {
		assert.Greater(t, stamps[i], stamps[i-1])
	}
	for _, item := range ts.items {
		assert.Equal(t, 0, item.DirtyFrameCount)
	}

	require.NoError(t, r.Shutdown())
	assert.Equal(t, 0, dev.HeadlessQueue().Pending())

	executed := dev.HeadlessQueue().Executed()
	require.NotEmpty(t, executed)
	last := executed[len(executed)-1]
	require.Len(t, last.Draws, 3)
	for _, d := range last.Draws {
		assert.Equal(t, uint32(6), d.IndexCount)
		assert.Contains(t, d.Constants, uint32(2), "pass constants bound")
	}
}

func TestRendererColoredBinding(t *testing.T) {
	dev := headless.NewDevice(headless.Options{})
	defer dev.Release()
	cfg := DefaultConfig()
	cfg.Binding = BindingColored
	r, shaders := newTestRenderer(t, dev, cfg)

	verts := []math.VertexColor{
		{Position: math.NewVec3(0, 1, 0), Colour: math.NewVec4(1, 0, 0, 1)},
		{Position: math.NewVec3(1, 0, 0), Colour: math.NewVec4(0, 1, 0, 1)},
		{Position: math.NewVec3(-1, 0, 0), Colour: math.NewVec4(0, 0, 1, 1)},
	}
	geo, err := r.CreateGeometry(GeometryDesc{
		Name:         "tri",
		Vertices:     VertexBytes(verts),
		VertexStride: uint32(unsafe.Sizeof(math.VertexColor{})),
		Indices:      VertexBytes([]uint16{0, 1, 2}),
		IndexFormat:  gpu.FormatR16Uint,
		DrawArgs:     map[string]SubmeshGeometry{"tri": {IndexCount: 3}},
	})
	require.NoError(t, err)
	item, err := r.Scene().SubmeshItem(geo, "tri", containers.Handle{}, math.NewMat4Identity())
	require.NoError(t, err)
	require.NoError(t, r.Scene().AddRenderItem(item))
	require.NoError(t, r.Build())

	assert.Equal(t, 1, shaders.loads["color.vert.spv"])
	desc := r.Pipeline().(*headless.PipelineState).Desc()
	assert.Equal(t, uint32(28), desc.VertexStride)

	for i := 0; i < 4; i++ {
		require.NoError(t, r.OnUpdate(0, 0))
		require.NoError(t, r.OnDraw())
	}
	require.NoError(t, r.Shutdown())

	executed := dev.HeadlessQueue().Executed()
	last := executed[len(executed)-1]
	require.Len(t, last.Draws, 1)
	assert.Len(t, last.Draws[0].Constants, 2)
}

func TestReloadShadersKeepsPipelineOnFailure(t *testing.T) {
	dev := headless.NewDevice(headless.Options{})
	defer dev.Release()
	r, shaders := newTestRenderer(t, dev, DefaultConfig())
	populate(t, r, 1)
	require.NoError(t, r.Build())
	defer r.Shutdown()

	old := r.Pipeline()
	dev.FailNextPipeline(errors.New("line 3: syntax error"))
	require.NoError(t, r.ReloadShaders())
	assert.Same(t, old, r.Pipeline())

	require.NoError(t, r.ReloadShaders())
	assert.NotSame(t, old, r.Pipeline())
	assert.Equal(t, 3, shaders.loads["default.vert.spv"])

	require.NoError(t, r.OnUpdate(0, 0))
	require.NoError(t, r.OnDraw())
}

func TestBuildFailsOnPipelineError(t *testing.T) {
	dev := headless.NewDevice(headless.Options{})
	defer dev.Release()
	r, _ := newTestRenderer(t, dev, DefaultConfig())
	populate(t, r, 1)

	dev.FailNextPipeline(errors.New("undeclared identifier"))
	err := r.Build()
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrPipelineBuild)
	assert.True(t, core.IsFatal(err))
}

func TestPresentFailureStopsFrame(t *testing.T) {
	dev := headless.NewDevice(headless.Options{})
	defer dev.Release()
	r, _ := newTestRenderer(t, dev, DefaultConfig())
	populate(t, r, 1)
	require.NoError(t, r.Build())
	defer r.Shutdown()

	require.NoError(t, r.OnUpdate(0, 0))
	dev.SwapChain().FailPresent(core.ErrDeviceRemoved)
	err := r.OnDraw()
	assert.True(t, core.IsFatal(err))
	assert.ErrorIs(t, err, core.ErrDeviceRemoved)
}

func TestRendererResizeBetweenFrames(t *testing.T) {
	dev := headless.NewDevice(headless.Options{Latency: time.Millisecond})
	defer dev.Release()
	r, _ := newTestRenderer(t, dev, DefaultConfig())
	populate(t, r, 2)
	require.NoError(t, r.Build())
	defer r.Shutdown()

	for i := 0; i < 3; i++ {
		require.NoError(t, r.OnUpdate(0, 0))
		require.NoError(t, r.OnDraw())
	}
	require.NoError(t, r.OnResize(1024, 512))
	assert.Equal(t, 0, r.SwapChain().CurrentIndex())
	assert.Equal(t, r.Gate().Current(), r.Gate().Completed())
	assert.InDelta(t, 2.0, r.Camera().Aspect, 1e-6)

	require.NoError(t, r.OnUpdate(0, 0))
	pass := r.Frames().Current().PassCB.Element(0)
	assert.Equal(t, math.NewVec2(1024, 512), pass.RenderTargetSize)
	require.NoError(t, r.OnDraw())
}

func TestBuildPassConstants(t *testing.T) {
	dev := headless.NewDevice(headless.Options{})
	defer dev.Release()
	r, _ := newTestRenderer(t, dev, DefaultConfig())
	cam := r.Camera()
	cam.SetPosition(math.NewVec3(0, 2, -15))

	pc := BuildPassConstants(cam, 800, 600, 3, 0.5, DefaultLighting())
	assert.Equal(t, math.NewVec3(0, 2, -15), pc.EyePosW)
	assert.Equal(t, math.NewVec2(1.0/800, 1.0/600), pc.InvRenderTargetSize)
	assert.Equal(t, float32(3), pc.TotalTime)
	assert.Equal(t, float32(0.5), pc.DeltaTime)
	assert.Equal(t, math.NewVec4(0.25, 0.25, 0.35, 1), pc.AmbientLight)
	assert.Equal(t, float32(0.6), pc.Lights[0].Strength.X)
	assert.Equal(t, Light{}, pc.Lights[3])

	view := math.NewMat4Transposed(pc.View)
	inv := math.NewMat4Transposed(pc.InvView)
	assert.True(t, view.Mul(inv).Compare(math.NewMat4Identity(), 1e-4))
}

func TestDebugName(t *testing.T) {
	assert.Equal(t, "boxGeo", debugName("geo", "boxGeo"))

	a, b := debugName("tex", ""), debugName("tex", "")
	assert.Regexp(t, `^tex-[0-9a-f]{8}$`, a)
	assert.NotEqual(t, a, b)
}

func TestSecondDrawWithoutUpdateIsViolation(t *testing.T) {
	dev := headless.NewDevice(headless.Options{Latency: time.Millisecond})
	defer dev.Release()
	r, _ := newTestRenderer(t, dev, DefaultConfig())
	populate(t, r, 1)
	require.NoError(t, r.Build())
	defer r.Shutdown()

	require.NoError(t, r.OnUpdate(0, 0))
	require.NoError(t, r.OnDraw())
	// the slot is submitted; only the next OnUpdate may hand out a slot again
	assert.ErrorIs(t, r.OnDraw(), core.ErrContractViolation)

	require.NoError(t, r.OnUpdate(0, 0))
	require.NoError(t, r.OnDraw())
}
