package testbed

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/ringrender/engine"
	"github.com/spaghettifunk/ringrender/engine/assets"
	"github.com/spaghettifunk/ringrender/engine/core"
	"github.com/spaghettifunk/ringrender/engine/math"
	"github.com/spaghettifunk/ringrender/engine/renderer"
	"github.com/spaghettifunk/ringrender/engine/renderer/components"
	"github.com/spaghettifunk/ringrender/engine/renderer/headless"
)

const epsilon = 1e-4

type stubShaders struct{}

func (stubShaders) Load(string) ([]uint32, error) {
	return []uint32{0x07230203, 0x00010000, 0, 1, 0}, nil
}

func newRenderer(t *testing.T, binding renderer.BindingVariant) *renderer.Renderer {
	t.Helper()
	dev := headless.NewDevice(headless.Options{})
	cfg := renderer.DefaultConfig()
	cfg.Binding = binding
	cfg.Width, cfg.Height = 320, 240
	r, err := renderer.New(dev, cfg, stubShaders{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = r.Shutdown()
		dev.Release()
	})
	return r
}

func TestGridPosition(t *testing.T) {
	tests := []struct {
		x, z int
		want math.Vec3
	}{
		{0, 0, math.NewVec3(-3, 0.5, -3)},
		{5, 5, math.NewVec3(2, 0.5, 2)},
		{3, 1, math.NewVec3(0, 0.5, -2)},
	}
	for _, tt := range tests {
		assert.True(t, GridPosition(6, tt.x, tt.z).Compare(tt.want, epsilon), "cell %d,%d", tt.x, tt.z)
	}
}

func TestBuildBoxSceneTextured(t *testing.T) {
	r := newRenderer(t, renderer.BindingTextured)
	bs, err := BuildBoxScene(r, nil, SceneParams{Size: 6})
	require.NoError(t, err)
	require.NoError(t, r.Build())

	require.Len(t, bs.Items, 36)
	assert.Len(t, r.Scene().Items(), 36)

	geo, err := r.Scene().Geometries.Get(bs.Geometry)
	require.NoError(t, err)
	assert.Equal(t, uint32(unsafe.Sizeof(math.Vertex3D{})), geo.VertexByteStride)
	assert.Equal(t, uint32(36), geo.DrawArgs[boxSubmesh].IndexCount)

	mat, err := r.Scene().Materials.Get(bs.Material)
	require.NoError(t, err)
	assert.Equal(t, grassMaterial, mat.Name)
	assert.Equal(t, math.NewVec4(1, 1, 1, 1), mat.DiffuseAlbedo)
	assert.InDelta(t, 0.05, mat.FresnelR0.X, epsilon)
	assert.InDelta(t, 0.2, mat.Roughness, epsilon)
	assert.Equal(t, renderer.TextureTableBase, mat.DiffuseSRVIndex)

	corner := bs.Item(0, 0)
	want := math.NewMat4Translation(math.NewVec3(-3, 0.5, -3))
	assert.True(t, corner.World.Compare(want, epsilon))
	for _, item := range bs.Items {
		assert.Equal(t, bs.Material, item.Material)
		assert.Equal(t, uint32(36), item.IndexCount)
	}
}

func TestBuildBoxSceneColored(t *testing.T) {
	r := newRenderer(t, renderer.BindingColored)
	bs, err := BuildBoxScene(r, nil, SceneParams{Size: 2})
	require.NoError(t, err)
	assert.Len(t, bs.Items, 4)
	assert.False(t, bs.Texture.IsValid())
	assert.Equal(t, 0, r.Scene().Textures.Len())

	geo, err := r.Scene().Geometries.Get(bs.Geometry)
	require.NoError(t, err)
	assert.Equal(t, uint32(unsafe.Sizeof(math.VertexColor{})), geo.VertexByteStride)
}

func TestBuildBoxSceneMaterialFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "materials"), 0o755))
	body := "name = moss\ndiffuse_albedo = 0.5 0.8 0.5 1\nfresnel_r0 = 0.02 0.02 0.02\nroughness = 0.7\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "materials", "moss.amt"), []byte(body), 0o644))

	am, err := assets.NewAssetManager()
	require.NoError(t, err)
	require.NoError(t, am.Initialize(dir, false))
	t.Cleanup(func() { _ = am.Close() })

	r := newRenderer(t, renderer.BindingTextured)
	bs, err := BuildBoxScene(r, am, SceneParams{Size: 2, Material: "materials/moss.amt"})
	require.NoError(t, err)

	mat, err := r.Scene().Materials.Get(bs.Material)
	require.NoError(t, err)
	assert.Equal(t, "moss", mat.Name)
	assert.Equal(t, math.NewVec4(0.5, 0.8, 0.5, 1), mat.DiffuseAlbedo)
	assert.InDelta(t, 0.7, mat.Roughness, epsilon)
	// no diffuse_map_name, so the checker is uploaded
	assert.Equal(t, renderer.TextureTableBase, mat.DiffuseSRVIndex)

	_, err = BuildBoxScene(newRenderer(t, renderer.BindingTextured), am, SceneParams{Size: 2, Material: "materials/none.amt"})
	assert.Error(t, err)
}

func TestControllerMovesAtConfiguredSpeed(t *testing.T) {
	tests := []struct {
		key  core.KeyCode
		want math.Vec3
	}{
		{core.KEY_W, math.NewVec3(0, 0, 5)},
		{core.KEY_S, math.NewVec3(0, 0, -5)},
		{core.KEY_D, math.NewVec3(5, 0, 0)},
		{core.KEY_A, math.NewVec3(-5, 0, 0)},
		{core.KEY_E, math.NewVec3(0, 5, 0)},
		{core.KEY_Q, math.NewVec3(0, -5, 0)},
	}
	for _, tt := range tests {
		cam := components.NewCamera()
		input := core.NewInputState(nil)
		ctl := NewCameraController(cam, input)

		input.ProcessKey(tt.key, true)
		ctl.Update(0.5)
		assert.True(t, cam.GetPosition().Compare(tt.want, epsilon), "key %#x moved to %v", tt.key, cam.GetPosition())
	}
}

func TestControllerLeftDragRotates(t *testing.T) {
	cam := components.NewCamera()
	input := core.NewInputState(nil)
	ctl := NewCameraController(cam, input)

	input.ProcessButton(core.BUTTON_LEFT, true)
	input.Update()
	input.ProcessMouseMove(40, -20)
	ctl.Update(0.016)

	assert.InDelta(t, math.DegToRad(10), cam.EulerRotation.Y, epsilon)
	assert.InDelta(t, math.DegToRad(-5), cam.EulerRotation.X, epsilon)
}

func TestControllerIgnoresMoveWithoutDrag(t *testing.T) {
	cam := components.NewCamera()
	input := core.NewInputState(nil)
	ctl := NewCameraController(cam, input)

	// the press lands this frame, so there is no drag yet
	input.ProcessButton(core.BUTTON_LEFT, true)
	input.ProcessMouseMove(40, 40)
	ctl.Update(0.016)
	assert.Equal(t, math.Vec3{}, cam.EulerRotation)

	input.Update()
	input.ProcessButton(core.BUTTON_LEFT, false)
	input.ProcessMouseMove(80, 80)
	ctl.Update(0.016)
	assert.Equal(t, math.Vec3{}, cam.EulerRotation)
}

func writeShaders(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	shaders := filepath.Join(dir, "shaders")
	require.NoError(t, os.MkdirAll(shaders, 0o755))
	header := make([]byte, 20)
	for i, w := range []uint32{0x07230203, 0x00010000, 0, 1, 0} {
		binary.LittleEndian.PutUint32(header[i*4:], w)
	}
	for _, name := range []string{"default.vert.spv", "default.frag.spv", "overlay.vert.spv", "overlay.frag.spv"} {
		require.NoError(t, os.WriteFile(filepath.Join(shaders, name), header, 0o644))
	}
	return dir
}

func TestTestGameRunsHeadless(t *testing.T) {
	cfg := engine.DefaultApplicationConfig()
	cfg.LogLevel = "error"
	cfg.Renderer.Backend = "headless"
	cfg.Assets.Dir = writeShaders(t)
	cfg.Assets.Watch = false
	cfg.Headless.Frames = 3
	cfg.Headless.Width, cfg.Headless.Height = 320, 240

	game, err := NewTestGame(cfg)
	require.NoError(t, err)
	e, err := engine.New(game.Game)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	defer func() { require.NoError(t, e.Shutdown()) }()

	assert.Len(t, game.Scene().Items, 36)
	assert.True(t, e.Renderer().Camera().GetPosition().Compare(CameraStart, epsilon))

	e.Input().ProcessKey(core.KEY_W, true)
	require.NoError(t, e.Run())
	assert.Equal(t, uint64(3), e.FrameCount())
	assert.Greater(t, e.Renderer().Camera().GetPosition().Z, CameraStart.Z)

	e.Input().ProcessKey(core.KEY_W, false)
	e.Input().ProcessKey(core.KEY_R, true)
	assert.True(t, e.Renderer().Camera().GetPosition().Compare(CameraStart, epsilon))
}
