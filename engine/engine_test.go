package engine

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/ringrender/engine/core"
	"github.com/spaghettifunk/ringrender/engine/platform"
	"github.com/spaghettifunk/ringrender/engine/renderer"
	"github.com/spaghettifunk/ringrender/engine/renderer/headless"
)

var shaderFiles = []string{
	"default.vert.spv", "default.frag.spv",
	"color.vert.spv", "color.frag.spv",
	"overlay.vert.spv", "overlay.frag.spv",
}

// writeAssets lays out a minimal assets tree with header-only SPIR-V
// modules, enough for the headless device.
func writeAssets(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	shaders := filepath.Join(dir, "shaders")
	require.NoError(t, os.MkdirAll(shaders, 0o755))
	header := make([]byte, 20)
	for i, w := range []uint32{0x07230203, 0x00010000, 0, 1, 0} {
		binary.LittleEndian.PutUint32(header[i*4:], w)
	}
	for _, name := range shaderFiles {
		require.NoError(t, os.WriteFile(filepath.Join(shaders, name), header, 0o644))
	}
	return dir
}

func headlessConfig(t *testing.T, frames int) *ApplicationConfig {
	cfg := DefaultApplicationConfig()
	cfg.Name = "engine-test"
	cfg.LogLevel = "error"
	cfg.Renderer.Backend = "headless"
	cfg.Assets.Dir = writeAssets(t)
	cfg.Assets.Watch = false
	cfg.Headless.Frames = frames
	cfg.Headless.Width = 320
	cfg.Headless.Height = 240
	return cfg
}

func newTestEngine(t *testing.T, g *Game) *Engine {
	t.Helper()
	e, err := New(g)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	t.Cleanup(func() { _ = e.Shutdown() })
	return e
}

func TestEngineRunsConfiguredFrames(t *testing.T) {
	initialized := false
	var resized [][2]uint32
	updates := 0
	g := &Game{
		ApplicationConfig: headlessConfig(t, 5),
		FnInitialize: func(e *Engine) error {
			initialized = true
			assert.Equal(t, EngineStageInitializing, e.Stage())
			assert.NotNil(t, e.Renderer())
			return nil
		},
		FnUpdate: func(float64) error {
			updates++
			return nil
		},
		FnOnResize: func(w, h uint32) error {
			resized = append(resized, [2]uint32{w, h})
			return nil
		},
	}
	e := newTestEngine(t, g)
	assert.True(t, initialized)
	assert.Equal(t, [][2]uint32{{320, 240}}, resized)
	assert.Equal(t, EngineStageInitialized, e.Stage())

	require.NoError(t, e.Run())
	assert.Equal(t, uint64(5), e.FrameCount())
	assert.Equal(t, 5, updates)
	assert.GreaterOrEqual(t, e.Renderer().Gate().Current(), uint64(5))

	require.NoError(t, e.Shutdown())
	assert.Equal(t, EngineStageShuttingDown, e.Stage())
}

func TestEngineRunRequiresInitialize(t *testing.T) {
	e, err := New(&Game{ApplicationConfig: headlessConfig(t, 1)})
	require.NoError(t, err)
	assert.Error(t, e.Run())
}

func TestEngineEscapeQuits(t *testing.T) {
	var e *Engine
	updates := 0
	g := &Game{
		ApplicationConfig: headlessConfig(t, 0),
		FnUpdate: func(float64) error {
			updates++
			if updates == 3 {
				e.Input().ProcessKey(core.KEY_ESCAPE, true)
			}
			return nil
		},
	}
	e = newTestEngine(t, g)
	require.NoError(t, e.Run())
	assert.Equal(t, uint64(3), e.FrameCount())
}

func TestEngineF1TogglesOverlay(t *testing.T) {
	e := newTestEngine(t, &Game{ApplicationConfig: headlessConfig(t, 1)})
	require.NotNil(t, e.Overlay())
	assert.True(t, e.Overlay().Enabled())

	e.Input().ProcessKey(core.KEY_F1, true)
	assert.False(t, e.Overlay().Enabled())
	e.Input().ProcessKey(core.KEY_F1, false)
	e.Input().ProcessKey(core.KEY_F1, true)
	assert.True(t, e.Overlay().Enabled())
}

func TestEngineOverlayDisabledByConfig(t *testing.T) {
	cfg := headlessConfig(t, 1)
	cfg.Overlay.Enabled = false
	e := newTestEngine(t, &Game{ApplicationConfig: cfg})
	assert.False(t, e.Overlay().Enabled())
}

func TestEngineMinimizePausesAndResizes(t *testing.T) {
	e := newTestEngine(t, &Game{ApplicationConfig: headlessConfig(t, 6)})
	window := e.Window().(*platform.HeadlessWindow)
	window.ScheduleResize(2, 0, 0)
	window.ScheduleResize(4, 640, 480)

	require.NoError(t, e.Run())
	// Pumps 3 and 4 were spent minimized.
	assert.Equal(t, uint64(4), e.FrameCount())
	assert.False(t, e.Paused())
	w, h := e.Renderer().SwapChain().Size()
	assert.Equal(t, uint32(640), w)
	assert.Equal(t, uint32(480), h)
}

func TestEngineDeactivationStopsClock(t *testing.T) {
	e := newTestEngine(t, &Game{ApplicationConfig: headlessConfig(t, 1)})
	e.clock.Start()

	ctx := core.EventContext{}
	e.Events().Fire(core.EVENT_CODE_ACTIVATED, t, ctx)
	assert.True(t, e.Paused())
	assert.True(t, e.clock.Stopped())

	ctx.Data.U32[0] = 1
	e.Events().Fire(core.EVENT_CODE_ACTIVATED, t, ctx)
	assert.False(t, e.Paused())
	assert.False(t, e.clock.Stopped())
}

func TestEngineReturnsFatalDeviceError(t *testing.T) {
	var e *Engine
	updates := 0
	g := &Game{
		ApplicationConfig: headlessConfig(t, 0),
		FnUpdate: func(float64) error {
			updates++
			if updates == 2 {
				e.Device().(*headless.Device).Remove(nil)
			}
			return nil
		},
	}
	e = newTestEngine(t, g)
	err := e.Run()
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrDeviceRemoved)
	assert.True(t, core.IsFatal(err))
	assert.Equal(t, uint64(1), e.FrameCount())
}

func TestEngineStopFromAnotherGoroutine(t *testing.T) {
	e := newTestEngine(t, &Game{ApplicationConfig: headlessConfig(t, 0)})
	done := make(chan error, 1)
	go func() { done <- e.Run() }()
	time.Sleep(20 * time.Millisecond)
	e.Stop()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	assert.Greater(t, e.FrameCount(), uint64(0))
}

func TestEngineColoredBinding(t *testing.T) {
	cfg := headlessConfig(t, 2)
	cfg.Renderer.Binding = string(renderer.BindingColored)
	e := newTestEngine(t, &Game{ApplicationConfig: cfg})
	assert.Equal(t, renderer.BindingColored, e.Renderer().Binding().Variant)
	require.NoError(t, e.Run())
	assert.Equal(t, uint64(2), e.FrameCount())
}
