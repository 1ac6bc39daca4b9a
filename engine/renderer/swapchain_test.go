package renderer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/ringrender/engine/core"
	"github.com/spaghettifunk/ringrender/engine/math"
	"github.com/spaghettifunk/ringrender/engine/renderer/components"
	"github.com/spaghettifunk/ringrender/engine/renderer/gpu"
	"github.com/spaghettifunk/ringrender/engine/renderer/headless"
)

func newTestSwapChain(t *testing.T, dev *headless.Device, lens Lens) *SwapChainManager {
	t.Helper()
	gate, err := NewGate(dev)
	require.NoError(t, err)
	alloc, err := dev.CreateCommandAllocator()
	require.NoError(t, err)
	list, err := dev.CreateCommandList(alloc)
	require.NoError(t, err)
	sc, err := NewSwapChainManager(dev, gate, alloc, list, lens, DefaultSwapChainBufferCount, 640, 480, false)
	require.NoError(t, err)
	return sc
}

func TestSwapChainResizeIsIdempotent(t *testing.T) {
	dev := headless.NewDevice(headless.Options{})
	defer dev.Release()
	camera := components.NewCamera()
	sc := newTestSwapChain(t, dev, camera)

	require.NoError(t, sc.Resize(800, 600))
	first := sc.State()
	require.NoError(t, sc.Resize(800, 600))
	assert.Equal(t, first, sc.State())

	assert.Equal(t, gpu.Viewport{Width: 800, Height: 600, MaxDepth: 1}, first.Viewport)
	assert.Equal(t, gpu.Rect{Right: 800, Bottom: 600}, first.Scissor)
	assert.Equal(t, 0, first.Current)
	assert.Len(t, first.BackBuffers, 2)

	assert.InDelta(t, float32(800.0/600.0), camera.Aspect, 1e-6)
	assert.InDelta(t, 0.25*math.K_PI, camera.FovY, 1e-6)
	assert.Equal(t, float32(1), camera.NearZ)
	assert.Equal(t, float32(1000), camera.FarZ)
}

func TestSwapChainZeroAreaResizeIsIgnored(t *testing.T) {
	dev := headless.NewDevice(headless.Options{})
	defer dev.Release()
	sc := newTestSwapChain(t, dev, nil)

	require.NoError(t, sc.Resize(320, 200))
	before := sc.State()
	generation := dev.SwapChain().Generation()

	tests := []struct{ w, h uint32 }{{0, 200}, {320, 0}, {0, 0}}
	for _, tt := range tests {
		require.NoError(t, sc.Resize(tt.w, tt.h))
		assert.Equal(t, before, sc.State())
	}
	assert.Equal(t, generation, dev.SwapChain().Generation())
}

func TestSwapChainBackBufferPeriod(t *testing.T) {
	dev := headless.NewDevice(headless.Options{})
	defer dev.Release()
	sc := newTestSwapChain(t, dev, nil)
	require.NoError(t, sc.Resize(64, 64))

	var seen []int
	for i := 0; i < 2*sc.BufferCount(); i++ {
		seen = append(seen, sc.CurrentIndex())
		require.NoError(t, sc.Present())
		assert.Equal(t, dev.SwapChain().CurrentIndex(), sc.CurrentIndex())
	}
	assert.Equal(t, []int{0, 1, 0, 1}, seen)

	// resize restarts at buffer 0
	require.NoError(t, sc.Present())
	require.NoError(t, sc.Resize(128, 64))
	assert.Equal(t, 0, sc.CurrentIndex())
	assert.Equal(t, uint32(128), sc.CurrentBackBuffer().Width())
}

func TestSwapChainPresentFailureIsFatal(t *testing.T) {
	dev := headless.NewDevice(headless.Options{})
	defer dev.Release()
	sc := newTestSwapChain(t, dev, nil)
	require.NoError(t, sc.Resize(64, 64))

	dev.SwapChain().FailPresent(core.ErrDeviceLost)
	err := sc.Present()
	require.Error(t, err)
	assert.True(t, core.IsFatal(err))
	assert.ErrorIs(t, err, core.ErrDeviceLost)
	assert.Equal(t, 0, sc.CurrentIndex())
}

func TestSwapChainRejectsSingleBuffer(t *testing.T) {
	dev := headless.NewDevice(headless.Options{})
	defer dev.Release()
	gate, err := NewGate(dev)
	require.NoError(t, err)
	alloc, _ := dev.CreateCommandAllocator()
	list, _ := dev.CreateCommandList(alloc)
	_, err = NewSwapChainManager(dev, gate, alloc, list, nil, 1, 64, 64, false)
	assert.ErrorIs(t, err, core.ErrContractViolation)
}
