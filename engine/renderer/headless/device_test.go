package headless

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/ringrender/engine/core"
	"github.com/spaghettifunk/ringrender/engine/renderer/gpu"
)

func TestManualFenceBlocksUntilRetired(t *testing.T) {
	dev := NewDevice(Options{Manual: true})
	defer dev.Release()

	f, err := dev.CreateFence(0)
	require.NoError(t, err)
	require.NoError(t, dev.Queue().Signal(f, 1))
	assert.Equal(t, uint64(0), f.CompletedValue())

	done := make(chan error, 1)
	go func() { done <- f.Wait(1) }()

	select {
	case <-done:
		t.Fatal("wait returned before the device reached the value")
	case <-time.After(50 * time.Millisecond):
	}

	assert.Equal(t, 1, dev.HeadlessQueue().RetireAll())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("wait did not return after retire")
	}
	assert.Equal(t, uint64(1), f.CompletedValue())
	assert.Equal(t, int64(1), f.(*Fence).BlockedWaits())
}

func TestAutoTimelineRetiresInOrder(t *testing.T) {
	dev := NewDevice(Options{Latency: time.Millisecond})
	defer dev.Release()

	f, err := dev.CreateFence(0)
	require.NoError(t, err)
	for v := uint64(1); v <= 5; v++ {
		require.NoError(t, dev.Queue().Signal(f, v))
	}
	require.NoError(t, f.Wait(5))
	assert.Equal(t, uint64(5), f.CompletedValue())
	assert.Equal(t, 0, dev.HeadlessQueue().Pending())
}

func TestRemovedDeviceFailsWaits(t *testing.T) {
	dev := NewDevice(Options{Manual: true})
	defer dev.Release()

	f, err := dev.CreateFence(0)
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- f.Wait(10) }()

	dev.Remove(nil)
	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errors.Is(err, core.ErrDeviceRemoved))
		assert.True(t, core.IsFatal(err))
	case <-time.After(time.Second):
		t.Fatal("wait not released by device removal")
	}
	assert.Error(t, dev.Queue().Signal(f, 11))
}

func TestAllocatorResetWhileExecuting(t *testing.T) {
	dev := NewDevice(Options{Manual: true})
	defer dev.Release()

	alloc, err := dev.CreateCommandAllocator()
	require.NoError(t, err)
	cl, err := dev.CreateCommandList(alloc)
	require.NoError(t, err)
	require.NoError(t, cl.Reset(alloc, nil))
	require.NoError(t, cl.Close())
	require.NoError(t, dev.Queue().ExecuteCommandLists(cl))

	err = alloc.Reset()
	assert.ErrorIs(t, err, core.ErrContractViolation)

	dev.HeadlessQueue().RetireAll()
	assert.NoError(t, alloc.Reset())
}

func TestListReusedAcrossAllocatorsBeforeRetire(t *testing.T) {
	for _, manual := range []bool{true, false} {
		dev := NewDevice(Options{Manual: manual, Latency: time.Millisecond})

		a0, err := dev.CreateCommandAllocator()
		require.NoError(t, err)
		a1, err := dev.CreateCommandAllocator()
		require.NoError(t, err)
		f, err := dev.CreateFence(0)
		require.NoError(t, err)
		cl, err := dev.CreateCommandList(a0)
		require.NoError(t, err)

		require.NoError(t, cl.Reset(a0, nil))
		require.NoError(t, cl.Close())
		require.NoError(t, dev.Queue().ExecuteCommandLists(cl))
		// the next frame records into the same list from another allocator
		require.NoError(t, cl.Reset(a1, nil))
		require.NoError(t, cl.Close())
		require.NoError(t, dev.Queue().ExecuteCommandLists(cl))
		require.NoError(t, dev.Queue().Signal(f, 1))

		if manual {
			assert.ErrorIs(t, a0.Reset(), core.ErrContractViolation)
			dev.HeadlessQueue().RetireAll()
		}
		require.NoError(t, f.Wait(1))

		assert.NoError(t, a0.Reset(), "manual=%t", manual)
		assert.NoError(t, a1.Reset(), "manual=%t", manual)
		assert.Equal(t, int64(0), a0.(*CommandAllocator).outstanding.Load())
		assert.Equal(t, int64(0), a1.(*CommandAllocator).outstanding.Load())
		dev.Release()
	}
}

func TestQueueRejectsWorkAfterRelease(t *testing.T) {
	for _, manual := range []bool{true, false} {
		dev := NewDevice(Options{Manual: manual})
		alloc, err := dev.CreateCommandAllocator()
		require.NoError(t, err)
		cl, err := dev.CreateCommandList(alloc)
		require.NoError(t, err)
		require.NoError(t, cl.Reset(alloc, nil))
		require.NoError(t, cl.Close())
		f, err := dev.CreateFence(0)
		require.NoError(t, err)

		dev.Release()
		dev.Release()

		done := make(chan [2]error, 1)
		go func() {
			done <- [2]error{dev.Queue().Signal(f, 1), dev.Queue().ExecuteCommandLists(cl)}
		}()
		select {
		case errs := <-done:
			for _, err := range errs {
				var de *core.DeviceError
				assert.ErrorAs(t, err, &de, "manual=%t", manual)
				assert.True(t, core.IsFatal(err))
			}
		case <-time.After(time.Second):
			t.Fatalf("submission after release blocked (manual=%t)", manual)
		}
		assert.NoError(t, alloc.Reset(), "a rejected submission must not hold the allocator")
	}
}

func TestDrawWithoutBindingIsViolation(t *testing.T) {
	dev := NewDevice(Options{Manual: true})
	defer dev.Release()

	alloc, _ := dev.CreateCommandAllocator()
	cl, _ := dev.CreateCommandList(alloc)
	require.NoError(t, cl.Reset(alloc, nil))
	cl.DrawIndexedInstanced(36, 1, 0, 0, 0)
	assert.ErrorIs(t, cl.Close(), core.ErrContractViolation)
}

func TestSwapChainResizeRequiresReleasedBuffers(t *testing.T) {
	dev := NewDevice(Options{Manual: true})
	defer dev.Release()

	sc, err := dev.CreateSwapChain(gpu.SwapChainDesc{Width: 64, Height: 32, BufferCount: 2, Format: gpu.FormatR8G8B8A8Unorm})
	require.NoError(t, err)

	b0, err := sc.Buffer(0)
	require.NoError(t, err)
	assert.ErrorIs(t, sc.ResizeBuffers(2, 128, 64, gpu.FormatR8G8B8A8Unorm), core.ErrContractViolation)

	b0.Release()
	require.NoError(t, sc.ResizeBuffers(2, 128, 64, gpu.FormatR8G8B8A8Unorm))
	b1, err := sc.Buffer(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(128), b1.Width())
	b1.Release()

	require.NoError(t, sc.Present(0))
	assert.Equal(t, 1, dev.SwapChain().CurrentIndex())

	dev.SwapChain().FailPresent(core.ErrDeviceRemoved)
	assert.True(t, core.IsFatal(sc.Present(0)))
}

func TestExecutedDrawSeesConstants(t *testing.T) {
	dev := NewDevice(Options{Manual: true})
	defer dev.Release()

	cb, err := dev.CreateUploadBuffer(512, "cb")
	require.NoError(t, err)
	cb.Bytes()[256] = 42

	vb, _ := dev.CreateStaticBuffer(make([]byte, 64), gpu.BufferUsageVertex, "vb")
	ib, _ := dev.CreateStaticBuffer(make([]byte, 12), gpu.BufferUsageIndex, "ib")
	rs, err := dev.CreateRootSignature(gpu.RootLayout{Parameters: []gpu.RootParameter{{Kind: gpu.RootConstantBufferView}}})
	require.NoError(t, err)
	pso, err := dev.CreatePipelineState(gpu.PipelineDesc{Name: "p", RootSignature: rs, VertexShader: []uint32{1}, PixelShader: []uint32{1}})
	require.NoError(t, err)

	alloc, _ := dev.CreateCommandAllocator()
	cl, _ := dev.CreateCommandList(alloc)
	require.NoError(t, cl.Reset(alloc, pso))
	cl.SetRenderTargets(1, 2)
	cl.SetGraphicsRootSignature(rs)
	cl.SetVertexBuffer(gpu.VertexBufferView{Buffer: vb, Stride: 32, Size: 64})
	cl.SetIndexBuffer(gpu.IndexBufferView{Buffer: ib, Format: gpu.FormatR16Uint, Size: 12})
	cl.SetGraphicsRootConstantBufferView(0, cb.GPUAddress()+256)
	cl.DrawIndexedInstanced(6, 1, 0, 0, 0)
	require.NoError(t, cl.Close())
	require.NoError(t, dev.Queue().ExecuteCommandLists(cl))

	// written after submission but before the device ran the list
	cb.Bytes()[256] = 7
	dev.HeadlessQueue().RetireAll()

	ex := dev.HeadlessQueue().Executed()
	require.Len(t, ex, 1)
	require.Len(t, ex[0].Draws, 1)
	assert.Equal(t, byte(7), ex[0].Draws[0].Constants[0][0])
}
