package renderer

import (
	"fmt"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/ringrender/engine/core"
	"github.com/spaghettifunk/ringrender/engine/renderer/headless"
)

func TestGateSignalAndWait(t *testing.T) {
	dev := headless.NewDevice(headless.Options{Latency: time.Millisecond})
	defer dev.Release()

	gate, err := NewGate(dev)
	require.NoError(t, err)

	v1, err := gate.Signal()
	require.NoError(t, err)
	v2, err := gate.Signal()
	require.NoError(t, err)
	assert.Equal(t, v1+1, v2)

	require.NoError(t, gate.WaitUntil(v2))
	assert.True(t, gate.IsComplete(v1))
	assert.True(t, gate.IsComplete(v2))
	assert.GreaterOrEqual(t, gate.Completed(), v2)

	// already reached: returns at once
	require.NoError(t, gate.WaitUntil(v1))

	assert.ErrorIs(t, gate.WaitUntil(gate.Current()+5), core.ErrContractViolation)

	require.NoError(t, gate.Flush())
	assert.Equal(t, gate.Current(), gate.Completed())
	assert.Equal(t, 0, dev.HeadlessQueue().Pending())
}

func TestGateWaitFailsOnDeviceRemoval(t *testing.T) {
	dev := headless.NewDevice(headless.Options{Manual: true})
	defer dev.Release()

	gate, err := NewGate(dev)
	require.NoError(t, err)
	v, err := gate.Signal()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- gate.WaitUntil(v) }()
	dev.Remove(nil)

	select {
	case err := <-done:
		assert.True(t, core.IsFatal(err))
	case <-time.After(time.Second):
		t.Fatal("wait not released by device removal")
	}
}

func TestFrameRingFirstAdvanceLandsOnSlotZero(t *testing.T) {
	dev := headless.NewDevice(headless.Options{Manual: true})
	defer dev.Release()
	gate, err := NewGate(dev)
	require.NoError(t, err)

	ring, err := NewFrameRing(dev, gate, 3, 8, 2)
	require.NoError(t, err)
	defer ring.Release()

	assert.Equal(t, 3, ring.Depth())
	for want := 0; want < 6; want++ {
		fr, err := ring.Advance()
		require.NoError(t, err)
		assert.Equal(t, want%3, fr.Index)
		assert.Same(t, fr, ring.Current())
	}
}

func TestFrameRingBlocksOnlyWhenSlotBusy(t *testing.T) {
	for _, depth := range []int{2, 3, 4} {
		t.Run(fmt.Sprintf("depth %d", depth), func(t *testing.T) {
			dev := headless.NewDevice(headless.Options{Manual: true})
			defer dev.Release()
			gate, err := NewGate(dev)
			require.NoError(t, err)

			ring, err := NewFrameRing(dev, gate, depth, 8, 2)
			require.NoError(t, err)
			defer ring.Release()

			// nothing retires in manual mode, so the CPU may get depth frames ahead
			for i := 0; i < depth; i++ {
				fr, err := ring.Advance()
				require.NoError(t, err)
				v, err := ring.Stamp()
				require.NoError(t, err)
				assert.Equal(t, uint64(i+1), v)
				assert.Equal(t, v, fr.FenceValue)
				assert.False(t, gate.IsComplete(v))
				// submitted and not yet retired: the allocator is off limits
				assert.ErrorIs(t, fr.ResetAllocator(), core.ErrContractViolation)
			}

			acquired := make(chan *FrameResource, 1)
			go func() {
				fr, err := ring.Advance()
				if err != nil {
					close(acquired)
					return
				}
				acquired <- fr
			}()

			select {
			case <-acquired:
				t.Fatal("advanced into a slot the device still owns")
			case <-time.After(50 * time.Millisecond):
			}

			// retiring the first signal frees slot 0
			assert.Equal(t, 1, dev.HeadlessQueue().Retire(1))
			select {
			case fr, ok := <-acquired:
				require.True(t, ok)
				assert.Equal(t, 0, fr.Index)
				assert.Equal(t, uint64(1), fr.FenceValue)
				assert.NoError(t, fr.ResetAllocator())
			case <-time.After(time.Second):
				t.Fatal("advance did not return after the slot's fence completed")
			}
			dev.HeadlessQueue().RetireAll()
		})
	}
}

func TestStampEndsTheAcquisition(t *testing.T) {
	dev := headless.NewDevice(headless.Options{Manual: true})
	defer dev.Release()
	gate, err := NewGate(dev)
	require.NoError(t, err)

	ring, err := NewFrameRing(dev, gate, 2, 4, 1)
	require.NoError(t, err)
	defer ring.Release()

	fr, err := ring.Advance()
	require.NoError(t, err)
	require.NoError(t, fr.ResetAllocator())
	_, err = ring.Stamp()
	require.NoError(t, err)

	// a second draw without an update must not recycle the submitted slot
	assert.ErrorIs(t, fr.ResetAllocator(), core.ErrContractViolation)
	dev.HeadlessQueue().RetireAll()
	assert.ErrorIs(t, fr.ResetAllocator(), core.ErrContractViolation)
}

func TestResetAllocatorOnlyAfterAdvance(t *testing.T) {
	dev := headless.NewDevice(headless.Options{Manual: true})
	defer dev.Release()
	gate, err := NewGate(dev)
	require.NoError(t, err)

	ring, err := NewFrameRing(dev, gate, 2, 4, 1)
	require.NoError(t, err)
	defer ring.Release()

	assert.ErrorIs(t, ring.Slot(0).ResetAllocator(), core.ErrContractViolation)

	fr, err := ring.Advance()
	require.NoError(t, err)
	require.NoError(t, fr.ResetAllocator())

	_, err = ring.Advance()
	require.NoError(t, err)
	assert.ErrorIs(t, fr.ResetAllocator(), core.ErrContractViolation)
}

func TestUploadBufferStrideAndAddresses(t *testing.T) {
	dev := headless.NewDevice(headless.Options{Manual: true})
	defer dev.Release()

	tests := []struct {
		name string
		size uintptr
		run  func() (uint64, []uint64, error)
	}{
		{
			name: "object",
			size: unsafe.Sizeof(ObjectConstants{}),
			run: func() (uint64, []uint64, error) {
				u, err := NewUploadBuffer[ObjectConstants](dev, 4, true, "object")
				if err != nil {
					return 0, nil, err
				}
				return u.Stride(), offsets(u, 4), nil
			},
		},
		{
			name: "pass",
			size: unsafe.Sizeof(PassConstants{}),
			run: func() (uint64, []uint64, error) {
				u, err := NewUploadBuffer[PassConstants](dev, 3, true, "pass")
				if err != nil {
					return 0, nil, err
				}
				return u.Stride(), offsets(u, 3), nil
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stride, offs, err := tt.run()
			require.NoError(t, err)
			assert.Zero(t, stride%ConstantBufferAlignment)
			assert.GreaterOrEqual(t, stride, uint64(tt.size))
			assert.Less(t, stride-uint64(tt.size), uint64(ConstantBufferAlignment))
			for i, off := range offs {
				assert.Equal(t, uint64(i)*stride, off)
			}
		})
	}
}

func offsets[T any](u *UploadBuffer[T], n int) []uint64 {
	out := make([]uint64, n)
	for i := range out {
		out[i] = uint64(u.Address(i) - u.Address(0))
	}
	return out
}

func TestUploadBufferCopyData(t *testing.T) {
	dev := headless.NewDevice(headless.Options{Manual: true})
	defer dev.Release()

	u, err := NewUploadBuffer[MaterialConstants](dev, 2, true, "materials")
	require.NoError(t, err)

	mc := MaterialConstants{Roughness: 0.2}
	mc.FresnelR0.X = 0.05
	require.NoError(t, u.CopyData(1, &mc))
	assert.Equal(t, mc, u.Element(1))
	assert.Equal(t, MaterialConstants{}, u.Element(0))

	assert.ErrorIs(t, u.CopyData(2, &mc), core.ErrContractViolation)
	assert.ErrorIs(t, u.CopyData(-1, &mc), core.ErrContractViolation)

	_, err = NewUploadBuffer[MaterialConstants](dev, 0, true, "empty")
	assert.ErrorIs(t, err, core.ErrContractViolation)
}

func TestConstantBufferByteSize(t *testing.T) {
	tests := []struct {
		in, want uint64
	}{
		{1, 256},
		{128, 256},
		{256, 256},
		{257, 512},
		{1216, 1280},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ConstantBufferByteSize(tt.in), "size %d", tt.in)
	}
}
