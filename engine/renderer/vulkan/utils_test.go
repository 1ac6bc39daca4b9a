package vulkan

import (
	"errors"
	"sync"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/ringrender/engine/core"
	"github.com/spaghettifunk/ringrender/engine/renderer/gpu"
)

func TestCheckMapsResults(t *testing.T) {
	tests := []struct {
		result vk.Result
		want   error
	}{
		{vk.ErrorDeviceLost, core.ErrDeviceLost},
		{vk.ErrorOutOfDeviceMemory, core.ErrOutOfMemory},
		{vk.ErrorOutOfPoolMemory, core.ErrOutOfMemory},
		{vk.ErrorOutOfDate, core.ErrPresentFailed},
		{vk.ErrorSurfaceLost, core.ErrPresentFailed},
		{vk.ErrorInitializationFailed, core.ErrUnknown},
	}
	for _, tt := range tests {
		t.Run(VulkanResultString(tt.result), func(t *testing.T) {
			err := check("op", tt.result)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			var de *core.DeviceError
			assert.True(t, errors.As(err, &de))
		})
	}
}

func TestCheckPassesSuccessCodes(t *testing.T) {
	assert.NoError(t, check("op", vk.Success))
	assert.NoError(t, check("op", vk.Suboptimal))
	assert.NoError(t, check("op", vk.NotReady))
}

func TestDeviceLostIsFatal(t *testing.T) {
	assert.True(t, core.IsFatal(check("submit", vk.ErrorDeviceLost)))
}

func TestVulkanResultStringUnknown(t *testing.T) {
	assert.Equal(t, "VkResult(-12345)", VulkanResultString(vk.Result(-12345)))
	assert.Equal(t, "VK_SUBOPTIMAL_KHR", VulkanResultString(vk.Suboptimal))
}

func TestVulkanSafeString(t *testing.T) {
	assert.Equal(t, "\x00", VulkanSafeString(""))
	assert.Equal(t, "main\x00", VulkanSafeString("main"))
	assert.Equal(t, "main\x00", VulkanSafeString("main\x00"))

	in := []string{"a", "b\x00"}
	out := VulkanSafeStrings(in)
	assert.Equal(t, []string{"a\x00", "b\x00"}, out)
	assert.Equal(t, "a", in[0])
}

func TestCString(t *testing.T) {
	var name [16]byte
	copy(name[:], "llvmpipe")
	assert.Equal(t, "llvmpipe", cString(name[:]))
	assert.Equal(t, 8, FindFirstZeroInByteArray(name[:]))
	assert.Equal(t, 3, FindFirstZeroInByteArray([]byte("abc")))
}

func TestFormatMapping(t *testing.T) {
	assert.Equal(t, vk.FormatR8g8b8a8Unorm, vkFormat(gpu.FormatR8G8B8A8Unorm))
	assert.Equal(t, vk.FormatR32g32b32Sfloat, vkFormat(gpu.FormatR32G32B32Float))
	assert.Equal(t, vk.FormatD24UnormS8Uint, vkFormat(gpu.FormatD24UnormS8Uint))
	assert.Equal(t, vk.FormatUndefined, vkFormat(gpu.FormatUnknown))

	it, err := vkIndexType(gpu.FormatR16Uint)
	require.NoError(t, err)
	assert.Equal(t, vk.IndexTypeUint16, it)
	_, err = vkIndexType(gpu.FormatR32G32Float)
	assert.ErrorIs(t, err, core.ErrContractViolation)
}

func TestDepthAspect(t *testing.T) {
	assert.Equal(t, vk.ImageAspectFlags(vk.ImageAspectDepthBit|vk.ImageAspectStencilBit), depthAspect(vk.FormatD24UnormS8Uint))
	assert.Equal(t, vk.ImageAspectFlags(vk.ImageAspectDepthBit), depthAspect(vk.FormatD32Sfloat))
}

func TestLayoutFor(t *testing.T) {
	tex := &Texture{layout: vk.ImageLayoutShaderReadOnlyOptimal}
	assert.Equal(t, vk.ImageLayoutShaderReadOnlyOptimal, layoutFor(gpu.StateCommon, tex))
	assert.Equal(t, vk.ImageLayoutDepthStencilAttachmentOptimal, layoutFor(gpu.StateDepthWrite, tex))
	assert.Equal(t, vk.ImageLayoutPresentSrc, layoutFor(gpu.StatePresent, tex))
	assert.Equal(t, vk.ImageLayoutTransferDstOptimal, layoutFor(gpu.StateCopyDest, tex))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, uint32(1), clamp(0, 1, 10))
	assert.Equal(t, uint32(10), clamp(99, 1, 10))
	assert.Equal(t, uint32(5), clamp(5, 1, 10))
}

func TestLockPoolSerializesGroup(t *testing.T) {
	pool := NewVulkanLockPool()
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pool.SafeCall(QueueManagement, func() error {
				counter++
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)

	sentinel := errors.New("boom")
	assert.ErrorIs(t, pool.SafeCall(MemoryManagement, func() error { return sentinel }), sentinel)
}

func TestSurfaceTextureSize(t *testing.T) {
	sc := &SwapChain{extent: vk.Extent2D{Width: 800, Height: 600}}
	proxy := &Texture{swap: sc}
	assert.Equal(t, uint32(800), proxy.Width())
	assert.Equal(t, uint32(600), proxy.Height())

	plain := &Texture{width: 4, height: 2}
	assert.Equal(t, uint32(4), plain.Width())
}
