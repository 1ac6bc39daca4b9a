package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/ringrender/engine/core"
	"github.com/spaghettifunk/ringrender/engine/renderer/gpu"
)

// VulkanResultString returns the VK_* name of result.
func VulkanResultString(result vk.Result) string {
	switch result {
	case vk.Success:
		return "VK_SUCCESS"
	case vk.NotReady:
		return "VK_NOT_READY"
	case vk.Timeout:
		return "VK_TIMEOUT"
	case vk.EventSet:
		return "VK_EVENT_SET"
	case vk.EventReset:
		return "VK_EVENT_RESET"
	case vk.Incomplete:
		return "VK_INCOMPLETE"
	case vk.Suboptimal:
		return "VK_SUBOPTIMAL_KHR"
	case vk.ErrorOutOfHostMemory:
		return "VK_ERROR_OUT_OF_HOST_MEMORY"
	case vk.ErrorOutOfDeviceMemory:
		return "VK_ERROR_OUT_OF_DEVICE_MEMORY"
	case vk.ErrorInitializationFailed:
		return "VK_ERROR_INITIALIZATION_FAILED"
	case vk.ErrorDeviceLost:
		return "VK_ERROR_DEVICE_LOST"
	case vk.ErrorMemoryMapFailed:
		return "VK_ERROR_MEMORY_MAP_FAILED"
	case vk.ErrorLayerNotPresent:
		return "VK_ERROR_LAYER_NOT_PRESENT"
	case vk.ErrorExtensionNotPresent:
		return "VK_ERROR_EXTENSION_NOT_PRESENT"
	case vk.ErrorFeatureNotPresent:
		return "VK_ERROR_FEATURE_NOT_PRESENT"
	case vk.ErrorIncompatibleDriver:
		return "VK_ERROR_INCOMPATIBLE_DRIVER"
	case vk.ErrorTooManyObjects:
		return "VK_ERROR_TOO_MANY_OBJECTS"
	case vk.ErrorFormatNotSupported:
		return "VK_ERROR_FORMAT_NOT_SUPPORTED"
	case vk.ErrorFragmentedPool:
		return "VK_ERROR_FRAGMENTED_POOL"
	case vk.ErrorSurfaceLost:
		return "VK_ERROR_SURFACE_LOST_KHR"
	case vk.ErrorNativeWindowInUse:
		return "VK_ERROR_NATIVE_WINDOW_IN_USE_KHR"
	case vk.ErrorOutOfDate:
		return "VK_ERROR_OUT_OF_DATE_KHR"
	case vk.ErrorOutOfPoolMemory:
		return "VK_ERROR_OUT_OF_POOL_MEMORY"
	case vk.ErrorInvalidShaderNv:
		return "VK_ERROR_INVALID_SHADER_NV"
	default:
		return fmt.Sprintf("VkResult(%d)", int32(result))
	}
}

// VulkanResultIsSuccess reports whether result is a success code. Anything
// negative is an error.
func VulkanResultIsSuccess(result vk.Result) bool {
	return result >= 0
}

// check turns a failed result into a *core.DeviceError whose cause matches
// the core sentinels.
func check(op string, result vk.Result) error {
	if VulkanResultIsSuccess(result) {
		return nil
	}
	var cause error
	switch result {
	case vk.ErrorDeviceLost:
		cause = core.ErrDeviceLost
	case vk.ErrorOutOfHostMemory, vk.ErrorOutOfDeviceMemory, vk.ErrorOutOfPoolMemory, vk.ErrorFragmentedPool:
		cause = core.ErrOutOfMemory
	case vk.ErrorSurfaceLost, vk.ErrorOutOfDate:
		cause = core.ErrPresentFailed
	default:
		cause = core.ErrUnknown
	}
	return core.NewDeviceError(op, fmt.Errorf("%w: %s", cause, VulkanResultString(result)))
}

var end = "\x00"
var endChar byte = '\x00'

// VulkanSafeString null-terminates s for the C side.
func VulkanSafeString(s string) string {
	if len(s) == 0 {
		return end
	}
	if s[len(s)-1] != endChar {
		return s + end
	}
	return s
}

func VulkanSafeStrings(list []string) []string {
	out := make([]string, len(list))
	for i := range list {
		out[i] = VulkanSafeString(list[i])
	}
	return out
}

// FindFirstZeroInByteArray returns the index of the first NUL, or len(arr).
func FindFirstZeroInByteArray(arr []byte) int {
	for i, b := range arr {
		if b == 0 {
			return i
		}
	}
	return len(arr)
}

func cString(arr []byte) string {
	return string(arr[:FindFirstZeroInByteArray(arr)])
}

func vkFormat(f gpu.Format) vk.Format {
	switch f {
	case gpu.FormatR8G8B8A8Unorm:
		return vk.FormatR8g8b8a8Unorm
	case gpu.FormatB8G8R8A8Unorm:
		return vk.FormatB8g8r8a8Unorm
	case gpu.FormatD24UnormS8Uint:
		return vk.FormatD24UnormS8Uint
	case gpu.FormatD32Float:
		return vk.FormatD32Sfloat
	case gpu.FormatR32G32Float:
		return vk.FormatR32g32Sfloat
	case gpu.FormatR32G32B32Float:
		return vk.FormatR32g32b32Sfloat
	case gpu.FormatR32G32B32A32Float:
		return vk.FormatR32g32b32a32Sfloat
	case gpu.FormatR16Uint:
		return vk.FormatR16Uint
	case gpu.FormatR32Uint:
		return vk.FormatR32Uint
	default:
		return vk.FormatUndefined
	}
}

func vkIndexType(f gpu.Format) (vk.IndexType, error) {
	switch f {
	case gpu.FormatR16Uint:
		return vk.IndexTypeUint16, nil
	case gpu.FormatR32Uint:
		return vk.IndexTypeUint32, nil
	default:
		return 0, core.Violation("index format %s", f)
	}
}

func vkTopology(t gpu.Topology) vk.PrimitiveTopology {
	switch t {
	case gpu.TopologyTriangleStrip:
		return vk.PrimitiveTopologyTriangleStrip
	case gpu.TopologyLineList:
		return vk.PrimitiveTopologyLineList
	default:
		return vk.PrimitiveTopologyTriangleList
	}
}

func vkStages(v gpu.ShaderVisibility) vk.ShaderStageFlags {
	switch v {
	case gpu.VisibilityVertex:
		return vk.ShaderStageFlags(vk.ShaderStageVertexBit)
	case gpu.VisibilityPixel:
		return vk.ShaderStageFlags(vk.ShaderStageFragmentBit)
	default:
		return vk.ShaderStageFlags(vk.ShaderStageAllGraphics)
	}
}

func hasStencil(f vk.Format) bool {
	return f == vk.FormatD24UnormS8Uint || f == vk.FormatD32SfloatS8Uint
}

func depthAspect(f vk.Format) vk.ImageAspectFlags {
	aspect := vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	if hasStencil(f) {
		aspect |= vk.ImageAspectFlags(vk.ImageAspectStencilBit)
	}
	return aspect
}
